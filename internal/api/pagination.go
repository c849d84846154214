package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jask/payledger/internal/database/repository"
)

// PaginatedResponse is the envelope of every paginated listing.
type PaginatedResponse struct {
	Data        any `json:"data"`
	TotalRows   int `json:"totalRows"`
	TotalPages  int `json:"totalPages"`
	CurrentPage int `json:"currentPage"`
	PageSize    int `json:"pageSize"`
}

// pageParams reads page and pageSize. Out-of-range values are clamped by the
// repository.
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))
	return page, pageSize
}

func entryPageResponse(p repository.EntryPage, names map[string]string) PaginatedResponse {
	data := make([]entryJSON, 0, len(p.Entries))
	for _, e := range p.Entries {
		data = append(data, toEntryJSON(e, names))
	}
	return PaginatedResponse{
		Data:        data,
		TotalRows:   p.Total,
		TotalPages:  p.Pages,
		CurrentPage: p.Page,
		PageSize:    p.PerPage,
	}
}
