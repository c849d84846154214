package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func createEntry(t *testing.T, env *testEnv, body gin.H) entryJSON {
	t.Helper()
	w := env.do(t, http.MethodPost, "/api/entries", body)
	requireStatus(t, w, http.StatusCreated)
	return decode[entryJSON](t, w)
}

func TestEntries_CRUDAndTotals(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/budgets", gin.H{"name": "Events"})
	requireStatus(t, w, http.StatusCreated)
	budget := decode[budgetJSON](t, w)

	hall := createEntry(t, env, gin.H{"amount": "50", "entryType": "cost", "entryDate": "2026-01-10", "description": "Hall", "budgetId": budget.ID})
	require.Equal(t, "50.00", hall.Amount)
	require.Equal(t, "Events", hall.BudgetName)
	createEntry(t, env, gin.H{"amount": 10, "entryType": "cost", "entryDate": "2026-01-11", "description": "Snacks"})
	createEntry(t, env, gin.H{"amount": "40", "entryType": "income", "entryDate": "2026-01-12", "description": "Tickets"})

	w = env.do(t, http.MethodGet, "/api/entries/totals?entryType=income", nil)
	requireStatus(t, w, http.StatusOK)
	require.Equal(t, totalsJSON{TotalCost: "60.00", TotalIncome: "40.00", Balance: "-20.00"}, decode[totalsJSON](t, w))

	w = env.do(t, http.MethodGet, "/api/entries?entryType=cost&pageSize=1&page=2", nil)
	requireStatus(t, w, http.StatusOK)
	page := decode[struct {
		Data        []entryJSON `json:"data"`
		TotalRows   int         `json:"totalRows"`
		TotalPages  int         `json:"totalPages"`
		CurrentPage int         `json:"currentPage"`
		PageSize    int         `json:"pageSize"`
	}](t, w)
	require.Equal(t, 2, page.TotalRows)
	require.Equal(t, 2, page.TotalPages)
	require.Equal(t, 2, page.CurrentPage)
	require.Equal(t, 1, page.PageSize)
	require.Len(t, page.Data, 1)
	require.Equal(t, "Hall", page.Data[0].Description)

	w = env.do(t, http.MethodGet, "/api/entries?dateFrom=2026-01-11&dateTo=2026-01-11", nil)
	requireStatus(t, w, http.StatusOK)
	require.Contains(t, w.Body.String(), "Snacks")
	require.NotContains(t, w.Body.String(), "Hall")

	w = env.do(t, http.MethodPut, "/api/entries/"+hall.ID, gin.H{"amount": "55.5", "entryType": "cost", "entryDate": "2026-01-10", "description": "Hall + cleaning", "budgetId": budget.ID})
	requireStatus(t, w, http.StatusOK)
	require.Equal(t, "55.50", decode[entryJSON](t, w).Amount)

	w = env.do(t, http.MethodDelete, "/api/budgets/"+budget.ID, nil)
	requireStatus(t, w, http.StatusOK)
	require.EqualValues(t, 1, decode[map[string]int](t, w)["detachedEntries"])

	w = env.do(t, http.MethodGet, "/api/entries/"+hall.ID, nil)
	requireStatus(t, w, http.StatusOK)
	require.Nil(t, decode[entryJSON](t, w).BudgetID)

	w = env.do(t, http.MethodDelete, "/api/entries/"+hall.ID, nil)
	requireStatus(t, w, http.StatusNoContent)
	w = env.do(t, http.MethodGet, "/api/entries/"+hall.ID, nil)
	requireStatus(t, w, http.StatusNotFound)
}

func TestEntries_ValidationAndConflicts(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	for _, body := range []gin.H{
		{"amount": "0", "entryType": "cost", "entryDate": "2026-01-10"},
		{"amount": "5", "entryType": "gift", "entryDate": "2026-01-10"},
		{"amount": "5", "entryType": "cost"},
		{"amount": "5", "entryType": "cost", "entryDate": "10/01/2026"},
		{"amount": "five", "entryType": "cost", "entryDate": "2026-01-10"},
		{"amount": "5", "entryType": "cost", "entryDate": "2026-01-10", "budgetId": "missing"},
	} {
		w := env.do(t, http.MethodPost, "/api/entries", body)
		requireStatus(t, w, http.StatusBadRequest)
	}

	ref := gin.H{"amount": "5", "entryType": "income", "entryDate": "2026-01-10", "externalReference": "bank-9"}
	createEntry(t, env, ref)
	w := env.do(t, http.MethodPost, "/api/entries", ref)
	requireStatus(t, w, http.StatusConflict)

	w = env.do(t, http.MethodGet, "/api/entries?dateFrom=yesterday", nil)
	requireStatus(t, w, http.StatusBadRequest)
	w = env.do(t, http.MethodGet, "/api/entries?unmatched=perhaps", nil)
	requireStatus(t, w, http.StatusBadRequest)
}

func TestEntries_MatchAndSuggest(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/transactions", gin.H{"lineItems": []gin.H{{"name": "Ticket", "amount": 25}}})
	requireStatus(t, w, http.StatusCreated)
	txID := decode[transactionJSON](t, w).ID

	a := createEntry(t, env, gin.H{"amount": "25", "entryType": "income", "entryDate": "2026-01-10", "description": "Ticket"})
	b := createEntry(t, env, gin.H{"amount": "25", "entryType": "income", "entryDate": "2026-01-10", "description": "Ticket again"})

	w = env.do(t, http.MethodPut, "/api/entries/"+a.ID+"/match", gin.H{})
	requireStatus(t, w, http.StatusBadRequest)
	w = env.do(t, http.MethodPut, "/api/entries/"+a.ID+"/match", gin.H{"transactionId": "missing"})
	requireStatus(t, w, http.StatusNotFound)

	w = env.do(t, http.MethodPut, "/api/entries/"+a.ID+"/match", gin.H{"transactionId": txID})
	requireStatus(t, w, http.StatusOK)
	require.Equal(t, txID, *decode[entryJSON](t, w).TransactionID)

	w = env.do(t, http.MethodPut, "/api/entries/"+b.ID+"/match", gin.H{"transactionId": txID})
	requireStatus(t, w, http.StatusConflict)

	w = env.do(t, http.MethodGet, "/api/entries?unmatched=true", nil)
	requireStatus(t, w, http.StatusOK)
	require.NotContains(t, w.Body.String(), a.ID)

	w = env.do(t, http.MethodDelete, "/api/entries/"+a.ID+"/match", nil)
	requireStatus(t, w, http.StatusOK)
	require.Nil(t, decode[entryJSON](t, w).TransactionID)

	// the transaction is only a draft, so nothing is suggested
	w = env.do(t, http.MethodGet, "/api/entries/"+a.ID+"/suggestions", nil)
	requireStatus(t, w, http.StatusOK)
	require.JSONEq(t, `{"data":[]}`, w.Body.String())
	w = env.do(t, http.MethodGet, "/api/entries/"+a.ID+"/suggestions?limit=0", nil)
	requireStatus(t, w, http.StatusBadRequest)
}

func multipartFile(t *testing.T, name string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/entries/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestEntries_ImportAndExport(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	csv := []byte("date,type,amount,description,budget,external_reference\n" +
		"2026-02-01,income,30,Dues,Membership fees,\n" +
		"2026-02-02,cost,12.5,Stamps,,\n" +
		"2026-02-31,cost,1,Bad,,\n")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, multipartFile(t, "ledger.csv", csv))
	requireStatus(t, rec, http.StatusOK)
	res := decode[struct {
		Imported int      `json:"imported"`
		Skipped  int      `json:"skipped"`
		Errors   []string `json:"errors"`
	}](t, rec)
	require.Equal(t, 2, res.Imported)
	require.Len(t, res.Errors, 1)

	w := env.do(t, http.MethodGet, "/api/entries/export", nil)
	requireStatus(t, w, http.StatusOK)
	require.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	x, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	rows, err := x.GetRows(x.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "date", rows[0][0])

	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, multipartFile(t, "ledger.xlsx", w.Body.Bytes()))
	requireStatus(t, rec, http.StatusOK)
	require.Contains(t, rec.Body.String(), `"skipped":2`)

	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/entries/import", nil))
	requireStatus(t, rec, http.StatusBadRequest)
}
