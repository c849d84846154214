package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jask/payledger/internal/config"
	"github.com/jask/payledger/internal/database/repository"
	"github.com/jask/payledger/internal/prefs"
	"github.com/jask/payledger/internal/service"
)

// App ties together views.
type App struct {
	ctx        context.Context
	services   Services
	cfg        config.Config
	state      appState
	modal      modalState
	keys       keyMap
	filter     prefs.LedgerFilter
	saveFilter func(prefs.LedgerFilter) error
	page       int

	entries     repository.EntryPage
	totals      repository.Totals
	budgets     []repository.Budget
	budgetName  map[string]string // id -> name
	suggestions []service.MatchSuggestion
	suggestFor  string

	entryCursor   int
	suggestCursor int
	budgetCursor  int
	status        string
	tz            *time.Location
	currency      string
	dateFormat    string

	// import flow
	importInput textinput.Model
	lastImport  *service.IngestResult
}

type Services struct {
	Ledger      *service.LedgerService
	Imports     *service.ImportService
	Maintenance *service.MaintenanceService
}

type appState string

const (
	viewLedger  appState = "ledger"
	viewSuggest appState = "suggest"
	viewBudgets appState = "budgets"
	viewImport  appState = "import"
)

type modalState string

const (
	modalNone         modalState = ""
	modalConfirmReset modalState = "confirmReset"
)

// New builds the browser. filter is the last saved view filter.
func New(ctx context.Context, cfg config.Config, services Services, filter prefs.LedgerFilter, tz *time.Location) *App {
	if tz == nil {
		tz = time.Local
	}
	dateFormat := cfg.UI.DateFormat
	if dateFormat == "" {
		dateFormat = "2006-01-02"
	}
	inp := textinput.New()
	inp.Placeholder = "entries.csv"
	inp.Prompt = "Path: "
	inp.Cursor.SetMode(cursor.CursorStatic)
	inp.Focus()
	return &App{
		ctx:         ctx,
		keys:        defaultKeyMap(),
		importInput: inp,
		services:    services,
		cfg:         cfg,
		state:       viewLedger,
		filter:      filter,
		saveFilter:  prefs.SaveLedgerFilter,
		page:        1,
		budgetName:  map[string]string{},
		tz:          tz,
		currency:    cfg.UI.CurrencySymbol,
		dateFormat:  dateFormat,
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.loadEntries(), a.loadTotals(), a.loadBudgets())
}

func (a *App) entryFilters() repository.EntryFilters {
	return repository.EntryFilters{
		BudgetID:      a.filter.BudgetID,
		EntryType:     repository.EntryType(a.filter.EntryType),
		UnmatchedOnly: a.filter.UnmatchedOnly,
		Page:          a.page,
		PerPage:       a.filter.PerPage,
	}
}

func (a *App) loadEntries() tea.Cmd {
	f := a.entryFilters()
	return func() tea.Msg {
		page, err := a.services.Ledger.ListEntries(a.ctx, f)
		if err != nil {
			return errMsg{err}
		}
		return entriesMsg(page)
	}
}

func (a *App) loadTotals() tea.Cmd {
	f := a.entryFilters()
	return func() tea.Msg {
		t, err := a.services.Ledger.Totals(a.ctx, f)
		if err != nil {
			return errMsg{err}
		}
		return totalsMsg(t)
	}
}

func (a *App) loadBudgets() tea.Cmd {
	return func() tea.Msg {
		list, err := a.services.Ledger.ListBudgets(a.ctx)
		if err != nil {
			return errMsg{err}
		}
		return budgetListMsg(list)
	}
}

func (a *App) reload() tea.Cmd {
	return tea.Batch(a.loadEntries(), a.loadTotals())
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.KeyMsg:
		if a.modal != modalNone {
			return a.handleModalKey(m)
		}
		switch a.state {
		case viewImport:
			return a.handleImportKey(m)
		case viewSuggest:
			return a.handleSuggestKey(m)
		case viewBudgets:
			return a.handleBudgetsKey(m)
		}
		return a.handleLedgerKey(m)
	case entriesMsg:
		a.entries = repository.EntryPage(m)
		if a.entryCursor >= len(a.entries.Entries) {
			a.entryCursor = 0
		}
	case totalsMsg:
		a.totals = repository.Totals(m)
	case budgetListMsg:
		a.budgets = []repository.Budget(m)
		a.budgetName = make(map[string]string, len(a.budgets))
		for _, b := range a.budgets {
			a.budgetName[b.ID] = b.Name
		}
		if a.budgetCursor >= len(a.budgets) {
			a.budgetCursor = 0
		}
	case suggestionsMsg:
		a.suggestFor = m.EntryID
		a.suggestions = m.List
		a.suggestCursor = 0
		a.state = viewSuggest
		if len(m.List) == 0 {
			a.status = "no candidate transactions"
		} else {
			a.status = ""
		}
	case statusMsg:
		a.status = string(m)
	case changedMsg:
		a.status = string(m)
		return a, a.reload()
	case resetDoneMsg:
		a.entryCursor, a.budgetCursor, a.page = 0, 0, 1
		a.filter.BudgetID = ""
		a.status = "database reset (empty)"
		return a, tea.Batch(a.reload(), a.loadBudgets())
	case errMsg:
		a.status = "error: " + m.Error()
	case ingestDoneMsg:
		a.lastImport = &m.Result
		summary := fmt.Sprintf("imported %d, skipped %d", m.Result.Imported, m.Result.Skipped)
		if len(m.Result.Errors) > 0 {
			summary += fmt.Sprintf(", errors %d (see import view)", len(m.Result.Errors))
		}
		a.status = summary
		a.state = viewLedger
		a.page = 1
		return a, tea.Batch(a.reload(), a.loadBudgets())
	}
	return a, nil
}

func (a *App) handleLedgerKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(m, a.keys.Quit):
		return a, tea.Quit
	case key.Matches(m, a.keys.Up):
		if a.entryCursor > 0 {
			a.entryCursor--
		}
	case key.Matches(m, a.keys.Down):
		if a.entryCursor < len(a.entries.Entries)-1 {
			a.entryCursor++
		}
	case key.Matches(m, a.keys.NextPage):
		if a.page < a.entries.Pages {
			a.page++
			a.entryCursor = 0
			return a, a.loadEntries()
		}
	case key.Matches(m, a.keys.PrevPage):
		if a.page > 1 {
			a.page--
			a.entryCursor = 0
			return a, a.loadEntries()
		}
	case key.Matches(m, a.keys.Unmatched):
		a.filter.UnmatchedOnly = !a.filter.UnmatchedOnly
		return a, a.filterChanged()
	case key.Matches(m, a.keys.Type):
		switch repository.EntryType(a.filter.EntryType) {
		case "":
			a.filter.EntryType = string(repository.EntryCost)
		case repository.EntryCost:
			a.filter.EntryType = string(repository.EntryIncome)
		default:
			a.filter.EntryType = ""
		}
		return a, a.filterChanged()
	case key.Matches(m, a.keys.Budget):
		a.filter.BudgetID = a.nextBudgetID()
		return a, a.filterChanged()
	case key.Matches(m, a.keys.Suggest):
		if e := a.selectedEntry(); e != nil {
			a.status = "searching..."
			return a, a.suggestCmd(e.ID)
		}
	case key.Matches(m, a.keys.Unmatch):
		if e := a.selectedEntry(); e != nil && e.TransactionID != nil {
			return a, a.unmatchCmd(e.ID)
		}
	case key.Matches(m, a.keys.Import):
		a.state = viewImport
		a.status = ""
	case key.Matches(m, a.keys.Budgets):
		a.state = viewBudgets
		a.status = ""
		return a, a.loadBudgets()
	case key.Matches(m, a.keys.Reset):
		a.modal = modalConfirmReset
	}
	return a, nil
}

// filterChanged resets paging, persists the filter and reloads.
func (a *App) filterChanged() tea.Cmd {
	a.page = 1
	a.entryCursor = 0
	f := a.filter
	save := func() tea.Msg {
		if a.saveFilter == nil {
			return nil
		}
		if err := a.saveFilter(f); err != nil {
			return errMsg{fmt.Errorf("save filter: %w", err)}
		}
		return nil
	}
	return tea.Batch(a.reload(), save)
}

// nextBudgetID cycles all budgets -> each budget -> all budgets.
func (a *App) nextBudgetID() string {
	if len(a.budgets) == 0 {
		return ""
	}
	if a.filter.BudgetID == "" {
		return a.budgets[0].ID
	}
	for i, b := range a.budgets {
		if b.ID == a.filter.BudgetID {
			if i+1 < len(a.budgets) {
				return a.budgets[i+1].ID
			}
			return ""
		}
	}
	return ""
}

func (a *App) selectedEntry() *repository.FinancialEntry {
	if len(a.entries.Entries) == 0 {
		return nil
	}
	return &a.entries.Entries[a.entryCursor]
}

func (a *App) handleSuggestKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(m, a.keys.Quit):
		return a, tea.Quit
	case key.Matches(m, a.keys.Back):
		a.state = viewLedger
		a.status = ""
	case key.Matches(m, a.keys.Up):
		if a.suggestCursor > 0 {
			a.suggestCursor--
		}
	case key.Matches(m, a.keys.Down):
		if a.suggestCursor < len(a.suggestions)-1 {
			a.suggestCursor++
		}
	case key.Matches(m, a.keys.Select), m.String() == "y":
		if len(a.suggestions) == 0 {
			return a, nil
		}
		txID := a.suggestions[a.suggestCursor].Transaction.ID
		a.state = viewLedger
		return a, a.matchCmd(a.suggestFor, txID)
	}
	return a, nil
}

func (a *App) handleBudgetsKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(m, a.keys.Quit):
		return a, tea.Quit
	case key.Matches(m, a.keys.Back), key.Matches(m, a.keys.Budgets):
		a.state = viewLedger
		a.status = ""
	case key.Matches(m, a.keys.Up):
		if a.budgetCursor > 0 {
			a.budgetCursor--
		}
	case key.Matches(m, a.keys.Down):
		if a.budgetCursor < len(a.budgets)-1 {
			a.budgetCursor++
		}
	case key.Matches(m, a.keys.Select):
		if len(a.budgets) == 0 {
			return a, nil
		}
		a.filter.BudgetID = a.budgets[a.budgetCursor].ID
		a.state = viewLedger
		return a, a.filterChanged()
	}
	return a, nil
}

// handleImportKey feeds typing into the path input; q is text here.
func (a *App) handleImportKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.Type {
	case tea.KeyCtrlC:
		return a, tea.Quit
	case tea.KeyEsc:
		a.state = viewLedger
		a.status = ""
		return a, nil
	case tea.KeyEnter:
		path := strings.TrimSpace(a.importInput.Value())
		if path == "" {
			a.status = "enter a CSV or XLSX path"
			return a, nil
		}
		return a, a.ingestCmd(path)
	}
	a.importInput, _ = a.importInput.Update(m)
	return a, nil
}

func (a *App) handleModalKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.modal {
	case modalConfirmReset:
		switch m.String() {
		case "y", "Y":
			a.modal = modalNone
			return a, a.resetCmd()
		case "n", "N", "esc":
			a.modal = modalNone
		}
	}
	return a, nil
}

// commands
func (a *App) suggestCmd(entryID string) tea.Cmd {
	return func() tea.Msg {
		list, err := a.services.Ledger.SuggestMatches(a.ctx, entryID, 5)
		if err != nil {
			return errMsg{err}
		}
		return suggestionsMsg{EntryID: entryID, List: list}
	}
}

func (a *App) matchCmd(entryID, txID string) tea.Cmd {
	return func() tea.Msg {
		if _, err := a.services.Ledger.MatchTransaction(a.ctx, entryID, txID); err != nil {
			return errMsg{err}
		}
		return changedMsg("matched")
	}
}

func (a *App) unmatchCmd(entryID string) tea.Cmd {
	return func() tea.Msg {
		if _, err := a.services.Ledger.UnmatchTransaction(a.ctx, entryID); err != nil {
			return errMsg{err}
		}
		return changedMsg("unmatched")
	}
}

func (a *App) resetCmd() tea.Cmd {
	return func() tea.Msg {
		if a.services.Maintenance == nil {
			return errMsg{fmt.Errorf("maintenance not configured")}
		}
		if err := a.services.Maintenance.Reset(a.ctx); err != nil {
			return errMsg{err}
		}
		return resetDoneMsg{}
	}
}

func (a *App) ingestCmd(path string) tea.Cmd {
	abs := path
	if !filepath.IsAbs(path) {
		if p, err := filepath.Abs(path); err == nil {
			abs = p
		}
	}
	a.status = "importing..."
	if a.services.Imports == nil {
		return func() tea.Msg { return errMsg{fmt.Errorf("import service not configured")} }
	}
	tz := a.tz
	return func() tea.Msg {
		f, err := os.Open(abs)
		if err != nil {
			return errMsg{fmt.Errorf("open %s: %w", abs, err)}
		}
		defer f.Close()

		var res service.IngestResult
		if strings.EqualFold(filepath.Ext(abs), ".xlsx") {
			res, err = a.services.Imports.ImportXLSX(a.ctx, f, tz)
		} else {
			res, err = a.services.Imports.ImportCSV(a.ctx, f, tz)
		}
		if err != nil {
			return errMsg{err}
		}
		for i := range res.Errors {
			res.Errors[i] = fmt.Errorf("%s: %w", filepath.Base(abs), res.Errors[i])
		}
		return ingestDoneMsg{Result: res}
	}
}

// messages
type entriesMsg repository.EntryPage

type totalsMsg repository.Totals

type budgetListMsg []repository.Budget

type suggestionsMsg struct {
	EntryID string
	List    []service.MatchSuggestion
}

type statusMsg string

// changedMsg reports a completed write; the ledger is reloaded.
type changedMsg string

type resetDoneMsg struct{}

type errMsg struct{ error }

type ingestDoneMsg struct {
	Result service.IngestResult
}
