package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/jask/payledger/internal/database/repository"
)

// styles
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	helpStyle   = lipgloss.NewStyle().Faint(true)
	costStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	incomeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func (a *App) View() string {
	var body string
	switch a.state {
	case viewSuggest:
		body = a.renderSuggestions()
	case viewBudgets:
		body = a.renderBudgets()
	case viewImport:
		body = a.renderImport()
	default:
		body = a.renderLedger()
	}
	if a.modal != modalNone {
		body += "\n\n" + a.renderModal()
	}
	return body
}

func (a *App) renderLedger() string {
	out := titleStyle.Render("Ledger") + "\n"
	out += a.filterLine() + "\n"
	out += fmt.Sprintf("Cost: %s  Income: %s  Balance: %s\n\n",
		a.money(a.totals.TotalCost), a.money(a.totals.TotalIncome), a.money(a.totals.Balance))
	if len(a.entries.Entries) == 0 {
		out += "  (no entries)\n"
	}
	for i, e := range a.entries.Entries {
		marker := " "
		if i == a.entryCursor {
			marker = "▶"
		}
		amount := a.money(e.Amount)
		if e.EntryType == repository.EntryCost {
			amount = costStyle.Render("-" + amount)
		} else {
			amount = incomeStyle.Render("+" + amount)
		}
		matched := ""
		if e.TransactionID != nil {
			matched = " [matched]"
		}
		out += fmt.Sprintf("%s %s  %-40s  %12s  %s%s\n", marker, e.EntryDate.Format(a.dateFormat),
			truncate(e.Description, 40), amount, a.budgetLabel(e.BudgetID), matched)
	}
	if a.entries.Pages > 0 {
		out += fmt.Sprintf("Page %d of %d (%d entries)\n", a.entries.Page, a.entries.Pages, a.entries.Total)
	}
	out += helpLine(a.keys.ledgerHelp()...)
	if a.status != "" {
		out += "\n" + a.status
	}
	return out
}

func (a *App) filterLine() string {
	parts := []string{}
	if a.filter.UnmatchedOnly {
		parts = append(parts, "unmatched")
	}
	if a.filter.EntryType != "" {
		parts = append(parts, a.filter.EntryType)
	}
	if a.filter.BudgetID != "" {
		parts = append(parts, "budget "+a.budgetLabel(&a.filter.BudgetID))
	}
	if len(parts) == 0 {
		return "Filter: all"
	}
	return "Filter: " + strings.Join(parts, ", ")
}

func (a *App) renderSuggestions() string {
	out := titleStyle.Render("Match suggestions") + "\n"
	if len(a.suggestions) == 0 {
		out += "No paid or authorized transaction fits this entry.\n"
	}
	for i, s := range a.suggestions {
		marker := " "
		if i == a.suggestCursor {
			marker = "▶"
		}
		out += fmt.Sprintf("%s %s  %-32s  %10s  %dd  score %.2f\n", marker, s.Transaction.CreatedAt.In(a.tz).Format(a.dateFormat),
			truncate(s.Transaction.Description, 32), a.money(s.Transaction.Amount), s.DaysApart, s.Score)
	}
	out += helpLine(a.keys.Select, a.keys.Back, a.keys.Quit)
	if a.status != "" {
		out += "\n" + a.status
	}
	return out
}

func (a *App) renderBudgets() string {
	out := titleStyle.Render("Budgets") + "\n"
	if len(a.budgets) == 0 {
		out += "  (no budgets yet)\n"
	}
	for i, b := range a.budgets {
		marker := " "
		if i == a.budgetCursor {
			marker = "▶"
		}
		out += fmt.Sprintf("%s %s\n", marker, b.Name)
	}
	out += helpLine(a.keys.Select, a.keys.Back, a.keys.Quit)
	if a.status != "" {
		out += "\n" + a.status
	}
	return out
}

func (a *App) renderImport() string {
	title := titleStyle.Render("Import entries")
	body := a.importInput.View() + "\nType a CSV or XLSX path and press Enter. Rows already in the ledger are skipped.\n"
	body += helpLine(a.keys.Select, a.keys.Back)
	if a.lastImport != nil {
		body += fmt.Sprintf("\nLast import: %d imported, %d skipped, %d errors", a.lastImport.Imported, a.lastImport.Skipped, len(a.lastImport.Errors))
		if len(a.lastImport.Errors) > 0 {
			body += "\nFirst error: " + a.lastImport.Errors[0].Error()
			if len(a.lastImport.Errors) > 1 {
				body += fmt.Sprintf(" (+%d more)", len(a.lastImport.Errors)-1)
			}
		}
	}
	if a.status != "" {
		body += "\n" + a.status
	}
	return fmt.Sprintf("%s\n%s", title, body)
}

func (a *App) renderModal() string {
	switch a.modal {
	case modalConfirmReset:
		return titleStyle.Render("Reset database?") + "\nThis deletes every entry, budget and transaction.\n[y] Yes  [n] No"
	default:
		return ""
	}
}

func (a *App) budgetLabel(id *string) string {
	if id == nil {
		return "[no budget]"
	}
	if name, ok := a.budgetName[*id]; ok && name != "" {
		return name
	}
	return *id
}

func (a *App) money(d decimal.Decimal) string {
	return a.currency + d.StringFixed(2)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
