package prefs

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const ledgerFilterFile = "ledger_filter.json"

// LedgerFilter is the browse view's last filter.
type LedgerFilter struct {
	UnmatchedOnly bool   `json:"unmatched_only"`
	EntryType     string `json:"entry_type,omitempty"`
	BudgetID      string `json:"budget_id,omitempty"`
	PerPage       int    `json:"per_page,omitempty"`
}

func ledgerFilterPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir = filepath.Join(dir, "payledger")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, ledgerFilterFile), nil
}

func SaveLedgerFilter(f LedgerFilter) error {
	path, err := ledgerFilterPath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadLedgerFilter returns the saved filter, or the zero filter when none was saved.
func LoadLedgerFilter() (LedgerFilter, error) {
	path, err := ledgerFilterPath()
	if err != nil {
		return LedgerFilter{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return LedgerFilter{}, nil
		}
		return LedgerFilter{}, err
	}
	var f LedgerFilter
	if err := json.Unmarshal(data, &f); err != nil {
		return LedgerFilter{}, err
	}
	return f, nil
}
