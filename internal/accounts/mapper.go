// Package accounts provides in-memory lookup over upstream accounts and their
// ledger account paths.
package accounts

import (
	"strings"

	"github.com/allancalix/clerk/internal/model"
)

// Mapper resolves upstream account ids to ledger account paths. Overrides
// from the rules script take precedence over generated paths.
type Mapper struct {
	byID      map[string]model.Account
	overrides map[string]string
}

// NewMapper creates a Mapper from known accounts and script overrides.
func NewMapper(accts []model.Account, overrides map[string]string) *Mapper {
	byID := make(map[string]model.Account, len(accts))
	for _, a := range accts {
		byID[a.ID] = a
	}
	return &Mapper{byID: byID, overrides: overrides}
}

// Get returns an account by upstream id.
func (m *Mapper) Get(id string) (model.Account, bool) {
	a, ok := m.byID[id]
	return a, ok
}

// Path returns the ledger account path for an upstream account id. Accounts
// that were never synced stay addressable by their raw id.
func (m *Mapper) Path(id string) string {
	if path, ok := m.overrides[id]; ok {
		return path
	}
	if a, ok := m.byID[id]; ok {
		return Path(a)
	}
	return "Assets:" + sanitize(id)
}

// Path derives a ledger account path from an account's normal balance:
// credit-normal accounts live under Liabilities, the rest under Assets.
func Path(a model.Account) string {
	prefix := "Assets"
	if a.Type.NormalBalance() == "CREDIT_NORMAL" {
		prefix = "Liabilities"
	}
	return prefix + ":" + sanitize(a.Name)
}

// sanitize strips characters that would break a ledger account path.
func sanitize(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), ":", " ")
}
