// Package rules evaluates a user-supplied categorization script against
// canonical transactions. The script runs in an embedded starlark
// interpreter: no I/O, a per-transaction execution budget, and globals frozen
// after load so no state leaks between invocations.
package rules

import (
	"errors"
	"fmt"
	"os"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/allancalix/clerk/internal/model"
)

// defaultMaxSteps bounds a single categorize call when no budget is
// configured. A rule set of a few hundred matches runs well under this.
const defaultMaxSteps = 100_000

// entrypoint is the function the script must define to categorize
// transactions.
const entrypoint = "categorize"

// accountsGlobal optionally maps upstream account ids to ledger account
// paths, overriding the generated origin paths.
const accountsGlobal = "accounts"

// ErrBudgetExceeded marks a script that ran past its execution budget.
var ErrBudgetExceeded = errors.New("rules: evaluation budget exceeded")

// Evaluator holds a loaded script. The zero value (or a nil *Evaluator)
// behaves like no script at all: every transaction is uncategorized.
type Evaluator struct {
	fn       starlark.Callable
	aliases  map[string]string
	maxSteps uint64
}

// Load reads and compiles a script file. Parse and compile errors are fatal
// here, before any transaction is processed.
func Load(path string, maxSteps uint64) (*Evaluator, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules: %w", err)
	}
	return New(path, src, maxSteps)
}

// New compiles a script from source. filename is used in error positions.
func New(filename string, src []byte, maxSteps uint64) (*Evaluator, error) {
	if maxSteps == 0 {
		maxSteps = defaultMaxSteps
	}

	thread := &starlark.Thread{Name: "rules-load"}
	thread.SetMaxExecutionSteps(maxSteps)

	globals, err := starlark.ExecFile(thread, filename, src, nil)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}

	e := &Evaluator{maxSteps: maxSteps}

	if v, ok := globals[entrypoint]; ok {
		fn, ok := v.(starlark.Callable)
		if !ok {
			return nil, fmt.Errorf("loading rules: %s is not a function", entrypoint)
		}
		e.fn = fn
	}

	if v, ok := globals[accountsGlobal]; ok {
		aliases, err := stringMap(v)
		if err != nil {
			return nil, fmt.Errorf("loading rules: %w", err)
		}
		e.aliases = aliases
	}

	return e, nil
}

// Aliases returns the script's upstream-account-id to ledger-path overrides.
func (e *Evaluator) Aliases() map[string]string {
	if e == nil {
		return nil
	}
	return e.aliases
}

// Evaluate runs the script's categorize function against one transaction and
// returns its directives in order. The first directive wins downstream;
// scripts order their rules by specificity themselves. A runtime error or an
// exhausted budget is returned as an error for this transaction only.
func (e *Evaluator) Evaluate(txn model.Transaction) ([]model.Directive, error) {
	if e == nil || e.fn == nil {
		return nil, nil
	}

	thread := &starlark.Thread{Name: "categorize"}
	thread.SetMaxExecutionSteps(e.maxSteps)

	result, err := starlark.Call(thread, e.fn, starlark.Tuple{transactionValue(txn)}, nil)
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) && thread.ExecutionSteps() >= e.maxSteps {
			return nil, fmt.Errorf("%w: %s", ErrBudgetExceeded, txn.UpstreamID)
		}
		return nil, fmt.Errorf("evaluating %s: %w", txn.UpstreamID, err)
	}

	return parseDirectives(result)
}

// transactionValue exposes read-only transaction fields to the script.
func transactionValue(txn model.Transaction) starlark.Value {
	amount, _ := txn.Amount.Float64()
	fields := starlark.StringDict{
		"id":         starlark.String(txn.UpstreamID),
		"account_id": starlark.String(txn.AccountID),
		"date":       starlark.String(txn.Date.Format("2006-01-02")),
		"narration":  starlark.String(txn.Narration),
		"payee":      starlark.String(txn.Payee),
		"amount":     starlark.Float(amount),
		"currency":   starlark.String(txn.Currency),
		"pending":    starlark.Bool(txn.Status == model.StatusPending),
	}
	s := starlarkstruct.FromStringDict(starlark.String("transaction"), fields)
	s.Freeze()
	return s
}

func parseDirectives(v starlark.Value) ([]model.Directive, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case *starlark.Dict:
		d, err := parseDirective(val)
		if err != nil {
			return nil, err
		}
		return []model.Directive{d}, nil
	case *starlark.List:
		var directives []model.Directive
		it := val.Iterate()
		defer it.Done()
		var elem starlark.Value
		for it.Next(&elem) {
			dict, ok := elem.(*starlark.Dict)
			if !ok {
				return nil, fmt.Errorf("directive must be a dict, got %s", elem.Type())
			}
			d, err := parseDirective(dict)
			if err != nil {
				return nil, err
			}
			directives = append(directives, d)
		}
		return directives, nil
	default:
		return nil, fmt.Errorf("categorize must return None, a dict, or a list of dicts, got %s", v.Type())
	}
}

func parseDirective(dict *starlark.Dict) (model.Directive, error) {
	var d model.Directive

	account, err := stringKey(dict, "account")
	if err != nil {
		return d, err
	}
	if account == "" {
		return d, fmt.Errorf("directive is missing an account")
	}
	d.Account = account

	if d.Alias, err = stringKey(dict, "alias"); err != nil {
		return d, err
	}

	v, found, err := dict.Get(starlark.String("tags"))
	if err != nil || !found {
		return d, err
	}
	iter, ok := v.(starlark.Iterable)
	if !ok {
		return d, fmt.Errorf("tags must be a list, got %s", v.Type())
	}
	it := iter.Iterate()
	defer it.Done()
	var elem starlark.Value
	for it.Next(&elem) {
		s, ok := starlark.AsString(elem)
		if !ok {
			return d, fmt.Errorf("tag must be a string, got %s", elem.Type())
		}
		d.Tags = append(d.Tags, s)
	}
	return d, nil
}

func stringKey(dict *starlark.Dict, key string) (string, error) {
	v, found, err := dict.Get(starlark.String(key))
	if err != nil || !found {
		return "", err
	}
	s, ok := starlark.AsString(v)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %s", key, v.Type())
	}
	return s, nil
}

func stringMap(v starlark.Value) (map[string]string, error) {
	dict, ok := v.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("%s must be a dict, got %s", accountsGlobal, v.Type())
	}

	m := make(map[string]string, dict.Len())
	for _, item := range dict.Items() {
		k, ok := starlark.AsString(item[0])
		if !ok {
			return nil, fmt.Errorf("%s keys must be strings", accountsGlobal)
		}
		val, ok := starlark.AsString(item[1])
		if !ok {
			return nil, fmt.Errorf("%s values must be strings", accountsGlobal)
		}
		m[k] = val
	}
	return m, nil
}
