package contract

import (
	"fmt"
	"strings"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Status is the overall validation outcome.
type Status string

const (
	StatusPass Status = "pass"
	// StatusWarn is reserved; no current rule produces it.
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Rule names a validation check.
type Rule string

const (
	RuleMissingRequired  Rule = "missing_required"
	RuleUnexpectedColumn Rule = "unexpected_column"
	RuleTypeMismatch     Rule = "type_mismatch"
	RuleDuplicateValue   Rule = "duplicate_value"
	RuleMinRows          Rule = "min_rows"
	RuleMaxNullFraction  Rule = "max_null_fraction"
)

// Finding is one independent validation failure.
type Finding struct {
	Column  string `json:"column,omitempty"`
	Rule    Rule   `json:"rule"`
	Message string `json:"message"`
}

// Result is the outcome of validating a snapshot.
type Result struct {
	Status        Status
	Findings      []Finding
	InferredTypes []ColumnType
	Fingerprint   string
	RowCount      int
}

// Messages returns the finding messages in order.
func (r *Result) Messages() []string {
	out := make([]string, len(r.Findings))
	for i, f := range r.Findings {
		out[i] = f.Message
	}
	return out
}

// Err converts a failing result into a contract violation error, or nil.
func (r *Result) Err() error {
	if r.Status != StatusFail {
		return nil
	}
	err := amerrors.New(amerrors.ErrCodeContractViolation,
		"contract validation failed: "+strings.Join(r.Messages(), "; "), nil)
	if len(r.Findings) > 0 && r.Findings[0].Column != "" {
		err.WithDetail("field", r.Findings[0].Column)
	}
	return err
}

// compatible reports whether an inferred type satisfies a declared one.
// Widening (int→float, date→timestamp) and anything→string are allowed.
func compatible(inferred, expected ColumnType) bool {
	switch {
	case inferred == expected, expected == TypeString:
		return true
	case inferred == TypeInt && expected == TypeFloat:
		return true
	case inferred == TypeDate && expected == TypeTimestamp:
		return true
	}
	return false
}

// Validate infers types for snap and checks them against c. A nil contract
// only infers and fingerprints. Every rule runs; any finding fails the result.
func Validate(snap *Snapshot, c *Contract) *Result {
	types := Infer(snap.Headers, snap.Rows)
	res := &Result{
		Status:        StatusPass,
		InferredTypes: types,
		Fingerprint:   Fingerprint(snap.Headers, types),
		RowCount:      len(snap.Rows),
	}
	if c == nil {
		return res
	}

	index := make(map[string]int, len(snap.Headers))
	for i, h := range snap.Headers {
		if _, dup := index[normalizeName(h)]; !dup {
			index[normalizeName(h)] = i
		}
	}
	declared := make(map[string]bool, len(c.Columns))

	for _, col := range c.Columns {
		name := normalizeName(col.Name)
		declared[name] = true

		pos, present := index[name]
		if !present {
			if col.Required {
				res.add(col.Name, RuleMissingRequired, fmt.Sprintf("missing required column %q", col.Name))
			}
			continue
		}

		values := columnValues(snap.Rows, pos)
		// All-blank columns carry no type evidence; nulls are judged by max_null_fraction.
		if len(values) > 0 && !compatible(types[pos], col.Type) {
			res.add(col.Name, RuleTypeMismatch,
				fmt.Sprintf("column %q inferred as %s, contract expects %s", col.Name, types[pos], col.Type))
		}

		if col.Unique {
			if dup, ok := firstDuplicate(values); ok {
				res.add(col.Name, RuleDuplicateValue,
					fmt.Sprintf("column %q must be unique, value %q repeats", col.Name, dup))
			}
		}

		if col.MaxNullFraction != nil && len(snap.Rows) > 0 {
			nullFrac := float64(len(snap.Rows)-len(values)) / float64(len(snap.Rows))
			if nullFrac > *col.MaxNullFraction {
				res.add(col.Name, RuleMaxNullFraction,
					fmt.Sprintf("column %q null fraction %.3f exceeds %.3f", col.Name, nullFrac, *col.MaxNullFraction))
			}
		}
	}

	if c.Strict {
		for _, h := range snap.Headers {
			if !declared[normalizeName(h)] {
				res.add(h, RuleUnexpectedColumn, fmt.Sprintf("unexpected column %q in strict mode", h))
			}
		}
	}

	if len(snap.Rows) < c.MinRows {
		res.add("", RuleMinRows, fmt.Sprintf("expected at least %d rows, got %d", c.MinRows, len(snap.Rows)))
	}

	return res
}

func (r *Result) add(column string, rule Rule, msg string) {
	r.Findings = append(r.Findings, Finding{Column: column, Rule: rule, Message: msg})
	r.Status = StatusFail
}

func firstDuplicate(values []string) (string, bool) {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			return v, true
		}
		seen[v] = struct{}{}
	}
	return "", false
}
