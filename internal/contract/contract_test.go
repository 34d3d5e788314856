package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func mustSnapshot(t *testing.T, csv string) *Snapshot {
	t.Helper()
	snap, err := ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	return snap
}

func mustParse(t *testing.T, doc string) *Contract {
	t.Helper()
	c, err := Parse([]byte(doc), 0)
	require.NoError(t, err)
	return c
}

// =============================================================================
// Inference
// =============================================================================

func TestInfer_OrderOfPredicates(t *testing.T) {
	headers := []string{"flag", "count", "price", "day", "at", "name", "empty", "binary"}
	rows := [][]string{
		{"true", "1", "1.5", "2024-01-02", "2024-01-02T10:00:00Z", "alice", "", "1"},
		{"No", "-7", "2", "2024-02-03", "2024-01-02 11:00:00", "bob", " ", "0"},
		{"", "", "", "", "", "", "", ""},
	}

	types := Infer(headers, rows)

	assert.Equal(t, []ColumnType{
		TypeBool, TypeInt, TypeFloat, TypeDate, TypeTimestamp, TypeString, TypeString, TypeInt,
	}, types)
}

func TestInfer_MixedValuesFallBackToString(t *testing.T) {
	types := Infer([]string{"c"}, [][]string{{"12"}, {"2024-01-01"}})
	assert.Equal(t, []ColumnType{TypeString}, types)
}

func TestFingerprint_NormalizesNamesAndTracksTypes(t *testing.T) {
	a := Fingerprint([]string{"ID", " Name "}, []ColumnType{TypeInt, TypeString})
	b := Fingerprint([]string{"id", "name"}, []ColumnType{TypeInt, TypeString})
	c := Fingerprint([]string{"id", "name"}, []ColumnType{TypeFloat, TypeString})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestFingerprint_HashesJoinedLines(t *testing.T) {
	sum := sha256.Sum256([]byte("id:int\nname:string"))
	assert.Equal(t, hex.EncodeToString(sum[:]),
		Fingerprint([]string{"ID", "name"}, []ColumnType{TypeInt, TypeString}))
}

func TestInfer_NonFiniteNumbersAreText(t *testing.T) {
	types := Infer([]string{"nan", "inf", "mixed", "huge"}, [][]string{
		{"NaN", "Inf", "1.5", "1e400"},
		{"nan", "-Infinity", "+inf", "2"},
	})
	assert.Equal(t, []ColumnType{TypeString, TypeString, TypeString, TypeString}, types)
}

func TestReadCSV_NoHeaderIsContentError(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	require.Error(t, err)
	assert.Equal(t, amerrors.CategoryContent, amerrors.GetCategory(err))
}

func TestReadCSV_PadsShortRows(t *testing.T) {
	snap := mustSnapshot(t, "a,b,c\n1,2\n")
	require.Len(t, snap.Rows, 1)
	assert.Equal(t, []string{"1", "2", ""}, snap.Rows[0])
}

func TestReadCSV_WideRowIsContentError(t *testing.T) {
	// Given: the third line carries a field the header does not name
	_, err := ReadCSV(strings.NewReader("a,b\n1,2\n3,4,5\n"))

	// Then: the row is reported instead of silently truncated
	require.Error(t, err)
	assert.True(t, amerrors.HasCode(err, amerrors.ErrCodeUnreadableContent))
	assert.Contains(t, err.Error(), "line 3 has 3 fields; header has 2")
	ae, ok := amerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "3", ae.Details["line"])
}

// =============================================================================
// Parsing
// =============================================================================

func TestParse_YAMLAndJSON(t *testing.T) {
	y := mustParse(t, "version: 1\nstrict: true\ncolumns:\n  - {name: id, type: int, required: true, unique: true}\n")
	j := mustParse(t, `{"version": 1, "strict": true, "columns": [{"name": "id", "type": "int", "required": true, "unique": true}]}`)

	assert.Equal(t, y, j)
	assert.True(t, y.Strict)
	assert.Equal(t, TypeInt, y.Columns[0].Type)
}

func TestParse_DefaultsMissingTypeToString(t *testing.T) {
	c := mustParse(t, "version: 2\ncolumns:\n  - name: note\n")
	assert.Equal(t, TypeString, c.Columns[0].Type)
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		code  string
		field string
	}{
		{"empty", "  ", amerrors.ErrCodeInvalidInput, "contract"},
		{"malformed", "version: [1", amerrors.ErrCodeInvalidInput, "contract"},
		{"unknown field", "version: 1\ncolumns: [{name: a}]\nextra: true\n", amerrors.ErrCodeInvalidInput, "contract"},
		{"bad version", "version: 0\ncolumns: [{name: a}]\n", amerrors.ErrCodeInvalidInput, "version"},
		{"no columns", "version: 1\n", amerrors.ErrCodeInvalidInput, "columns"},
		{"unknown type", "version: 1\ncolumns: [{name: a, type: money}]\n", amerrors.ErrCodeInvalidInput, "columns[0].type"},
		{"dup column", "version: 1\ncolumns: [{name: A}, {name: a}]\n", amerrors.ErrCodeInvalidInput, "columns[1].name"},
		{"null fraction", "version: 1\ncolumns: [{name: a, max_null_fraction: 1.5}]\n", amerrors.ErrCodeInvalidInput, "columns[0].max_null_fraction"},
		{"negative rows", "version: 1\nmin_rows: -1\ncolumns: [{name: a}]\n", amerrors.ErrCodeInvalidInput, "min_rows"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.doc), 0)

			require.Error(t, err)
			assert.Nil(t, c)
			ae, ok := amerrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, ae.Code)
			assert.Equal(t, tt.field, ae.Details["field"])
		})
	}
}

func TestParse_SizeBound(t *testing.T) {
	doc := "version: 1\ncolumns: [{name: a}]\n# " + strings.Repeat("x", 200)

	_, err := Parse([]byte(doc), 100)

	assert.Equal(t, amerrors.ErrCodeContractTooLarge, amerrors.GetCode(err))
}

// =============================================================================
// Validation
// =============================================================================

func TestValidate_MissingRequiredColumnNamesIt(t *testing.T) {
	// Given: a CSV without the required "email" column
	snap := mustSnapshot(t, "id,name\n1,alice\n2,bob\n")
	c := mustParse(t, "version: 1\ncolumns:\n  - {name: id, type: int}\n  - {name: email, required: true}\n")

	// When: validating
	res := Validate(snap, c)

	// Then: it fails and the error names the column
	assert.Equal(t, StatusFail, res.Status)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, RuleMissingRequired, res.Findings[0].Rule)
	err := res.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")
	assert.Equal(t, amerrors.ErrCodeContractViolation, amerrors.GetCode(err))
}

func TestValidate_UniqueColumnWithDuplicatesFails(t *testing.T) {
	snap := mustSnapshot(t, "sku,qty\nA1,3\nA2,4\nA1,5\n,6\n,7\n")
	c := mustParse(t, "version: 1\ncolumns:\n  - {name: sku, unique: true}\n")

	res := Validate(snap, c)

	assert.Equal(t, StatusFail, res.Status)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, RuleDuplicateValue, res.Findings[0].Rule)
	assert.Contains(t, res.Findings[0].Message, `"A1"`)
}

func TestValidate_BlankValuesDoNotCountAsDuplicates(t *testing.T) {
	snap := mustSnapshot(t, "sku\nA1\n\n\nA2\n")
	c := mustParse(t, "version: 1\ncolumns:\n  - {name: sku, unique: true}\n")

	assert.Equal(t, StatusPass, Validate(snap, c).Status)
}

func TestValidate_WideningAllowedNarrowingRejected(t *testing.T) {
	tests := []struct {
		name     string
		csv      string
		expected ColumnType
		status   Status
	}{
		{"int as float", "v\n1\n2\n", TypeFloat, StatusPass},
		{"date as timestamp", "v\n2024-01-01\n", TypeTimestamp, StatusPass},
		{"anything as string", "v\n1.5\n", TypeString, StatusPass},
		{"float as int", "v\n1.5\n2\n", TypeInt, StatusFail},
		{"timestamp as date", "v\n2024-01-01T00:00:00Z\n", TypeDate, StatusFail},
		{"string as bool", "v\nmaybe\n", TypeBool, StatusFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Contract{Version: 1, Columns: []Column{{Name: "v", Type: tt.expected}}}
			res := Validate(mustSnapshot(t, tt.csv), c)
			assert.Equal(t, tt.status, res.Status)
		})
	}
}

func TestValidate_StrictModeRejectsUnexpectedColumns(t *testing.T) {
	snap := mustSnapshot(t, "id,secret\n1,x\n")
	c := mustParse(t, "version: 1\nstrict: true\ncolumns: [{name: ID, type: int}]\n")

	res := Validate(snap, c)

	require.Len(t, res.Findings, 1)
	assert.Equal(t, RuleUnexpectedColumn, res.Findings[0].Rule)
	assert.Equal(t, "secret", res.Findings[0].Column)
}

func TestValidate_GlobalChecksAreIndependentFindings(t *testing.T) {
	// Given: too few rows and too many nulls
	snap := mustSnapshot(t, "id,score\n1,\n2,\n3,9\n")
	c := mustParse(t, "version: 1\nmin_rows: 10\ncolumns:\n  - {name: score, type: int, max_null_fraction: 0.5}\n")

	res := Validate(snap, c)

	rules := []Rule{}
	for _, f := range res.Findings {
		rules = append(rules, f.Rule)
	}
	assert.ElementsMatch(t, []Rule{RuleMaxNullFraction, RuleMinRows}, rules)
	assert.Equal(t, StatusFail, res.Status)
}

func TestValidate_NilContractOnlyFingerprints(t *testing.T) {
	snap := mustSnapshot(t, "a,b\n1,x\n")

	res := Validate(snap, nil)

	assert.Equal(t, StatusPass, res.Status)
	assert.Equal(t, []ColumnType{TypeInt, TypeString}, res.InferredTypes)
	assert.Equal(t, Fingerprint(snap.Headers, res.InferredTypes), res.Fingerprint)
	assert.NoError(t, res.Err())
}
