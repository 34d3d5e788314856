// Package contract infers column types for tabular sources and validates
// them against an optional declared schema contract.
package contract

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// ColumnType is an inferred or declared column type.
type ColumnType string

const (
	TypeString    ColumnType = "string"
	TypeInt       ColumnType = "int"
	TypeFloat     ColumnType = "float"
	TypeBool      ColumnType = "bool"
	TypeDate      ColumnType = "date"
	TypeTimestamp ColumnType = "timestamp"
)

// Valid reports whether t is one of the known column types.
func (t ColumnType) Valid() bool {
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeBool, TypeDate, TypeTimestamp:
		return true
	}
	return false
}

// Snapshot is a parsed tabular source: a header row plus data rows.
type Snapshot struct {
	Headers []string
	Rows    [][]string
}

// Text renders the snapshot as tab-separated lines for chunking.
func (s *Snapshot) Text() string {
	var sb strings.Builder
	sb.WriteString(strings.Join(s.Headers, "\t"))
	for _, row := range s.Rows {
		sb.WriteByte('\n')
		sb.WriteString(strings.Join(row, "\t"))
	}
	return sb.String()
}

// ReadCSV parses comma-separated input.
func ReadCSV(r io.Reader) (*Snapshot, error) {
	return ReadDelimited(r, ',')
}

// ReadDelimited parses delimited input whose first record is the header row.
// Short rows are padded to the header width; a row with more fields than the
// header is a content error naming its line.
func ReadDelimited(r io.Reader, comma rune) (*Snapshot, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, amerrors.ContentError("tabular source has no header row")
	}
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeUnreadableContent, "failed to parse tabular header", err)
	}

	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	snap := &Snapshot{Headers: headers}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, amerrors.New(amerrors.ErrCodeUnreadableContent, "failed to parse tabular row", err)
		}
		if len(record) > len(headers) {
			line, _ := reader.FieldPos(0)
			return nil, amerrors.New(amerrors.ErrCodeUnreadableContent,
				fmt.Sprintf("row on line %d has %d fields; header has %d", line, len(record), len(headers)), nil).
				WithDetail("line", strconv.Itoa(line))
		}
		row := make([]string, len(headers))
		copy(row, record)
		snap.Rows = append(snap.Rows, row)
	}
	return snap, nil
}

var (
	dateLayouts      = []string{"2006-01-02"}
	timestampLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}
)

// typePredicates are tried from most to least specific.
var typePredicates = []struct {
	typ   ColumnType
	match func(string) bool
}{
	{TypeBool, isBool},
	{TypeInt, isInt},
	{TypeFloat, isFloat},
	{TypeDate, func(v string) bool { return parsesAs(v, dateLayouts) }},
	{TypeTimestamp, func(v string) bool { return parsesAs(v, timestampLayouts) }},
}

// Infer returns one type per header. A column takes the first type whose
// predicate accepts every non-blank value; all-blank columns are string.
func Infer(headers []string, rows [][]string) []ColumnType {
	types := make([]ColumnType, len(headers))
	for col := range headers {
		types[col] = inferColumn(columnValues(rows, col))
	}
	return types
}

func inferColumn(values []string) ColumnType {
	if len(values) == 0 {
		return TypeString
	}
	for _, p := range typePredicates {
		ok := true
		for _, v := range values {
			if !p.match(v) {
				ok = false
				break
			}
		}
		if ok {
			return p.typ
		}
	}
	return TypeString
}

// columnValues returns the trimmed non-blank values of column col.
func columnValues(rows [][]string, col int) []string {
	var values []string
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[col]); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func isBool(v string) bool {
	switch strings.ToLower(v) {
	case "true", "false", "yes", "no":
		return true
	}
	return false
}

func isInt(v string) bool {
	_, err := strconv.ParseInt(v, 10, 64)
	return err == nil
}

// isFloat accepts finite decimals only; NaN and Inf spellings are text.
func isFloat(v string) bool {
	f, err := strconv.ParseFloat(v, 64)
	return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
}

func parsesAs(v string, layouts []string) bool {
	for _, layout := range layouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

// Fingerprint hashes the normalized (name, type) list so that renamed,
// added, removed, or retyped columns change the value.
func Fingerprint(headers []string, types []ColumnType) string {
	lines := make([]string, len(headers))
	for i, name := range headers {
		typ := TypeString
		if i < len(types) {
			typ = types[i]
		}
		lines[i] = strings.ToLower(strings.TrimSpace(name)) + ":" + string(typ)
	}
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}
