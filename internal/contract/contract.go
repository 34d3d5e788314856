package contract

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// DefaultMaxBytes bounds the size of a contract document.
const DefaultMaxBytes = 64 * 1024

// Column declares one expected column.
type Column struct {
	Name     string     `yaml:"name" json:"name"`
	Type     ColumnType `yaml:"type" json:"type"`
	Required bool       `yaml:"required" json:"required"`
	Unique   bool       `yaml:"unique" json:"unique"`
	// MaxNullFraction is the largest tolerated share of blank values; nil means unbounded.
	MaxNullFraction *float64 `yaml:"max_null_fraction" json:"max_null_fraction,omitempty"`
}

// Contract is a validated, declarative schema for a tabular source.
type Contract struct {
	Version int      `yaml:"version" json:"version"`
	Columns []Column `yaml:"columns" json:"columns"`
	// Strict rejects columns not declared in Columns.
	Strict  bool `yaml:"strict" json:"strict"`
	MinRows int  `yaml:"min_rows" json:"min_rows"`
}

// SHA256 returns the hex digest of a raw contract document.
func SHA256(doc []byte) string {
	sum := sha256.Sum256(doc)
	return hex.EncodeToString(sum[:])
}

// Parse decodes and checks an untrusted contract document (YAML or JSON).
// Unknown fields, oversize input, and semantic problems are returned as
// validation errors naming the field; a partially valid contract is never returned.
func Parse(doc []byte, maxBytes int) (*Contract, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(doc) > maxBytes {
		return nil, amerrors.New(amerrors.ErrCodeContractTooLarge,
			fmt.Sprintf("contract is %d bytes, limit is %d", len(doc), maxBytes), nil).
			WithDetail("field", "contract")
	}
	if len(bytes.TrimSpace(doc)) == 0 {
		return nil, amerrors.ValidationError("contract", "document is empty")
	}

	dec := yaml.NewDecoder(bytes.NewReader(doc))
	dec.KnownFields(true)

	var c Contract
	if err := dec.Decode(&c); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "contract: malformed document", err).
			WithDetail("field", "contract")
	}
	// A second document in the stream is ambiguous.
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, amerrors.ValidationError("contract", "expected a single document")
	}

	if err := c.check(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Contract) check() error {
	if c.Version < 1 {
		return amerrors.ValidationError("version", fmt.Sprintf("must be >= 1, got %d", c.Version))
	}
	if len(c.Columns) == 0 {
		return amerrors.ValidationError("columns", "at least one column is required")
	}
	if c.MinRows < 0 {
		return amerrors.ValidationError("min_rows", fmt.Sprintf("must be >= 0, got %d", c.MinRows))
	}

	seen := make(map[string]bool, len(c.Columns))
	for i, col := range c.Columns {
		field := fmt.Sprintf("columns[%d]", i)
		name := normalizeName(col.Name)
		if name == "" {
			return amerrors.ValidationError(field+".name", "must not be empty")
		}
		if seen[name] {
			return amerrors.ValidationError(field+".name", fmt.Sprintf("duplicate column %q", col.Name))
		}
		seen[name] = true

		if col.Type == "" {
			c.Columns[i].Type = TypeString
		} else if !col.Type.Valid() {
			return amerrors.ValidationError(field+".type", fmt.Sprintf("unknown type %q", col.Type))
		}
		if f := col.MaxNullFraction; f != nil && (*f < 0 || *f > 1) {
			return amerrors.ValidationError(field+".max_null_fraction", fmt.Sprintf("must be in [0,1], got %g", *f))
		}
	}
	return nil
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
