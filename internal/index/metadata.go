package index

import (
	"fmt"
	"slices"
	"strings"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// Allowed metadata values.
var (
	Classifications = []string{"public", "internal", "confidential", "restricted"}
	Retentions      = []string{"ephemeral", "standard", "extended", "permanent"}
)

const (
	DefaultClassification = "internal"
	DefaultRetention      = "standard"
)

// NormalizeMetadata applies defaults and rejects values outside the allowed
// sets. Tags are trimmed, blanks dropped and duplicates removed in order.
func NormalizeMetadata(md store.Metadata) (store.Metadata, error) {
	out := store.Metadata{
		Classification: strings.ToLower(strings.TrimSpace(md.Classification)),
		Retention:      strings.ToLower(strings.TrimSpace(md.Retention)),
	}
	if out.Classification == "" {
		out.Classification = DefaultClassification
	}
	if out.Retention == "" {
		out.Retention = DefaultRetention
	}
	if !slices.Contains(Classifications, out.Classification) {
		return store.Metadata{}, metadataError("classification", md.Classification, Classifications)
	}
	if !slices.Contains(Retentions, out.Retention) {
		return store.Metadata{}, metadataError("retention", md.Retention, Retentions)
	}

	seen := make(map[string]bool, len(md.Tags))
	for _, tag := range md.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out.Tags = append(out.Tags, tag)
	}
	return out, nil
}

func metadataError(field, value string, allowed []string) error {
	return amerrors.New(amerrors.ErrCodeInvalidMetadata,
		fmt.Sprintf("invalid %s %q (allowed: %s)", field, value, strings.Join(allowed, ", ")), nil).
		WithDetail("field", field)
}

func metadataEqual(a, b store.Metadata) bool {
	return a.Classification == b.Classification &&
		a.Retention == b.Retention &&
		slices.Equal(a.Tags, b.Tags)
}
