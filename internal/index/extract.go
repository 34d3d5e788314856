package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// DefaultMaxFileBytes bounds files read by IngestFile.
const DefaultMaxFileBytes = 32 << 20

// contractSuffixes are sidecar names checked next to a tabular file.
var contractSuffixes = []string{".contract.yaml", ".contract.yml", ".contract.json"}

// FileOptions controls IngestFile.
type FileOptions struct {
	// Title defaults to the file name.
	Title    string
	Metadata store.Metadata
	// Contract overrides any sidecar contract for tabular files.
	Contract []byte
	Force    bool
	RunID    string
	MaxBytes int64
}

// ContentTypeFor maps a file extension to a content type.
func ContentTypeFor(path string) store.ContentType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return store.ContentPDF
	case ".csv", ".tsv":
		return store.ContentTabular
	default:
		return store.ContentText
	}
}

// IsContractSidecar reports whether path is a contract next to a table.
func IsContractSidecar(path string) bool {
	lower := strings.ToLower(path)
	for _, suffix := range contractSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// IngestFile extracts text from path and ingests it with Source set to the
// absolute path.
func (p *Pipeline) IngestFile(ctx context.Context, path string, opts FileOptions) (*IngestResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, amerrors.ValidationError("path", err.Error())
	}
	contentType := ContentTypeFor(abs)

	text, err := ExtractFile(abs, opts.MaxBytes)
	if err != nil {
		return nil, err
	}

	req := IngestRequest{
		Title:       opts.Title,
		Source:      abs,
		Content:     text,
		ContentType: contentType,
		Metadata:    opts.Metadata,
		Contract:    opts.Contract,
		Force:       opts.Force,
		RunID:       opts.RunID,
	}
	if req.Title == "" {
		req.Title = filepath.Base(abs)
	}
	if contentType == store.ContentTabular && req.Contract == nil {
		if req.Contract, err = readSidecar(abs); err != nil {
			return nil, err
		}
	}
	return p.Ingest(ctx, req)
}

// ExtractFile reads path and returns its text. PDFs are extracted page by
// page; everything else must be valid UTF-8.
func ExtractFile(path string, maxBytes int64) (string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", amerrors.New(amerrors.ErrCodeFileNotFound, "file not found", err).WithDetail("path", path)
	}
	if err != nil {
		return "", amerrors.New(amerrors.ErrCodeUnreadableContent, "failed to stat file", err).WithDetail("path", path)
	}
	if info.IsDir() {
		return "", amerrors.ValidationError("path", "is a directory")
	}
	if info.Size() > maxBytes {
		return "", amerrors.New(amerrors.ErrCodeFileTooLarge,
			fmt.Sprintf("file is %d bytes, limit is %d", info.Size(), maxBytes), nil).WithDetail("path", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", amerrors.New(amerrors.ErrCodeUnreadableContent, "failed to read file", err).WithDetail("path", path)
	}

	if ContentTypeFor(path) == store.ContentPDF {
		return extractPDF(data, path)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", amerrors.New(amerrors.ErrCodeUnreadableContent, "file is not valid UTF-8", nil).WithDetail("path", path)
	}
	return string(data), nil
}

// extractPDF joins the plain text of every page with blank lines so pages
// chunk as separate paragraphs.
func extractPDF(data []byte, path string) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", amerrors.New(amerrors.ErrCodeUnreadableContent, "failed to open PDF", err).WithDetail("path", path)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", amerrors.New(amerrors.ErrCodeUnreadableContent,
				fmt.Sprintf("failed to extract PDF page %d", i), err).WithDetail("path", path)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

func readSidecar(path string) ([]byte, error) {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, suffix := range contractSuffixes {
		for _, candidate := range []string{path + suffix, base + suffix} {
			data, err := os.ReadFile(candidate)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, amerrors.New(amerrors.ErrCodeUnreadableContent, "failed to read contract", err).
					WithDetail("path", candidate)
			}
			return data, nil
		}
	}
	return nil, nil
}
