package output

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// ExcerptRunes is the excerpt length shown per search result.
const ExcerptRunes = 160

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Results prints ranked search results with citations.
func (w *Writer) Results(query string, results []search.Result) {
	if len(results) == 0 {
		w.Warningf("No results for %q", query)
		return
	}
	w.Header(fmt.Sprintf("%d result(s) for %q", len(results), query))
	for i, r := range results {
		w.Newline()
		score := w.styles.Score.Render(fmt.Sprintf("%.3f", r.Score))
		_, _ = fmt.Fprintf(w.out, "%d. [%s] %s #%d\n", i+1, score, r.Citation.Title, r.Chunk.Idx)
		_, _ = fmt.Fprintf(w.out, "   %s\n", w.styles.Dim.Render(fmt.Sprintf(
			"%s  lexical %.3f  vector %.3f  %s v%d",
			r.Citation.Source, r.LexicalScore, r.VectorScore, r.Citation.Classification, r.Citation.DocVersion)))
		_, _ = fmt.Fprintf(w.out, "   %s\n", Excerpt(r.Chunk.Text, ExcerptRunes))
	}
}

// Ingested prints the outcome of a single ingest.
func (w *Writer) Ingested(title string, res *index.IngestResult) {
	switch {
	case res.Changed:
		w.Successf("%s ingested (doc %s v%d, %d chunks)", title, res.DocID, res.DocVersion, res.NumChunks)
	default:
		w.Statusf("➖", "%s unchanged (doc %s v%d)", title, res.DocID, res.DocVersion)
	}
	if res.Validation != nil && res.Validation.Status != "" {
		w.Field("validation", res.Validation.Status)
	}
	if res.SchemaDrifted {
		w.Warning("schema drift detected since last ingest")
	}
}

// Run prints a batch summary with failures sorted by key.
func (w *Writer) Run(sum *index.RunSummary) {
	msg := fmt.Sprintf("%s run %s: %d seen, %d changed, %d failed",
		sum.Kind, sum.Status, sum.Seen, sum.Changed, sum.Failed)
	switch sum.Status {
	case store.RunSucceeded:
		w.Success(msg)
	case store.RunPartial:
		w.Warning(msg)
	default:
		w.Error(msg)
	}
	keys := make([]string, 0, len(sum.Failures))
	for k := range sum.Failures {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		w.Status("", fmt.Sprintf("%s: %s", k, sum.Failures[k]))
	}
}

// StatusInfo is the corpus overview rendered by the status command.
type StatusInfo struct {
	Store           string           `json:"store"`
	Counts          *store.Counts    `json:"counts"`
	MutationVersion int64            `json:"mutation_version"`
	Stored          *index.Signature `json:"stored_signature,omitempty"`
	Current         index.Signature  `json:"current_signature"`
	Compatible      bool             `json:"compatible"`
}

// CorpusStatus prints a StatusInfo.
func (w *Writer) CorpusStatus(info StatusInfo) {
	w.Header("Corpus")
	w.Field("store", info.Store)
	w.Field("documents", info.Counts.Documents)
	w.Field("chunks", info.Counts.Chunks)
	w.Field("embeddings", info.Counts.Embeddings)
	w.Field("events", info.Counts.Events)
	w.Field("runs", info.Counts.Runs)
	w.Field("mutation version", info.MutationVersion)
	w.Newline()
	w.Header("Index signature")
	w.Field("current", info.Current.String())
	if info.Stored == nil {
		w.Field("stored", "none")
	} else {
		w.Field("stored", info.Stored.String())
	}
	if !info.Compatible {
		w.Warning("stored index differs from current settings; run 'amanrag reindex'")
	}
}

// Documents prints one line per document.
func (w *Writer) Documents(docs []*store.Document) {
	if len(docs) == 0 {
		w.Status("", "no documents")
		return
	}
	for _, d := range docs {
		tags := ""
		if len(d.Tags) > 0 {
			tags = " [" + strings.Join(d.Tags, ",") + "]"
		}
		_, _ = fmt.Fprintf(w.out, "%s  v%-3d %-8s %-12s %s%s\n",
			d.DocID, d.DocVersion, d.ContentType, d.Classification, d.Title, w.styles.Dim.Render(tags))
	}
}

// Events prints lineage events, newest first as given.
func (w *Writer) Events(events []*store.IngestEvent) {
	if len(events) == 0 {
		w.Status("", "no events")
		return
	}
	for _, ev := range events {
		at := time.Unix(ev.IngestedAt, 0).UTC().Format(time.RFC3339)
		mark := "="
		if ev.Changed {
			mark = "+"
		}
		line := fmt.Sprintf("%s %s %s v%d chunks=%d", at, mark, ev.DocID, ev.DocVersion, ev.NumChunks)
		if ev.ValidationStatus != "" {
			line += " validation=" + ev.ValidationStatus
		}
		if ev.SchemaDrifted {
			line += " drift"
		}
		_, _ = fmt.Fprintln(w.out, line)
		if ev.Notes != "" {
			_, _ = fmt.Fprintf(w.out, "    %s\n", w.styles.Dim.Render(ev.Notes))
		}
	}
}
