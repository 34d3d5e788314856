package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/store"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

func TestIngestAndSearch_EndToEnd(t *testing.T) {
	// Given: a project with two documents in a folder
	dir := newProject(t)
	docs := filepath.Join(dir, "docs")
	writeFile(t, docs, "solar.md", "Solar panels convert sunlight into electricity using photovoltaic cells.")
	writeFile(t, docs, "tides.md", "Tidal turbines harvest energy from ocean currents twice a day.")

	// When: ingesting the folder
	out, err := run(t, dir, "", "ingest", docs)

	// Then: both documents are reported as changed
	require.NoError(t, err, out)
	assert.Contains(t, out, "2 seen, 2 changed, 0 failed")

	// When: searching as JSON
	out, err = run(t, dir, "", "search", "ocean", "tidal", "--json")
	require.NoError(t, err, out)

	// Then: the tidal document ranks first with a citation
	var results []search.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.NotEmpty(t, results)
	assert.Equal(t, "tides.md", results[0].Citation.Title)
	assert.Equal(t, filepath.Join(docs, "tides.md"), results[0].Citation.Source)
	assert.LessOrEqual(t, results[0].Score, 1.0)
}

func TestIngest_UnchangedFileIsSkipped(t *testing.T) {
	dir := newProject(t)
	path := writeFile(t, dir, "note.txt", "Wind farms produce power when the wind blows.")

	out, err := run(t, dir, "", "ingest", path)
	require.NoError(t, err, out)
	assert.Contains(t, out, "ingested")

	out, err = run(t, dir, "", "ingest", path, "--json")
	require.NoError(t, err, out)
	var res index.IngestResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Changed)
	assert.Equal(t, 1, res.DocVersion)
}

func TestIngest_Stdin(t *testing.T) {
	dir := newProject(t)

	out, err := run(t, dir, "Hydro dams store water at height.", "ingest", "--stdin", "--title", "Hydro", "--source", "notes", "--tag", "energy")
	require.NoError(t, err, out)

	out, err = run(t, dir, "", "docs", "--json")
	require.NoError(t, err, out)
	var docs []store.Document
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, index.DocID("Hydro", "notes"), docs[0].DocID)
	assert.Equal(t, []string{"energy"}, docs[0].Tags)
	assert.Equal(t, "internal", docs[0].Classification)
}

func TestIngest_StdinRequiresNoPaths(t *testing.T) {
	dir := newProject(t)
	_, err := run(t, dir, "x", "ingest", "--stdin", "a.txt")
	assert.Error(t, err)
}

func TestIngest_FolderWithFailureFailsCommand(t *testing.T) {
	// Given: one good file and one empty file
	dir := newProject(t)
	docs := filepath.Join(dir, "docs")
	writeFile(t, docs, "good.md", "Geothermal plants tap heat from the earth.")
	writeFile(t, docs, "empty.md", "   \n")

	// When: ingesting the folder
	out, err := run(t, dir, "", "ingest", docs)

	// Then: the run is partial and the command fails naming the file
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "empty.md")
}

func TestIngest_InvalidClassificationRejected(t *testing.T) {
	dir := newProject(t)
	path := writeFile(t, dir, "a.md", "content")

	_, err := run(t, dir, "", "ingest", path, "--classification", "secret")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "classification")
}

func TestIngest_TabularWithContract(t *testing.T) {
	dir := newProject(t)
	csv := writeFile(t, dir, "plants.csv", "name,capacity\nAlpha,10\nBeta,2.5\n")
	contract := writeFile(t, dir, "plants.contract.yaml", `
version: 1
columns:
  - name: name
    type: string
    required: true
    unique: true
  - name: capacity
    type: float
`)

	out, err := run(t, dir, "", "ingest", csv, "--contract", contract)

	require.NoError(t, err, out)
	assert.Contains(t, out, "validation")
	assert.Contains(t, out, "pass")
}

func TestDeleteAndEvents(t *testing.T) {
	dir := newProject(t)
	path := writeFile(t, dir, "gone.md", "Biomass burns organic matter.")
	_, err := run(t, dir, "", "ingest", path)
	require.NoError(t, err)
	docID := index.DocID("gone.md", path)

	out, err := run(t, dir, "", "delete", docID)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Deleted "+docID)

	_, err = run(t, dir, "", "delete", docID)
	assert.Error(t, err)

	// Lineage survives deletion.
	out, err = run(t, dir, "", "events", docID, "--json")
	require.NoError(t, err, out)
	var events []store.IngestEvent
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 1)
	assert.True(t, events[0].Changed)
}

func TestTag_UpdatesMetadata(t *testing.T) {
	dir := newProject(t)
	path := writeFile(t, dir, "a.md", "Nuclear fission splits atoms.")
	_, err := run(t, dir, "", "ingest", path)
	require.NoError(t, err)
	docID := index.DocID("a.md", path)

	out, err := run(t, dir, "", "tag", docID, "--classification", "Restricted", "--tag", "b", "--tag", "a")
	require.NoError(t, err, out)
	assert.Contains(t, out, "restricted")

	_, err = run(t, dir, "", "tag", docID, "--retention", "forever")
	assert.Error(t, err)
}

func TestReplay_ForceKeepsVersion(t *testing.T) {
	dir := newProject(t)
	path := writeFile(t, dir, "a.md", "Batteries store energy chemically.")
	_, err := run(t, dir, "", "ingest", path)
	require.NoError(t, err)

	out, err := run(t, dir, "", "replay", "--force", "--json")
	require.NoError(t, err, out)
	var sum index.RunSummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, store.RunKindReplay, sum.Kind)
	assert.Equal(t, store.RunSucceeded, sum.Status)
	assert.Equal(t, 1, sum.Seen)
	assert.Equal(t, 0, sum.Changed)

	_, err = run(t, dir, "", "replay", "missing-id")
	assert.Error(t, err)
}

func TestStatusAndReindex_AfterDimensionChange(t *testing.T) {
	// Given: a corpus embedded at 64 dimensions
	dir := newProject(t)
	path := writeFile(t, dir, "a.md", "Hydrogen fuel cells combine hydrogen and oxygen.")
	_, err := run(t, dir, "", "ingest", path)
	require.NoError(t, err)

	out, err := run(t, dir, "", "reindex")
	require.NoError(t, err, out)
	assert.Contains(t, out, "already matches")

	// When: the configured dimension changes
	t.Setenv("AMANRAG_EMBEDDINGS_DIMENSIONS", "32")

	// Then: status reports the mismatch without rebuilding
	out, err = run(t, dir, "", "status", "--json")
	require.NoError(t, err, out)
	var info output.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.False(t, info.Compatible)
	assert.Equal(t, 64, info.Stored.Dim)
	assert.Equal(t, 32, info.Current.Dim)
	assert.Equal(t, 1, info.Counts.Documents)

	// And reindex rebuilds to the new width
	out, err = run(t, dir, "", "reindex")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Index rebuilt")

	out, err = run(t, dir, "", "status", "--json")
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.True(t, info.Compatible)
	assert.Equal(t, 32, info.Stored.Dim)
}

func TestConfigInit_TemplateLoads(t *testing.T) {
	// Given: a project without config
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	dir := t.TempDir()

	// When: writing the template
	out, err := run(t, dir, "", "config", "init")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Created")

	// Then: it loads and validates
	out, err = run(t, dir, "", "config", "show")
	require.NoError(t, err, out)
	assert.Contains(t, out, "size_chars: 1200")
	assert.Contains(t, out, "lexical_source: native")

	out, err = run(t, dir, "", "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestVersionCmd(t *testing.T) {
	dir := newProject(t)

	out, err := run(t, dir, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "amanrag")
	assert.Contains(t, out, "commit")

	out, err = run(t, dir, "", "version", "--json")
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info.Version)
	assert.Equal(t, version.GetInfo().Components, info.Components)

	out, err = run(t, dir, "", "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Short()+"\n", out)
}

func TestSearch_EmptyCorpus(t *testing.T) {
	dir := newProject(t)

	out, err := run(t, dir, "", "search", "anything")

	require.NoError(t, err)
	assert.Contains(t, out, "No results")
}

func TestProfileFlags_WriteFiles(t *testing.T) {
	dir := newProject(t)
	cpu := filepath.Join(t.TempDir(), "cpu.prof")
	heap := filepath.Join(t.TempDir(), "heap.prof")

	_, err := run(t, dir, "", "--profile-cpu", cpu, "--profile-mem", heap, "search", "anything")
	require.NoError(t, err)

	assert.FileExists(t, cpu)
	assert.FileExists(t, heap)
}

func TestDoctor_Healthy(t *testing.T) {
	dir := newProject(t)

	out, err := run(t, dir, "", "doctor")

	require.NoError(t, err, out)
	assert.Contains(t, out, "[PASS] store")
	assert.Contains(t, out, "[PASS] embedder")
	assert.Contains(t, out, "Status: READY")
}

func TestLogs_TailsAndFilters(t *testing.T) {
	dir := newProject(t)
	logFile := writeFile(t, t.TempDir(), "amanrag.log",
		`{"time":"2026-01-02T03:04:05Z","level":"INFO","msg":"ingest_committed","doc_id":"a"}`+"\n"+
			`{"time":"2026-01-02T03:04:06Z","level":"WARN","msg":"vector_scoring_degraded"}`+"\n")

	out, err := run(t, dir, "", "logs", "--file", logFile, "--level", "warn")
	require.NoError(t, err)
	assert.Contains(t, out, "vector_scoring_degraded")
	assert.NotContains(t, out, "ingest_committed")

	_, err = run(t, dir, "", "logs", "--file", filepath.Join(dir, "missing.log"))
	assert.ErrorContains(t, err, "no log file")
}
