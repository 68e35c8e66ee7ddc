package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge-base-service/internal/ai"
	"knowledge-base-service/internal/config"
	"knowledge-base-service/internal/crawler"
	"knowledge-base-service/models"
)

type fakeCrawler struct {
	pages []crawler.Page
	err   error
}

func (f *fakeCrawler) Crawl(ctx context.Context, req crawler.Request, logf func(string, ...any)) (*crawler.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &crawler.Result{Pages: f.pages, Strategy: crawler.StrategyWebpage}, nil
}

type fakeEmbedder struct {
	mu         sync.Mutex
	calls      int
	failCalls  map[int]error  // 1-based call number to error
	onCall     func(call int) // runs inside the call, before it returns
	dimensions int
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onCall != nil {
		f.onCall(f.calls)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.failCalls[f.calls]; err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dimensions)
		out[i][0] = float32(len(texts[i]))
	}
	return out, nil
}

type fakeEnricher struct{ prefix string }

func (f *fakeEnricher) EnrichAll(ctx context.Context, chunkTexts []string, docContext string) []string {
	out := make([]string, len(chunkTexts))
	for i, t := range chunkTexts {
		out[i] = f.prefix + t
	}
	return out
}

type fakeSummarizer struct{ err error }

func (f *fakeSummarizer) SummarizeSnippet(ctx context.Context, language, code, surrounding string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "example in " + language, nil
}

type fakeExtractor struct{ text string }

func (f *fakeExtractor) Extract(path, name string) (string, error) { return f.text, nil }

type fakeStore struct {
	mu        sync.Mutex
	sources   []models.Source
	chunks    []models.Chunk
	code      []models.CodeExample
	committed []int64
	locked    map[string]string
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{locked: make(map[string]string)}
}

func (f *fakeStore) EnsureSource(ctx context.Context, src models.Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, src)
	return nil
}

func (f *fakeStore) InsertChunkBatch(ctx context.Context, chunks []models.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeStore) InsertCodeExamples(ctx context.Context, examples []models.CodeExample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.code = append(f.code, examples...)
	return nil
}

func (f *fakeStore) CommitRevision(ctx context.Context, sourceID string, revision int64, pageCount, wordCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, revision)
	return nil
}

func (f *fakeStore) AcquireIngestLock(ctx context.Context, sourceID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, held := f.locked[sourceID]; held {
		return fmt.Errorf("source ingestion already in progress")
	}
	f.locked[sourceID] = token
	return nil
}

func (f *fakeStore) ReleaseIngestLock(ctx context.Context, sourceID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locked, sourceID)
	return nil
}

// memorySink records events in memory and flips to cancelled on demand.
type memorySink struct {
	mu        sync.Mutex
	events    []models.ProgressEvent
	cancelled bool
	// cancelAfterPhase flips the cancel flag once this phase is seen,
	// standing in for the stop endpoint
	cancelAfterPhase string
}

func (m *memorySink) Report(ctx context.Context, ev models.ProgressEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	if m.cancelAfterPhase != "" && ev.Phase == m.cancelAfterPhase {
		m.cancelled = true
	}
}

func (m *memorySink) Cancelled(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled
}

func (m *memorySink) snapshot() []models.ProgressEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ProgressEvent, len(m.events))
	copy(out, m.events)
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		VectorDimensions:       4,
		CrawlMaxPages:          500,
		DefaultChunkSize:       100,
		MinChunkSize:           10,
		EmbeddingBatchSize:     2,
		EmbeddingFailurePolicy: config.FailurePolicySkipBatch,
		CodeExampleMinChars:    40,
	}
}

func page(url string, paragraphs int) crawler.Page {
	var sb strings.Builder
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&sb, "Paragraph %d with enough words to pass the minimum chunk size filter easily.\n\n", i)
	}
	return crawler.Page{URL: url, Title: "Page " + url, Content: sb.String()}
}

func newTestCoordinator(cfg *config.Config, cr PageCrawler, emb Embedder, st VectorStore) *Coordinator {
	return NewCoordinator(cfg, cr, emb, &fakeEnricher{}, &fakeSummarizer{}, &fakeExtractor{}, st)
}

func TestRunCompletesWithMonotonicProgress(t *testing.T) {
	cfg := testConfig()
	st := newFakeStore()
	emb := &fakeEmbedder{dimensions: 4}
	co := newTestCoordinator(cfg, &fakeCrawler{pages: []crawler.Page{page("https://docs.example.com/a", 6)}}, emb, st)

	sink := &memorySink{}
	job := models.IngestJob{
		JobID:   "job-1",
		Request: models.IngestRequest{URL: "https://docs.example.com/a"},
	}
	require.NoError(t, co.Run(context.Background(), job, sink))

	events := sink.snapshot()
	require.NotEmpty(t, events)

	last := 0
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.Percentage, last, "percentage regressed at phase %s", ev.Phase)
		last = ev.Percentage
	}
	final := events[len(events)-1]
	assert.Equal(t, models.PhaseCompleted, final.Phase)
	assert.Equal(t, 100, final.Percentage)
	assert.Equal(t, models.OutcomeSuccess, final.Outcome)
	assert.Equal(t, len(st.chunks), final.ChunksStored)
	assert.NotEmpty(t, st.chunks)
	require.Len(t, st.committed, 1)
	assert.Empty(t, st.locked, "lock must be released after the run")
}

func TestRunSkipsFailedBatchUnderSkipPolicy(t *testing.T) {
	cfg := testConfig()
	st := newFakeStore()
	emb := &fakeEmbedder{
		dimensions: 4,
		failCalls:  map[int]error{2: fmt.Errorf("%w: quota", ai.ErrEmbeddingUnavailable)},
	}
	co := newTestCoordinator(cfg, &fakeCrawler{pages: []crawler.Page{page("https://docs.example.com/a", 12)}}, emb, st)

	sink := &memorySink{}
	job := models.IngestJob{JobID: "job-2", Request: models.IngestRequest{URL: "https://docs.example.com/a"}}
	require.NoError(t, co.Run(context.Background(), job, sink))

	events := sink.snapshot()
	final := events[len(events)-1]
	assert.Equal(t, models.PhaseCompleted, final.Phase)
	assert.Less(t, final.ChunksStored, 12, "skipped batch must not be counted")
	assert.NotEmpty(t, st.chunks)

	skipped := false
	for _, ev := range events {
		if strings.Contains(ev.Message, "skipped") {
			skipped = true
		}
	}
	assert.True(t, skipped, "expected a skip notice on the progress stream")
}

func TestRunFailsJobUnderFailPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.EmbeddingFailurePolicy = config.FailurePolicyFailJob
	st := newFakeStore()
	emb := &fakeEmbedder{
		dimensions: 4,
		failCalls:  map[int]error{2: fmt.Errorf("%w: quota", ai.ErrEmbeddingUnavailable)},
	}
	co := newTestCoordinator(cfg, &fakeCrawler{pages: []crawler.Page{page("https://docs.example.com/a", 12)}}, emb, st)

	sink := &memorySink{}
	job := models.IngestJob{JobID: "job-3", Request: models.IngestRequest{URL: "https://docs.example.com/a"}}
	err := co.Run(context.Background(), job, sink)
	require.Error(t, err)

	events := sink.snapshot()
	final := events[len(events)-1]
	assert.Equal(t, models.PhaseFailed, final.Phase)
	assert.Equal(t, models.OutcomeFailure, final.Outcome)
	assert.NotEmpty(t, final.Error)
	// the first batch landed before the failure and stays queryable
	assert.NotEmpty(t, st.chunks)
	assert.Len(t, st.committed, 1, "partial revision must be committed")
}

func TestRunStopsBetweenBatches(t *testing.T) {
	cfg := testConfig()
	st := newFakeStore()
	emb := &fakeEmbedder{dimensions: 4}
	co := newTestCoordinator(cfg, &fakeCrawler{pages: []crawler.Page{page("https://docs.example.com/a", 12)}}, emb, st)

	sink := &memorySink{cancelAfterPhase: models.PhaseSourceCreation}

	job := models.IngestJob{JobID: "job-4", Request: models.IngestRequest{URL: "https://docs.example.com/a"}}
	require.NoError(t, co.Run(context.Background(), job, sink))

	events := sink.snapshot()
	final := events[len(events)-1]
	assert.Equal(t, models.PhaseCancelled, final.Phase)
	assert.Equal(t, models.OutcomeCancelled, final.Outcome)
	assert.Empty(t, st.chunks, "no batch may start after the stop request")
	assert.Empty(t, st.committed)
	assert.Empty(t, st.locked)
}

func TestRunCancelLetsInFlightBatchFinish(t *testing.T) {
	cfg := testConfig()
	st := newFakeStore()
	sink := &memorySink{}
	emb := &fakeEmbedder{dimensions: 4}
	// the stop request arrives while batch 2 is on the wire; the call must
	// still return vectors and the batch must land before the job stops
	emb.onCall = func(call int) {
		if call == 2 {
			sink.mu.Lock()
			sink.cancelled = true
			sink.mu.Unlock()
		}
	}
	co := newTestCoordinator(cfg, &fakeCrawler{pages: []crawler.Page{page("https://docs.example.com/a", 12)}}, emb, st)

	job := models.IngestJob{JobID: "job-9", Request: models.IngestRequest{URL: "https://docs.example.com/a"}}
	require.NoError(t, co.Run(context.Background(), job, sink))

	events := sink.snapshot()
	final := events[len(events)-1]
	assert.Equal(t, models.PhaseCancelled, final.Phase)
	assert.Equal(t, models.OutcomeCancelled, final.Outcome)

	assert.Equal(t, 2, emb.calls, "batch 3 must not start after the stop request")
	assert.Len(t, st.chunks, 4, "both completed batches must be persisted")
	assert.Len(t, st.committed, 1, "stored batches must be committed as a partial revision")
	assert.Empty(t, st.locked)
}

func TestRunIngestsUploadedFile(t *testing.T) {
	cfg := testConfig()
	st := newFakeStore()
	emb := &fakeEmbedder{dimensions: 4}
	co := NewCoordinator(cfg, &fakeCrawler{}, emb, &fakeEnricher{}, &fakeSummarizer{},
		&fakeExtractor{text: "A document about storage engines. It explains compaction levels and write amplification in detail."}, st)

	sink := &memorySink{}
	job := models.IngestJob{
		JobID: "job-5",
		Request: models.IngestRequest{
			FilePath:   "/tmp/uploads/doc.pdf",
			FileName:   "doc.pdf",
			SourceType: models.SourceTypeFile,
		},
	}
	require.NoError(t, co.Run(context.Background(), job, sink))

	require.Len(t, st.sources, 1)
	assert.Equal(t, "file:doc.pdf", st.sources[0].SourceID)
	assert.Equal(t, models.SourceTypeFile, st.sources[0].SourceType)
	assert.NotEmpty(t, st.chunks)
}

func TestRunContextualEmbeddingsRewriteChunks(t *testing.T) {
	cfg := testConfig()
	st := newFakeStore()
	emb := &fakeEmbedder{dimensions: 4}
	co := NewCoordinator(cfg, &fakeCrawler{pages: []crawler.Page{page("https://docs.example.com/a", 4)}},
		emb, &fakeEnricher{prefix: "ctx: "}, &fakeSummarizer{}, &fakeExtractor{}, st)

	sink := &memorySink{}
	job := models.IngestJob{
		JobID:    "job-6",
		Request:  models.IngestRequest{URL: "https://docs.example.com/a"},
		Settings: models.RagSettings{UseContextualEmbeddings: true},
	}
	require.NoError(t, co.Run(context.Background(), job, sink))

	require.NotEmpty(t, st.chunks)
	for _, ch := range st.chunks {
		assert.True(t, strings.HasPrefix(ch.Text, "ctx: "))
		assert.True(t, ch.Metadata.Contextual)
	}
}

func TestRunExtractsCodeExamples(t *testing.T) {
	cfg := testConfig()
	st := newFakeStore()
	emb := &fakeEmbedder{dimensions: 4}
	content := "Install the client first.\n\n```go\npackage main\n\nfunc main() {\n\tclient := New()\n\tclient.Do()\n}\n```\n\nThen call Do.\n"
	pages := []crawler.Page{{URL: "https://docs.example.com/a", Title: "t", Content: content}}
	co := newTestCoordinator(cfg, &fakeCrawler{pages: pages}, emb, st)

	sink := &memorySink{}
	job := models.IngestJob{
		JobID:    "job-7",
		Request:  models.IngestRequest{URL: "https://docs.example.com/a"},
		Settings: models.RagSettings{ExtractCodeExamples: true},
	}
	require.NoError(t, co.Run(context.Background(), job, sink))

	require.Len(t, st.code, 1)
	assert.Equal(t, "go", st.code[0].Language)
	assert.Equal(t, "example in go", st.code[0].Summary)
	assert.NotEmpty(t, st.code[0].Embedding)
}

func TestRunRejectsConcurrentIngestOfSameSource(t *testing.T) {
	cfg := testConfig()
	st := newFakeStore()
	st.locked["docs.example.com"] = "other-job"
	emb := &fakeEmbedder{dimensions: 4}
	co := newTestCoordinator(cfg, &fakeCrawler{pages: []crawler.Page{page("https://docs.example.com/a", 2)}}, emb, st)

	sink := &memorySink{}
	job := models.IngestJob{JobID: "job-8", Request: models.IngestRequest{URL: "https://docs.example.com/a"}}
	err := co.Run(context.Background(), job, sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in progress")
}

func TestExtractCodeBlocks(t *testing.T) {
	content := "Intro text before the snippet.\n\n" +
		"```python\nimport requests\n\nresp = requests.get(url)\nresp.raise_for_status()\n```\n\n" +
		"Short one next.\n\n```sh\nls\n```\n\nTrailing prose.\n"
	pages := []crawler.Page{{URL: "https://docs.example.com/http", Content: content}}

	blocks := ExtractCodeBlocks(pages, 30)
	require.Len(t, blocks, 1, "short block must be filtered out")
	assert.Equal(t, "python", blocks[0].Language)
	assert.Contains(t, blocks[0].Code, "requests.get")
	assert.NotContains(t, blocks[0].Code, "```")
	assert.Contains(t, blocks[0].Surrounding, "Intro text")
	assert.Contains(t, blocks[0].Surrounding, "Short one next")
}

func TestExtractCodeBlocksIgnoresUnclosedFence(t *testing.T) {
	pages := []crawler.Page{{URL: "u", Content: "text\n```go\nfunc broken() {\n"}}
	assert.Empty(t, ExtractCodeBlocks(pages, 1))
}
