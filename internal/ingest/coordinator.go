package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"knowledge-base-service/internal/ai"
	"knowledge-base-service/internal/chunker"
	"knowledge-base-service/internal/config"
	"knowledge-base-service/internal/crawler"
	"knowledge-base-service/internal/logger"
	"knowledge-base-service/models"
)

// Each phase owns a fixed slice of the progress bar so the percentage
// stays monotonic no matter how long an individual phase runs.
const (
	pctAnalyzing      = 0
	pctCrawling       = 5
	pctChunking       = 25
	pctSourceCreation = 30
	pctEmbedding      = 35
	pctCodeExtraction = 90
	pctFinalizing     = 97
	pctDone           = 100
)

// PageCrawler discovers the page set for a seed URL.
type PageCrawler interface {
	Crawl(ctx context.Context, req crawler.Request, logf func(format string, args ...any)) (*crawler.Result, error)
}

// Embedder turns text batches into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Enricher rewrites chunks with document context before embedding.
type Enricher interface {
	EnrichAll(ctx context.Context, chunkTexts []string, docContext string) []string
}

// Summarizer produces a short description of a code snippet.
type Summarizer interface {
	SummarizeSnippet(ctx context.Context, language, code, surrounding string) (string, error)
}

// TextExtractor pulls plain text out of an uploaded file.
type TextExtractor interface {
	Extract(path, name string) (string, error)
}

// VectorStore is the persistence surface the coordinator writes through.
type VectorStore interface {
	EnsureSource(ctx context.Context, src models.Source) error
	InsertChunkBatch(ctx context.Context, chunks []models.Chunk) error
	InsertCodeExamples(ctx context.Context, examples []models.CodeExample) error
	CommitRevision(ctx context.Context, sourceID string, revision int64, pageCount, wordCount int) error
	AcquireIngestLock(ctx context.Context, sourceID, token string) error
	ReleaseIngestLock(ctx context.Context, sourceID, token string) error
}

// ProgressSink receives progress events and answers cancellation checks.
type ProgressSink interface {
	Report(ctx context.Context, ev models.ProgressEvent)
	Cancelled(ctx context.Context) bool
}

// Coordinator drives one ingestion job through its phases: crawl, chunk,
// embed in batches, extract code examples, then flip the source's active
// revision. Work already persisted when a job is cancelled or fails is
// committed so completed batches stay queryable.
type Coordinator struct {
	cfg       *config.Config
	crawler   PageCrawler
	embedder  Embedder
	enricher  Enricher
	summarize Summarizer
	extractor TextExtractor
	store     VectorStore
}

func NewCoordinator(cfg *config.Config, cr PageCrawler, emb Embedder, enr Enricher,
	sum Summarizer, ext TextExtractor, st VectorStore) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		crawler:   cr,
		embedder:  emb,
		enricher:  enr,
		summarize: sum,
		extractor: ext,
		store:     st,
	}
}

// ErrCancelled marks a job stopped by user request.
var ErrCancelled = errors.New("job cancelled")

// Run executes the job to a terminal event. The returned error is nil on
// success and on cancellation; a failed job returns its cause after the
// failure event has been published.
func (co *Coordinator) Run(ctx context.Context, job models.IngestJob, progress ProgressSink) error {
	started := time.Now()

	err := co.run(ctx, job, progress, started)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCancelled):
		progress.Report(ctx, models.ProgressEvent{
			Phase:      models.PhaseCancelled,
			Percentage: pctDone,
			Message:    "ingestion stopped",
			Outcome:    models.OutcomeCancelled,
			DurationMS: time.Since(started).Milliseconds(),
		})
		return nil
	default:
		logger.Error("ingestion failed", "job_id", job.JobID, "error", err)
		progress.Report(ctx, models.ProgressEvent{
			Phase:      models.PhaseFailed,
			Percentage: pctDone,
			Message:    "ingestion failed",
			Outcome:    models.OutcomeFailure,
			Error:      err.Error(),
			DurationMS: time.Since(started).Milliseconds(),
		})
		return err
	}
}

func (co *Coordinator) run(ctx context.Context, job models.IngestJob, progress ProgressSink, started time.Time) error {
	req := job.Request
	settings := job.Settings

	progress.Report(ctx, models.ProgressEvent{
		Phase:      models.PhaseAnalyzing,
		Percentage: pctAnalyzing,
		Message:    "analyzing request",
	})

	sourceID, displayName, err := identifySource(req)
	if err != nil {
		return err
	}
	revision := time.Now().UnixNano()

	if err := co.store.AcquireIngestLock(ctx, sourceID, job.JobID); err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := co.store.ReleaseIngestLock(releaseCtx, sourceID, job.JobID); err != nil {
			logger.Warn("release ingest lock", "source_id", sourceID, "error", err)
		}
	}()

	// A stop request tears down the crawl frontier promptly. Later phases
	// check the cancel flag between provider calls instead, so a batch
	// already in flight always runs to completion.
	crawlCtx, stopCrawl := context.WithCancel(ctx)
	defer stopCrawl()
	go watchCancel(crawlCtx, progress, stopCrawl)

	pages, strategy, err := co.collectPages(crawlCtx, req, progress)
	stopCrawl()
	if err != nil {
		return co.asCancelled(ctx, progress, err)
	}
	if progress.Cancelled(ctx) {
		return ErrCancelled
	}

	progress.Report(ctx, models.ProgressEvent{
		Phase:      models.PhaseChunking,
		Percentage: pctChunking,
		Message:    fmt.Sprintf("chunking %d pages", len(pages)),
	})

	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = co.cfg.DefaultChunkSize
	}
	chunks := co.chunkPages(pages, sourceID, revision, strategy, chunkSize)
	if len(chunks) == 0 {
		return fmt.Errorf("no indexable content found at %s", displayName)
	}

	progress.Report(ctx, models.ProgressEvent{
		Phase:      models.PhaseSourceCreation,
		Percentage: pctSourceCreation,
		Message:    fmt.Sprintf("registering source %s", sourceID),
	})

	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = models.SourceTypeURL
	}
	if err := co.store.EnsureSource(ctx, models.Source{
		SourceID:    sourceID,
		DisplayName: displayName,
		SourceType:  sourceType,
		SeedURL:     req.URL,
		Tags:        req.Tags,
	}); err != nil {
		return err
	}

	if settings.UseContextualEmbeddings {
		co.enrichChunks(ctx, chunks, pages, progress)
	}

	// enriched jobs already spent provider quota, so their embed batches
	// are paced apart
	var pause time.Duration
	if settings.UseContextualEmbeddings {
		pause = co.cfg.ContextualBatchDelay
	}
	stored, err := co.embedAndStore(ctx, chunks, pause, progress)
	if err != nil {
		// Batches already written stay queryable: commit what landed
		// before surfacing the failure or cancellation.
		if len(stored) > 0 {
			co.commitPartial(ctx, sourceID, revision, len(pages), stored)
		}
		return co.asCancelled(ctx, progress, err)
	}

	codeCount := 0
	if settings.ExtractCodeExamples {
		progress.Report(ctx, models.ProgressEvent{
			Phase:      models.PhaseCodeExtraction,
			Percentage: pctCodeExtraction,
			Message:    "extracting code examples",
		})
		codeCount = co.extractCode(ctx, pages, sourceID, revision)
	}

	progress.Report(ctx, models.ProgressEvent{
		Phase:      models.PhaseFinalizing,
		Percentage: pctFinalizing,
		Message:    "activating new revision",
	})

	wordCount := 0
	for i := range stored {
		wordCount += stored[i].Metadata.WordCount
	}
	if err := co.store.CommitRevision(ctx, sourceID, revision, len(pages), wordCount); err != nil {
		return err
	}

	progress.Report(ctx, models.ProgressEvent{
		Phase:        models.PhaseCompleted,
		Percentage:   pctDone,
		Message:      fmt.Sprintf("ingested %d chunks and %d code examples from %d pages", len(stored), codeCount, len(pages)),
		Outcome:      models.OutcomeSuccess,
		ChunksStored: len(stored),
		DurationMS:   time.Since(started).Milliseconds(),
	})
	return nil
}

// watchCancel polls the stop flag and tears down the crawl context when
// it appears.
func watchCancel(ctx context.Context, progress ProgressSink, stop context.CancelFunc) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if progress.Cancelled(ctx) {
				stop()
				return
			}
		}
	}
}

// asCancelled maps a context teardown caused by a stop request onto
// ErrCancelled so Run emits the right terminal event.
func (co *Coordinator) asCancelled(ctx context.Context, progress ProgressSink, err error) error {
	if errors.Is(err, ErrCancelled) {
		return err
	}
	if errors.Is(err, context.Canceled) && progress.Cancelled(ctx) {
		return ErrCancelled
	}
	return err
}

func identifySource(req models.IngestRequest) (sourceID, displayName string, err error) {
	switch {
	case req.URL != "":
		id, err := crawler.SourceIDFromURL(req.URL)
		if err != nil {
			return "", "", fmt.Errorf("invalid seed url: %w", err)
		}
		return id, id, nil
	case req.FilePath != "":
		name := req.FileName
		if name == "" {
			name = req.FilePath
		}
		return "file:" + strings.ToLower(name), name, nil
	default:
		return "", "", errors.New("ingest request needs a url or an uploaded file")
	}
}

// collectPages runs the crawl for URL sources or the file extractor for
// uploads, reporting crawl progress as pages arrive.
func (co *Coordinator) collectPages(ctx context.Context, req models.IngestRequest, progress ProgressSink) ([]crawler.Page, string, error) {
	if req.FilePath != "" {
		progress.Report(ctx, models.ProgressEvent{
			Phase:      models.PhaseCrawling,
			Percentage: pctCrawling,
			Message:    "extracting uploaded file " + req.FileName,
		})
		text, err := co.extractor.Extract(req.FilePath, req.FileName)
		if err != nil {
			return nil, "", fmt.Errorf("extract %s: %w", req.FileName, err)
		}
		page := crawler.Page{URL: "file://" + req.FileName, Title: req.FileName, Content: text}
		return []crawler.Page{page}, crawler.StrategyText, nil
	}

	progress.Report(ctx, models.ProgressEvent{
		Phase:      models.PhaseCrawling,
		Percentage: pctCrawling,
		Message:    "crawling " + req.URL,
	})

	var crawlLog []string
	result, err := co.crawler.Crawl(ctx, crawler.Request{
		SeedURL:  req.URL,
		MaxDepth: req.MaxDepth,
		MaxPages: co.cfg.CrawlMaxPages,
		RenderJS: co.cfg.RenderJS,
	}, func(format string, args ...any) {
		crawlLog = append(crawlLog, fmt.Sprintf(format, args...))
	})
	if err != nil {
		return nil, "", err
	}

	msg := fmt.Sprintf("crawled %d pages", len(result.Pages))
	if result.PagesFailed > 0 {
		msg = fmt.Sprintf("crawled %d pages, %d failed", len(result.Pages), result.PagesFailed)
	}
	progress.Report(ctx, models.ProgressEvent{
		Phase:      models.PhaseCrawling,
		Percentage: pctChunking,
		Message:    msg,
		LogLines:   crawlLog,
	})
	return result.Pages, result.Strategy, nil
}

// chunkPages splits every page and assembles the unembedded chunk list.
// Fragments below the minimum size are dropped unless they are a page's
// only chunk.
func (co *Coordinator) chunkPages(pages []crawler.Page, sourceID string, revision int64, strategy string, chunkSize int) []models.Chunk {
	var out []models.Chunk
	order := 0
	for _, page := range pages {
		pieces := chunker.Split(page.Content, chunkSize)
		for _, piece := range pieces {
			if len(piece.Text) < co.cfg.MinChunkSize && len(pieces) > 1 {
				continue
			}
			out = append(out, models.Chunk{
				SourceID: sourceID,
				URL:      page.URL,
				Title:    page.Title,
				Text:     piece.Text,
				Order:    order,
				Revision: revision,
				Metadata: models.ChunkMetadata{
					Headers:       piece.Headers,
					CharCount:     len(piece.Text),
					WordCount:     len(strings.Fields(piece.Text)),
					CrawlStrategy: strategy,
					Oversize:      piece.Oversize,
				},
			})
			order++
		}
	}
	return out
}

// enrichChunks rewrites each chunk with its page as document context.
// Enrichment is best effort and paced between pages to stay inside the
// provider's rate budget.
func (co *Coordinator) enrichChunks(ctx context.Context, chunks []models.Chunk, pages []crawler.Page, progress ProgressSink) {
	pageContent := make(map[string]string, len(pages))
	for _, p := range pages {
		pageContent[p.URL] = p.Content
	}

	byPage := make(map[string][]int)
	for i := range chunks {
		byPage[chunks[i].URL] = append(byPage[chunks[i].URL], i)
	}

	done := 0
	for _, p := range pages {
		idxs := byPage[p.URL]
		if len(idxs) == 0 {
			continue
		}
		if ctx.Err() != nil || progress.Cancelled(ctx) {
			return
		}
		texts := make([]string, len(idxs))
		for j, i := range idxs {
			texts[j] = chunks[i].Text
		}
		enriched := co.enricher.EnrichAll(ctx, texts, pageContent[p.URL])
		for j, i := range idxs {
			if enriched[j] != chunks[i].Text {
				chunks[i].Text = enriched[j]
				chunks[i].Metadata.Contextual = true
			}
		}
		done += len(idxs)
		progress.Report(ctx, models.ProgressEvent{
			Phase:      models.PhaseSourceCreation,
			Percentage: pctSourceCreation,
			Message:    fmt.Sprintf("contextualized %d/%d chunks", done, len(chunks)),
		})

		select {
		case <-ctx.Done():
			return
		case <-time.After(co.cfg.ContextualBatchDelay):
		}
	}
}

// embedAndStore embeds chunks batch by batch and persists each batch as
// it lands, returning the chunks that made it to storage. A batch that
// still fails after retries is either skipped or fails the job, per the
// configured failure policy. A stop request is honored between batches
// only; the batch in flight finishes and is persisted first.
func (co *Coordinator) embedAndStore(ctx context.Context, chunks []models.Chunk, pause time.Duration, progress ProgressSink) ([]models.Chunk, error) {
	batchSize := co.cfg.EmbeddingBatchSize
	total := len(chunks)
	numBatches := (total + batchSize - 1) / batchSize

	stored := make([]models.Chunk, 0, total)
	for b := 0; b < numBatches; b++ {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		if progress.Cancelled(ctx) {
			return stored, ErrCancelled
		}

		lo := b * batchSize
		hi := lo + batchSize
		if hi > total {
			hi = total
		}
		batch := chunks[lo:hi]

		pct := pctEmbedding + (pctCodeExtraction-pctEmbedding)*b/numBatches
		progress.Report(ctx, models.ProgressEvent{
			Phase:      models.PhaseEmbeddingStorage,
			Percentage: pct,
			Message:    fmt.Sprintf("batch %d/%d: items %d-%d of %d", b+1, numBatches, lo+1, hi, total),
		})

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Text
		}
		vectors, err := co.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if errors.Is(err, ai.ErrEmbeddingUnavailable) && co.cfg.EmbeddingFailurePolicy == config.FailurePolicySkipBatch {
				logger.Warn("skipping batch after embedding failure",
					"batch", b+1, "batches", numBatches, "error", err)
				progress.Report(ctx, models.ProgressEvent{
					Phase:      models.PhaseEmbeddingStorage,
					Percentage: pct,
					Message:    fmt.Sprintf("batch %d/%d skipped: embeddings unavailable", b+1, numBatches),
				})
				continue
			}
			return stored, err
		}

		for i := range batch {
			batch[i].Embedding = vectors[i]
		}
		if err := co.store.InsertChunkBatch(ctx, batch); err != nil {
			return stored, err
		}
		stored = append(stored, batch...)

		if pause > 0 && b < numBatches-1 {
			select {
			case <-ctx.Done():
				return stored, ctx.Err()
			case <-time.After(pause):
			}
		}
	}
	return stored, nil
}

// commitPartial flips the source to whatever landed before a failure or
// stop, so the batches already stored remain queryable.
func (co *Coordinator) commitPartial(ctx context.Context, sourceID string, revision int64, pageCount int, stored []models.Chunk) {
	wordCount := 0
	for i := range stored {
		wordCount += stored[i].Metadata.WordCount
	}
	commitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if ctx.Err() == nil {
		commitCtx = ctx
	}
	if err := co.store.CommitRevision(commitCtx, sourceID, revision, pageCount, wordCount); err != nil {
		logger.Error("commit partial revision", "source_id", sourceID, "error", err)
	}
}
