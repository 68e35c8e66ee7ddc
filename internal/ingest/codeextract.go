package ingest

import (
	"context"
	"strings"

	"knowledge-base-service/internal/crawler"
	"knowledge-base-service/internal/logger"
	"knowledge-base-service/models"
)

// CodeBlock is one fenced snippet lifted out of a page, with enough
// surrounding prose to describe what it demonstrates.
type CodeBlock struct {
	URL         string
	Language    string
	Code        string
	Surrounding string
}

const surroundingContextChars = 500

// ExtractCodeBlocks scans page content for fenced code blocks of at
// least minChars and captures the prose around each one. Unclosed fences
// are ignored.
func ExtractCodeBlocks(pages []crawler.Page, minChars int) []CodeBlock {
	var blocks []CodeBlock
	for _, page := range pages {
		content := page.Content
		pos := 0
		for {
			open := strings.Index(content[pos:], "```")
			if open < 0 {
				break
			}
			open += pos

			langEnd := strings.IndexByte(content[open:], '\n')
			if langEnd < 0 {
				break
			}
			language := strings.TrimSpace(content[open+3 : open+langEnd])
			bodyStart := open + langEnd + 1

			closeIdx := strings.Index(content[bodyStart:], "```")
			if closeIdx < 0 {
				break
			}
			code := strings.TrimRight(content[bodyStart:bodyStart+closeIdx], "\n")
			pos = bodyStart + closeIdx + 3

			if len(code) < minChars {
				continue
			}

			before := open - surroundingContextChars
			if before < 0 {
				before = 0
			}
			after := pos + surroundingContextChars
			if after > len(content) {
				after = len(content)
			}
			surrounding := strings.TrimSpace(content[before:open]) + "\n" + strings.TrimSpace(content[pos:after])

			blocks = append(blocks, CodeBlock{
				URL:         page.URL,
				Language:    language,
				Code:        code,
				Surrounding: surrounding,
			})
		}
	}
	return blocks
}

// extractCode finds, summarizes, embeds and stores code examples.
// Extraction is best effort: a summarization or embedding problem here
// never fails an otherwise successful ingestion.
func (co *Coordinator) extractCode(ctx context.Context, pages []crawler.Page, sourceID string, revision int64) int {
	blocks := ExtractCodeBlocks(pages, co.cfg.CodeExampleMinChars)
	if len(blocks) == 0 {
		return 0
	}

	examples := make([]models.CodeExample, 0, len(blocks))
	for _, block := range blocks {
		if ctx.Err() != nil {
			break
		}
		summary, err := co.summarize.SummarizeSnippet(ctx, block.Language, block.Code, block.Surrounding)
		if err != nil {
			logger.Warn("code summary unavailable, using generic one", "url", block.URL, "error", err)
			summary = strings.TrimSpace(block.Language + " code example")
		}
		examples = append(examples, models.CodeExample{
			SourceID: sourceID,
			URL:      block.URL,
			Language: block.Language,
			Code:     block.Code,
			Summary:  summary,
			Revision: revision,
		})
	}

	stored := 0
	batchSize := co.cfg.EmbeddingBatchSize
	for lo := 0; lo < len(examples); lo += batchSize {
		hi := lo + batchSize
		if hi > len(examples) {
			hi = len(examples)
		}
		batch := examples[lo:hi]

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = embedTextForExample(batch[i])
		}
		vectors, err := co.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			logger.Warn("code example embedding failed, skipping batch", "error", err)
			continue
		}
		for i := range batch {
			batch[i].Embedding = vectors[i]
		}
		if err := co.store.InsertCodeExamples(ctx, batch); err != nil {
			logger.Warn("code example insert failed", "error", err)
			continue
		}
		stored += len(batch)
	}
	return stored
}

// embedTextForExample pairs the summary with the code so retrieval can
// match on either.
func embedTextForExample(ex models.CodeExample) string {
	if ex.Summary == "" {
		return ex.Code
	}
	return ex.Summary + "\n\n" + ex.Code
}
