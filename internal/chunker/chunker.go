// Package chunker splits document text into bounded-size segments along
// natural boundaries: markdown headers first, then blank-line paragraphs,
// then hard character cuts. Code fences are never split; a fence larger
// than the target size is emitted whole and flagged oversize.
package chunker

import (
	"iter"
	"strings"
	"unicode/utf8"
)

// Chunk is one bounded segment of a document. Chunks are non-overlapping
// and concatenating their texts in order reconstructs the source modulo
// boundary whitespace.
type Chunk struct {
	Text     string
	Order    int
	Headers  []string // header path active at the start of the chunk
	Oversize bool     // single indivisible block exceeded the target size
}

const minTargetSize = 100

// block is a structural unit the splitter never breaks except by hard cut:
// a header line, a paragraph, or a whole code fence.
type block struct {
	text      string
	isFence   bool
	headerLvl int // 0 for non-headers
}

// Stream returns a lazy, restartable sequence of chunks. The caller may
// stop consuming early without side effects.
func Stream(text string, targetSize int) iter.Seq[Chunk] {
	if targetSize < minTargetSize {
		targetSize = minTargetSize
	}

	return func(yield func(Chunk) bool) {
		blocks := splitBlocks(text)

		var (
			current  strings.Builder
			headers  [6]string
			chunkHdr []string
			order    int
		)

		emit := func(oversize bool) bool {
			text := current.String()
			current.Reset()
			if strings.TrimSpace(text) == "" {
				return true
			}
			ok := yield(Chunk{Text: text, Order: order, Headers: chunkHdr, Oversize: oversize})
			order++
			chunkHdr = headerPath(headers)
			return ok
		}

		for _, b := range blocks {
			if b.headerLvl > 0 {
				// Header starts a new chunk when the current one has content.
				if current.Len() > 0 && !emit(false) {
					return
				}
				setHeader(&headers, b.headerLvl, strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(b.text), "#")))
				chunkHdr = headerPath(headers)
			}

			if current.Len() > 0 && current.Len()+len(b.text)+1 > targetSize {
				if !emit(false) {
					return
				}
			}

			if len(b.text) > targetSize {
				if b.isFence {
					// Indivisible: emit whole and flag it.
					if current.Len() > 0 && !emit(false) {
						return
					}
					current.WriteString(b.text)
					if !emit(true) {
						return
					}
					continue
				}
				// Oversized paragraph: hard character cuts.
				for _, piece := range hardSplit(b.text, targetSize) {
					if current.Len() > 0 && current.Len()+len(piece)+1 > targetSize {
						if !emit(false) {
							return
						}
					}
					appendBlock(&current, piece)
				}
				continue
			}

			appendBlock(&current, b.text)
		}

		if current.Len() > 0 {
			emit(false)
		}
	}
}

// Split materializes the full chunk sequence for text.
func Split(text string, targetSize int) []Chunk {
	var chunks []Chunk
	for c := range Stream(text, targetSize) {
		chunks = append(chunks, c)
	}
	return chunks
}

func appendBlock(sb *strings.Builder, text string) {
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(text)
}

// splitBlocks cuts text into headers, paragraphs and whole code fences.
// Block texts joined with "\n" reproduce the source lines.
func splitBlocks(text string) []block {
	lines := strings.Split(text, "\n")

	var (
		blocks  []block
		buf     []string
		inFence bool
	)

	flush := func(isFence bool) {
		if len(buf) == 0 {
			return
		}
		blocks = append(blocks, block{text: strings.Join(buf, "\n"), isFence: isFence})
		buf = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			if inFence {
				buf = append(buf, line)
				flush(true)
				inFence = false
				continue
			}
			flush(false)
			inFence = true
			buf = append(buf, line)
			continue
		}

		if inFence {
			buf = append(buf, line)
			continue
		}

		if lvl := headerLevel(trimmed); lvl > 0 {
			flush(false)
			blocks = append(blocks, block{text: line, headerLvl: lvl})
			continue
		}

		if trimmed == "" {
			buf = append(buf, line)
			flush(false)
			continue
		}

		buf = append(buf, line)
	}
	// Unterminated fence is kept as a fence block.
	flush(inFence)

	return blocks
}

func headerLevel(trimmed string) int {
	if !strings.HasPrefix(trimmed, "#") {
		return 0
	}
	lvl := 0
	for lvl < len(trimmed) && trimmed[lvl] == '#' {
		lvl++
	}
	if lvl > 6 || lvl >= len(trimmed) || trimmed[lvl] != ' ' {
		return 0
	}
	return lvl
}

func setHeader(headers *[6]string, lvl int, title string) {
	headers[lvl-1] = title
	for i := lvl; i < 6; i++ {
		headers[i] = ""
	}
}

func headerPath(headers [6]string) []string {
	var path []string
	for _, h := range headers {
		if h != "" {
			path = append(path, h)
		}
	}
	return path
}

// hardSplit cuts an oversized paragraph at sentence or space boundaries
// where possible, falling back to exact character cuts.
func hardSplit(text string, targetSize int) []string {
	var pieces []string
	for len(text) > targetSize {
		cut := targetSize
		// Prefer the last sentence end or space inside the window.
		window := text[:targetSize]
		if idx := strings.LastIndexAny(window, ".!?"); idx > targetSize/2 {
			cut = idx + 1
		} else if idx := strings.LastIndex(window, " "); idx > targetSize/2 {
			cut = idx + 1
		}
		// Never cut through a multi-byte rune.
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			_, size := utf8.DecodeRuneInString(text)
			cut = size
		}
		pieces = append(pieces, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		pieces = append(pieces, text)
	}
	return pieces
}
