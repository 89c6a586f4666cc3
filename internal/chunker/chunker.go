package chunker

import (
	"strings"
	"unicode"

	"github.com/tade-balogun/policy-engine/internal/common"
	"github.com/tade-balogun/policy-engine/internal/entity"
)

// Chunk is one window of a page's text with its exact 1-indexed line range.
type Chunk struct {
	Text      string
	LineStart int
	LineEnd   int
}

// Page is one page of cleaned document text handed to the chunker.
type Page struct {
	Number int
	Text   string
}

// SplitWithLines splits text into overlapping chunks while tracking line
// numbers exactly. A chunk closes when the next line would push it past
// chunkSize; the overlap carried into the next chunk is whole trailing
// lines whose combined length fits the overlap budget.
func SplitWithLines(text string, chunkSize, chunkOverlap int) []Chunk {
	lines := splitLines(text)

	var chunks []Chunk
	var current []string
	currentLen := 0
	lineStart := 1

	for idx, line := range lines {
		lineNum := idx + 1
		lineLen := len(line)
		// each line costs one newline except the last
		if idx < len(lines)-1 {
			lineLen++
		}

		if currentLen+lineLen > chunkSize && len(current) > 0 {
			chunks = append(chunks, Chunk{
				Text:      strings.Join(current, "\n"),
				LineStart: lineStart,
				LineEnd:   lineNum - 1,
			})

			if chunkOverlap > 0 {
				overlapChars := 0
				var overlap []string
				for i := len(current) - 1; i >= 0; i-- {
					cost := len(current[i]) + 1
					if overlapChars+cost > chunkOverlap {
						break
					}
					overlap = append([]string{current[i]}, overlap...)
					overlapChars += cost
				}
				current = overlap
				currentLen = overlapChars
				lineStart = lineNum - len(overlap)
			} else {
				current = nil
				currentLen = 0
				lineStart = lineNum
			}
		}

		current = append(current, line)
		currentLen += lineLen
	}

	if len(current) > 0 {
		chunks = append(chunks, Chunk{
			Text:      strings.Join(current, "\n"),
			LineStart: lineStart,
			LineEnd:   len(lines),
		})
	}

	return chunks
}

// Chunker turns persisted page text into indexable fragments.
type Chunker struct {
	cfg common.ChunkingConfig
}

func New(cfg common.ChunkingConfig) *Chunker {
	return &Chunker{cfg: cfg}
}

// Build cleans the pages, splits each into chunks and keeps the substantive
// ones. Ordinals count every chunk a page produced, so a filtered chunk
// leaves a gap rather than renumbering its successors.
func (c *Chunker) Build(tenantID, documentID, filename string, pages []Page) []entity.Fragment {
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	texts = RemovePageHeaders(texts)

	var fragments []entity.Fragment
	for i, page := range pages {
		cleaned := CleanForChunking(texts[i])
		if strings.TrimSpace(cleaned) == "" {
			continue
		}

		for ordinal, chunk := range SplitWithLines(cleaned, c.cfg.ChunkSize, c.cfg.ChunkOverlap) {
			text := strings.TrimSpace(chunk.Text)
			if !c.substantive(text) {
				continue
			}
			fragments = append(fragments, entity.Fragment{
				ID:         entity.FragmentID(documentID, page.Number, ordinal),
				TenantID:   tenantID,
				DocumentID: documentID,
				Filename:   filename,
				Page:       page.Number,
				Ordinal:    ordinal,
				LineStart:  chunk.LineStart,
				LineEnd:    chunk.LineEnd,
				Text:       text,
			})
		}
	}
	return fragments
}

// substantive rejects fragments too small or too noisy to index.
func (c *Chunker) substantive(text string) bool {
	if len(text) < c.cfg.MinChunkLen {
		return false
	}
	if len(strings.Fields(text)) < c.cfg.MinWords {
		return false
	}
	alnum, total := 0, 0
	for _, r := range text {
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	return float64(alnum) >= float64(total)*0.5
}
