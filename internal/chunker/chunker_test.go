package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tade-balogun/policy-engine/internal/common"
)

func TestSplitWithLines(t *testing.T) {
	t.Run("short text yields a single chunk", func(t *testing.T) {
		text := "first line of text\nsecond line of text\nthird line of text"
		chunks := SplitWithLines(text, 2000, 300)
		require.Len(t, chunks, 1)
		assert.Equal(t, text, chunks[0].Text)
		assert.Equal(t, 1, chunks[0].LineStart)
		assert.Equal(t, 3, chunks[0].LineEnd)
	})

	t.Run("empty text yields no chunks", func(t *testing.T) {
		assert.Empty(t, SplitWithLines("", 2000, 300))
	})

	t.Run("chunks close on size and carry whole-line overlap", func(t *testing.T) {
		lines := make([]string, 10)
		for i := range lines {
			lines[i] = "aaaa"
		}
		text := strings.Join(lines, "\n")

		chunks := SplitWithLines(text, 25, 10)
		require.Len(t, chunks, 3)

		assert.Equal(t, 1, chunks[0].LineStart)
		assert.Equal(t, 5, chunks[0].LineEnd)
		assert.Equal(t, 4, chunks[1].LineStart)
		assert.Equal(t, 8, chunks[1].LineEnd)
		assert.Equal(t, 7, chunks[2].LineStart)
		assert.Equal(t, 10, chunks[2].LineEnd)
	})

	t.Run("line ranges reconstruct the chunk text", func(t *testing.T) {
		text := "alpha bravo charlie\ndelta echo foxtrot\ngolf hotel india\njuliet kilo lima\nmike november oscar"
		lines := strings.Split(text, "\n")

		for _, chunk := range SplitWithLines(text, 45, 20) {
			rebuilt := strings.Join(lines[chunk.LineStart-1:chunk.LineEnd], "\n")
			assert.Equal(t, chunk.Text, rebuilt)
		}
	})

	t.Run("zero overlap starts the next chunk fresh", func(t *testing.T) {
		lines := make([]string, 6)
		for i := range lines {
			lines[i] = "aaaa"
		}
		chunks := SplitWithLines(strings.Join(lines, "\n"), 15, 0)
		require.Len(t, chunks, 2)
		assert.Equal(t, 1, chunks[0].LineStart)
		assert.Equal(t, 3, chunks[0].LineEnd)
		assert.Equal(t, 4, chunks[1].LineStart)
		assert.Equal(t, 6, chunks[1].LineEnd)
	})
}

func TestCleanForChunking(t *testing.T) {
	t.Run("page number lines are blanked", func(t *testing.T) {
		in := "This is a long enough line of text\nPage 2\nAnother long enough line here"
		out := CleanForChunking(in)
		assert.Equal(t, "This is a long enough line of text\n\nAnother long enough line here", out)
	})

	t.Run("page fraction and dash markers are blanked", func(t *testing.T) {
		in := "A substantial opening paragraph line\n12 / 30\n- 4 -\n7\nA substantial closing paragraph line"
		out := CleanForChunking(in)
		assert.NotContains(t, out, "12 / 30")
		assert.NotContains(t, out, "- 4 -")
		assert.Contains(t, out, "A substantial opening paragraph line")
		assert.Contains(t, out, "A substantial closing paragraph line")
	})

	t.Run("short numeric noise lines are dropped, short titles kept", func(t *testing.T) {
		in := "Introductory section heading line\n3 -\nIntro\nBody text that is clearly long enough"
		out := CleanForChunking(in)
		assert.NotContains(t, out, "3 -")
		assert.Contains(t, out, "Intro")
	})

	t.Run("whitespace runs collapse", func(t *testing.T) {
		in := "columns     with     wide     gaps between them\n\n\n\nnext paragraph after a large gap"
		out := CleanForChunking(in)
		assert.Equal(t, "columns  with  wide  gaps between them\n\nnext paragraph after a large gap", out)
	})
}

func TestTextSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, textSimilarity("Hello  World", "hello world"))
	assert.Equal(t, 0.0, textSimilarity("", "anything"))
	assert.Equal(t, 0.0, textSimilarity("alpha bravo", "charlie delta"))
	assert.InDelta(t, 1.0/3.0, textSimilarity("alpha bravo", "alpha charlie"), 1e-9)
}

func TestRemovePageHeaders(t *testing.T) {
	header := []string{
		"ACME Corporation Policy Manual",
		"Confidential - Internal Use Only",
		"Revision 4 of the controlled document",
		"Department of Compliance",
		"Effective January 2024",
	}

	pageWith := func(body ...string) string {
		return strings.Join(append(append([]string{}, header...), body...), "\n")
	}

	t.Run("repeated header confirmed and stripped from all pages", func(t *testing.T) {
		pages := []string{
			pageWith("first page body line one", "first page body line two"),
			pageWith("second page body line one", "second page body line two"),
			pageWith("third page body line one", "third page body line two"),
			pageWith("fourth page body line one", "fourth page body line two"),
		}
		cleaned := RemovePageHeaders(pages)
		require.Len(t, cleaned, 4)
		for i, page := range cleaned {
			assert.NotContains(t, page, "ACME Corporation", "page %d", i)
			assert.Contains(t, page, "body line one")
		}
	})

	t.Run("too few confirmations leaves pages untouched", func(t *testing.T) {
		pages := []string{
			pageWith("first page body"),
			pageWith("second page body"),
		}
		assert.Equal(t, pages, RemovePageHeaders(pages))
	})

	t.Run("short pages carry no header", func(t *testing.T) {
		pages := []string{"one\ntwo", "one\ntwo", "one\ntwo"}
		assert.Equal(t, pages, RemovePageHeaders(pages))
	})
}

func TestChunkerBuild(t *testing.T) {
	t.Run("substantive fragments are kept, tiny ones dropped", func(t *testing.T) {
		c := New(common.ChunkingConfig{ChunkSize: 2000, ChunkOverlap: 300, MinChunkLen: 100, MinWords: 10})

		long := "The retention policy requires every department to archive signed approvals " +
			"for seven years and to log each access to the archive in the central register."
		require.GreaterOrEqual(t, len(long), 100)
		require.GreaterOrEqual(t, len(strings.Fields(long)), 10)

		frags := c.Build("tenant-a", "doc-1", "policy.pdf", []Page{
			{Number: 1, Text: long},
			{Number: 2, Text: "short page with only six words"},
		})
		require.Len(t, frags, 1)
		assert.Equal(t, "doc-1:p1:c0", frags[0].ID)
		assert.Equal(t, 1, frags[0].Page)
		assert.Equal(t, 0, frags[0].Ordinal)
		assert.Equal(t, "tenant-a", frags[0].TenantID)
		assert.Equal(t, "policy.pdf", frags[0].Filename)
	})

	t.Run("punctuation-heavy fragments are dropped", func(t *testing.T) {
		c := New(common.ChunkingConfig{ChunkSize: 2000, ChunkOverlap: 300, MinChunkLen: 100, MinWords: 10})
		noise := strings.TrimSpace(strings.Repeat("a!!!!!!!!! ", 15))
		require.GreaterOrEqual(t, len(noise), 100)
		frags := c.Build("tenant-a", "doc-1", "policy.pdf", []Page{{Number: 1, Text: noise}})
		assert.Empty(t, frags)
	})

	t.Run("filtered chunks leave ordinal gaps", func(t *testing.T) {
		c := New(common.ChunkingConfig{ChunkSize: 50, ChunkOverlap: 0, MinChunkLen: 20, MinWords: 3})
		text := strings.Join([]string{
			"alpha bravo charlie delta echo golf kilo",
			"%% ## @@ ** (( ))",
			"kilo lima mike november oscar papa",
		}, "\n")

		frags := c.Build("tenant-a", "doc-1", "policy.pdf", []Page{{Number: 3, Text: text}})
		require.Len(t, frags, 2)
		assert.Equal(t, 0, frags[0].Ordinal)
		assert.Equal(t, 2, frags[1].Ordinal)
		assert.Equal(t, "doc-1:p3:c0", frags[0].ID)
		assert.Equal(t, "doc-1:p3:c2", frags[1].ID)
	})

	t.Run("fragment line ranges address the cleaned page text", func(t *testing.T) {
		c := New(common.ChunkingConfig{ChunkSize: 60, ChunkOverlap: 0, MinChunkLen: 20, MinWords: 3})
		text := strings.Join([]string{
			"the first clause of the policy statement",
			"the second clause of the policy statement",
			"the third clause of the policy statement",
		}, "\n")

		frags := c.Build("tenant-a", "doc-1", "policy.pdf", []Page{{Number: 1, Text: text}})
		require.NotEmpty(t, frags)

		cleanedLines := strings.Split(CleanForChunking(text), "\n")
		for _, f := range frags {
			rebuilt := strings.Join(cleanedLines[f.LineStart-1:f.LineEnd], "\n")
			assert.Equal(t, f.Text, strings.TrimSpace(rebuilt))
		}
	})

	t.Run("pages cleaned to nothing produce no fragments", func(t *testing.T) {
		c := New(common.ChunkingConfig{ChunkSize: 2000, ChunkOverlap: 300, MinChunkLen: 100, MinWords: 10})
		frags := c.Build("tenant-a", "doc-1", "policy.pdf", []Page{{Number: 1, Text: "Page 1\n2\n"}})
		assert.Empty(t, frags)
	})
}
