package ocr

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Hello   World", "hello world"))
	assert.Equal(t, 0.0, Similarity("", "anything"))
	assert.Equal(t, 0.0, Similarity("alpha bravo", "charlie delta"))
	assert.InDelta(t, 1.0/3.0, Similarity("alpha bravo", "alpha charlie"), 1e-9)
}

func TestTextHash(t *testing.T) {
	assert.Equal(t, TextHash("Some  Text\n"), TextHash("some text"))
	assert.NotEqual(t, TextHash("some text"), TextHash("other text"))
}

// goodPage fabricates a page of varied text that passes every check: long
// lines, high token diversity and no overlap with other seeds.
func goodPage(seed int) string {
	var b strings.Builder
	n := seed * 1000
	for i := 0; i < 8; i++ {
		for j := 0; j < 12; j++ {
			fmt.Fprintf(&b, "term%04d ", n)
			n++
		}
		b.WriteString("\n")
	}
	return b.String()
}

func TestValidateQuality(t *testing.T) {
	t.Run("varied prose passes", func(t *testing.T) {
		pages := []string{goodPage(1), goodPage(2), goodPage(3)}
		ok, issues := ValidateQuality(pages, []int{1, 2, 3})
		assert.True(t, ok)
		assert.Empty(t, issues)
	})

	t.Run("empty batch fails", func(t *testing.T) {
		ok, issues := ValidateQuality(nil, nil)
		assert.False(t, ok)
		assert.Equal(t, []string{"No text extracted"}, issues)
	})

	t.Run("consecutive identical pages are flagged", func(t *testing.T) {
		dup := goodPage(7)
		pages := []string{goodPage(1), dup, dup, dup, goodPage(9)}
		ok, issues := ValidateQuality(pages, []int{1, 2, 3, 4, 5})
		require.False(t, ok)
		assert.Contains(t, issues, "Consecutive duplicate pages detected (2 pairs)")
	})

	t.Run("low unique token ratio is flagged per page", func(t *testing.T) {
		repeated := strings.TrimSpace(strings.Repeat("stamp stamp stamp stamp ", 10))
		ok, issues := ValidateQuality([]string{repeated}, []int{4})
		require.False(t, ok)
		found := false
		for _, issue := range issues {
			if strings.HasPrefix(issue, "Page 4: Low unique token ratio") {
				found = true
			}
		}
		assert.True(t, found, "issues: %v", issues)
	})

	t.Run("repeated headers across pages are flagged", func(t *testing.T) {
		header := strings.Join([]string{
			"ACME Corporation Compliance Division Report",
			"Document Classification Internal Only",
			"Retention Schedule Annual Review Board",
			"Prepared According Governing Statute Rules",
			"Distribution Restricted Officers Managers",
		}, "\n") + "\n"
		body := func(seed int) string {
			var b strings.Builder
			for i := 0; i < 4; i++ {
				for j := 0; j < 12; j++ {
					fmt.Fprintf(&b, "body%04d ", seed*100+i*12+j)
				}
				b.WriteString("\n")
			}
			return b.String()
		}
		pages := []string{
			header + body(1),
			header + body(2),
			header + body(3),
		}
		ok, issues := ValidateQuality(pages, []int{1, 2, 3})
		require.False(t, ok)
		assert.Contains(t, issues, "Repeated headers detected (2/2 pairs similar >85%)")
	})

	t.Run("table-heavy layout is flagged", func(t *testing.T) {
		var b strings.Builder
		for i := 0; i < 15; i++ {
			fmt.Fprintf(&b, "row %02d value %d\n", i, i*3)
		}
		ok, issues := ValidateQuality([]string{b.String()}, []int{2})
		require.False(t, ok)
		assert.Contains(t, issues, "Page 2: Table-heavy layout detected")
	})

	t.Run("symbol soup with almost no words is flagged", func(t *testing.T) {
		ok, issues := ValidateQuality([]string{"$$$ %%% ### @@@ !!! ((( ))) ^^^ &&&"}, []int{6})
		require.False(t, ok)
		assert.Contains(t, issues, "Page 6: Very few words extracted")
	})
}

func TestLongestDuplicateRun(t *testing.T) {
	t.Run("counts consecutive identical pages", func(t *testing.T) {
		dup := "identical page body text"
		assert.Equal(t, 3, LongestDuplicateRun([]string{"a page", dup, dup, dup, "z page"}))
	})

	t.Run("empty pages break the run", func(t *testing.T) {
		dup := "identical page body text"
		assert.Equal(t, 2, LongestDuplicateRun([]string{dup, dup, "   ", dup, dup}))
	})

	t.Run("distinct pages give run of one", func(t *testing.T) {
		assert.Equal(t, 1, LongestDuplicateRun([]string{"alpha page", "bravo page", "charlie page"}))
	})

	t.Run("all empty gives zero", func(t *testing.T) {
		assert.Equal(t, 0, LongestDuplicateRun([]string{"", "  ", "\n"}))
	})
}
