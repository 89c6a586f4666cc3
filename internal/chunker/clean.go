package chunker

import (
	"regexp"
	"strings"
)

const maxHeaderLines = 5

var (
	wsPattern       = regexp.MustCompile(`\s+`)
	pageWordPattern = regexp.MustCompile(`(?im)^\s*page\s+\d+\s*$`)
	pageFracPattern = regexp.MustCompile(`(?im)^\s*\d+\s*/\s*\d+\s*$`)
	pageDashPattern = regexp.MustCompile(`(?im)^\s*-\s*\d+\s*-\s*$`)
	bareNumPattern  = regexp.MustCompile(`(?im)^\s*\d+\s*$`)
	numNoisePattern = regexp.MustCompile(`^\d+[\s\-/]*$`)
	multiNewline    = regexp.MustCompile(`\n{3,}`)
	multiSpace      = regexp.MustCompile(`[ \t]{3,}`)
)

func normalize(s string) string {
	return wsPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// textSimilarity is the word-set overlap ratio between two normalized texts.
func textSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	na, nb := normalize(a), normalize(b)
	if na == nb {
		return 1.0
	}
	setA := make(map[string]struct{})
	for _, w := range strings.Fields(na) {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{})
	for _, w := range strings.Fields(nb) {
		setB[w] = struct{}{}
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}
	intersection, union := 0, len(setB)
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		} else {
			union++
		}
	}
	return float64(intersection) / float64(union)
}

// detectRepeatedHeader returns the normalized header candidate built from a
// page's first lines, or "" when the page is too short to carry one.
func detectRepeatedHeader(lines []string) string {
	if len(lines) < maxHeaderLines {
		return ""
	}
	header := normalize(strings.Join(lines[:maxHeaderLines], "\n"))
	if len(header) < 20 {
		return ""
	}
	return header
}

// RemovePageHeaders strips a header that repeats across pages. The header is
// taken from the first page and confirmed against the next few pages before
// anything is removed.
func RemovePageHeaders(textPages []string) []string {
	if len(textPages) < 2 {
		return textPages
	}

	detected := detectRepeatedHeader(splitLines(textPages[0]))
	if detected == "" {
		return textPages
	}

	confirmations := 0
	probe := textPages[1:]
	if len(probe) > 5 {
		probe = probe[:5]
	}
	for _, pageText := range probe {
		if h := detectRepeatedHeader(splitLines(pageText)); h != "" && textSimilarity(detected, h) > 0.80 {
			confirmations++
		}
	}
	if confirmations < 2 {
		return textPages
	}

	cleaned := make([]string, len(textPages))
	for i, pageText := range textPages {
		lines := splitLines(pageText)
		if h := detectRepeatedHeader(lines); h != "" && textSimilarity(detected, h) > 0.80 {
			cleaned[i] = strings.Join(lines[maxHeaderLines:], "\n")
			continue
		}
		cleaned[i] = pageText
	}
	return cleaned
}

// CleanForChunking drops page-number lines, short title-like lines and
// excessive whitespace before the text is split into fragments.
func CleanForChunking(text string) string {
	text = pageWordPattern.ReplaceAllString(text, "")
	text = pageFracPattern.ReplaceAllString(text, "")
	text = pageDashPattern.ReplaceAllString(text, "")
	text = bareNumPattern.ReplaceAllString(text, "")

	var kept []string
	for _, line := range splitLines(text) {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) > 10 || len(trimmed) == 0 {
			kept = append(kept, line)
		} else if !numNoisePattern.MatchString(trimmed) {
			kept = append(kept, line)
		}
	}
	text = strings.Join(kept, "\n")

	text = multiNewline.ReplaceAllString(text, "\n\n")
	text = multiSpace.ReplaceAllString(text, "  ")
	return strings.TrimSpace(text)
}

// splitLines splits on newlines without producing a trailing empty line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" && strings.HasSuffix(text, "\n") {
		lines = lines[:len(lines)-1]
	}
	return lines
}
