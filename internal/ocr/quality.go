package ocr

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var (
	wsPattern   = regexp.MustCompile(`\s+`)
	wordPattern = regexp.MustCompile(`\b\w+\b`)
)

func normalizeText(s string) string {
	return wsPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// TextHash hashes normalized text for duplicate-page detection.
func TextHash(s string) string {
	sum := md5.Sum([]byte(normalizeText(s)))
	return hex.EncodeToString(sum[:])
}

// Similarity is the word-set overlap ratio between two texts, 0.0 to 1.0.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	na, nb := normalizeText(a), normalizeText(b)
	if na == nb {
		return 1.0
	}
	setA := wordSet(na)
	setB := wordSet(nb)
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}
	intersection := 0
	union := len(setB)
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

// ValidateQuality inspects a batch of OCR'd pages for symptoms that the
// recognizer misread the document: repeated headers bleeding into every
// page, near-empty output, duplicated pages, and table layouts that
// tesseract tends to scramble. A non-empty issue list means the batch
// should be re-extracted with the vision fallback.
func ValidateQuality(textPages []string, pageNumbers []int) (bool, []string) {
	if len(textPages) == 0 {
		return false, []string{"No text extracted"}
	}

	var issues []string

	// Check 1: repeated headers across consecutive pages
	if len(textPages) >= 2 {
		var headers []string
		for _, pageText := range textPages {
			lines := strings.Split(pageText, "\n")
			if len(lines) > 5 {
				lines = lines[:5]
			}
			header := normalizeText(strings.Join(lines, " "))
			if len(header) > 20 {
				headers = append(headers, header)
			}
		}
		if len(headers) >= 2 {
			similar := 0
			for i := 0; i < len(headers)-1; i++ {
				if Similarity(headers[i], headers[i+1]) > 0.85 {
					similar++
				}
			}
			if float64(similar) >= float64(len(headers))*0.5 {
				issues = append(issues, fmt.Sprintf("Repeated headers detected (%d/%d pairs similar >85%%)", similar, len(headers)-1))
			}
		}
	}

	// Check 2: low unique-token ratio
	for i, pageText := range textPages {
		if len(strings.TrimSpace(pageText)) < 50 {
			continue
		}
		tokens := strings.Fields(strings.ToLower(pageText))
		if len(tokens) < 10 {
			continue
		}
		unique := make(map[string]struct{}, len(tokens))
		for _, t := range tokens {
			unique[t] = struct{}{}
		}
		ratio := float64(len(unique)) / float64(len(tokens))
		if ratio < 0.3 {
			issues = append(issues, fmt.Sprintf("Page %d: Low unique token ratio (%.1f%%)", pageNumber(pageNumbers, i), ratio*100))
		}
	}

	// Check 3: consecutive duplicate pages
	if len(textPages) >= 3 {
		hashes := make([]string, len(textPages))
		for i, t := range textPages {
			hashes[i] = TextHash(t)
		}
		duplicates := 0
		for i := 0; i < len(hashes)-1; i++ {
			if hashes[i] == hashes[i+1] {
				duplicates++
			}
		}
		if duplicates >= 2 {
			issues = append(issues, fmt.Sprintf("Consecutive duplicate pages detected (%d pairs)", duplicates))
		}
	}

	// Check 4: table-heavy layout (many short lines, few long ones)
	for i, pageText := range textPages {
		if len(strings.TrimSpace(pageText)) < 100 {
			continue
		}
		var lines []string
		for _, line := range strings.Split(pageText, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				lines = append(lines, trimmed)
			}
		}
		if len(lines) < 10 {
			continue
		}
		short, long := 0, 0
		for _, line := range lines {
			if n := len(line); n >= 5 && n <= 60 {
				short++
			} else if n > 100 {
				long++
			}
		}
		shortRatio := float64(short) / float64(len(lines))
		longRatio := float64(long) / float64(len(lines))
		if shortRatio > 0.6 && longRatio < 0.2 {
			issues = append(issues, fmt.Sprintf("Page %d: Table-heavy layout detected", pageNumber(pageNumbers, i)))
		}
	}

	// Check 5: almost no words despite visible content
	for i, pageText := range textPages {
		if len(strings.TrimSpace(pageText)) < 20 {
			continue
		}
		if len(wordPattern.FindAllString(pageText, 6)) < 5 {
			issues = append(issues, fmt.Sprintf("Page %d: Very few words extracted", pageNumber(pageNumbers, i)))
		}
	}

	return len(issues) == 0, issues
}

func pageNumber(pageNumbers []int, i int) int {
	if i < len(pageNumbers) {
		return pageNumbers[i]
	}
	return i + 1
}

// LongestDuplicateRun returns the length of the longest run of consecutive
// pages whose normalized text hashes are identical. Empty pages are ignored.
func LongestDuplicateRun(textPages []string) int {
	longest, run := 0, 0
	prev := ""
	for _, t := range textPages {
		if strings.TrimSpace(t) == "" {
			prev = ""
			run = 0
			continue
		}
		h := TextHash(t)
		if h == prev {
			run++
		} else {
			run = 1
			prev = h
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}
