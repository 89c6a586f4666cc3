package pipeline

import (
	"github.com/tade-balogun/policy-engine/constants"
)

// OutcomeKind discriminates what happened to one page during a run.
type OutcomeKind int

const (
	// OutcomeSkipped: the manifest already holds this page for the current
	// file hash, nothing was re-extracted.
	OutcomeSkipped OutcomeKind = iota
	// OutcomeCompleted: text was produced and persisted.
	OutcomeCompleted
	// OutcomeFailed: the page produced no usable text.
	OutcomeFailed
)

// PageOutcome is the result of processing a single page. Exactly one of the
// payload fields is meaningful per kind: Text/LineCount for completed pages,
// Err for failed ones, neither for skips.
type PageOutcome struct {
	Page      int
	Kind      OutcomeKind
	Text      string
	LineCount int
	OCRUsed   bool
	Provider  constants.OCRProvider
	Err       string
}

func skippedPage(page int) PageOutcome {
	return PageOutcome{Page: page, Kind: OutcomeSkipped}
}

func completedPage(page int, text string, lineCount int, ocrUsed bool, provider constants.OCRProvider) PageOutcome {
	return PageOutcome{
		Page:      page,
		Kind:      OutcomeCompleted,
		Text:      text,
		LineCount: lineCount,
		OCRUsed:   ocrUsed,
		Provider:  provider,
	}
}

func failedPage(page int, errMsg string, ocrUsed bool, provider constants.OCRProvider) PageOutcome {
	return PageOutcome{
		Page:     page,
		Kind:     OutcomeFailed,
		Err:      errMsg,
		OCRUsed:  ocrUsed,
		Provider: provider,
	}
}

// RunSummary aggregates page outcomes for terminal status decisions.
type RunSummary struct {
	PagesDone int // completed + failed + skipped, drives the progress bar
	Completed int
	Skipped   int
	Failed    int
}

// Summarize folds outcomes into counters. Failed pages count toward
// PagesDone so a partially broken document still reaches 100% progress.
func Summarize(outcomes []PageOutcome) RunSummary {
	var s RunSummary
	for _, o := range outcomes {
		s.PagesDone++
		switch o.Kind {
		case OutcomeCompleted:
			s.Completed++
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeFailed:
			s.Failed++
		}
	}
	return s
}
