package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/tade-balogun/policy-engine/constants"
	"github.com/tade-balogun/policy-engine/internal/chunker"
	"github.com/tade-balogun/policy-engine/internal/common"
	"github.com/tade-balogun/policy-engine/internal/entity"
	"github.com/tade-balogun/policy-engine/internal/extract"
	"github.com/tade-balogun/policy-engine/internal/index"
	"github.com/tade-balogun/policy-engine/internal/ocr"
	"github.com/tade-balogun/policy-engine/internal/repository"
	"github.com/tade-balogun/policy-engine/internal/storage"
)

// Extractor is the native text-extraction stage.
type Extractor interface {
	ExtractPages(ctx context.Context, path string) ([]extract.PageText, error)
}

// PageOCR is the slice of the hybrid OCR engine the orchestrator drives.
type PageOCR interface {
	ExtractAllPages(ctx context.Context, pdfPath string, totalPages int, preset constants.OCRPreset) ([]string, ocr.BatchMetadata, error)
	ExtractPage(ctx context.Context, pdfPath string, pageNum int, provider constants.OCRProvider, preset constants.OCRPreset) (string, constants.OCRProvider, error)
}

// Indexer embeds and upserts fragments, reporting per-batch progress.
type Indexer interface {
	Index(ctx context.Context, tenantID string, fragments []entity.Fragment, progress index.ProgressFunc) (int, error)
}

// FragmentStore is the delete side of the vector collection.
type FragmentStore interface {
	DeleteByDocument(ctx context.Context, tenantID, documentID string) (int64, error)
}

// ProgressTracker receives advisory live-progress updates keyed by job id.
// Records are created by the intake layer; the processor only advances and
// closes them.
type ProgressTracker interface {
	Update(id uuid.UUID, completed, total int, step string)
	Complete(id uuid.UUID)
	Fail(id uuid.UUID, errMsg string)
}

// Processor drives one document through extraction, OCR, chunking and
// indexing, flushing job and manifest state after every page and every
// indexing batch.
type Processor struct {
	jobs          repository.JobRepository
	manifests     repository.ManifestRepository
	files         *storage.FileStore
	pageText      *storage.PageTextStore
	extractor     Extractor
	pageOCR       PageOCR
	deterministic ocr.Engine
	vision        ocr.Engine
	chunks        *chunker.Chunker
	indexer       Indexer
	fragments     FragmentStore
	tracker       ProgressTracker
	cfg           *common.Config
	logger        *slog.Logger
}

func NewProcessor(
	jobs repository.JobRepository,
	manifests repository.ManifestRepository,
	files *storage.FileStore,
	pageText *storage.PageTextStore,
	extractor Extractor,
	pageOCR PageOCR,
	deterministic, vision ocr.Engine,
	chunks *chunker.Chunker,
	indexer Indexer,
	fragments FragmentStore,
	tracker ProgressTracker,
	cfg *common.Config,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		jobs:          jobs,
		manifests:     manifests,
		files:         files,
		pageText:      pageText,
		extractor:     extractor,
		pageOCR:       pageOCR,
		deterministic: deterministic,
		vision:        vision,
		chunks:        chunks,
		indexer:       indexer,
		fragments:     fragments,
		tracker:       tracker,
		cfg:           cfg,
		logger:        logger,
	}
}

// Run executes a job to a terminal status. Any error escaping the run body
// marks the job FAILED with the error text.
func (p *Processor) Run(ctx context.Context, jobID uuid.UUID) {
	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		p.logger.Error("job not found", "job_id", jobID, "error", err)
		return
	}
	if err := p.process(ctx, job); err != nil {
		p.logger.Error("job failed", "job_id", job.ID, "error", err)
		p.tracker.Fail(job.ID, err.Error())
		job.Status = constants.JobStatusFailed
		job.Error = err.Error()
		if saveErr := p.jobs.Save(ctx, job); saveErr != nil {
			p.logger.Error("could not record job failure", "job_id", job.ID, "error", saveErr)
		}
	}
}

func (p *Processor) process(ctx context.Context, job *entity.Job) error {
	log := p.logger.With("job_id", job.ID, "tenant_id", job.TenantID, "document_id", job.DocumentID)

	job.Status = constants.JobStatusProcessing
	if err := p.jobs.Save(ctx, job); err != nil {
		return err
	}

	filePath := p.files.SourcePath(job.TenantID, job.DocumentID, job.Filename)
	if _, err := os.Stat(filePath); err != nil {
		return fmt.Errorf("file not found: %s", job.Filename)
	}
	fileHash, err := storage.HashFile(filePath)
	if err != nil {
		return err
	}

	manifest, err := p.manifests.Get(ctx, job.TenantID, job.DocumentID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}

	// Unchanged document with every page already done: no-op resume.
	if job.ReprocessMode == constants.ReprocessNone && manifest != nil &&
		manifest.FileHash == fileHash && manifest.AllPagesCompleted() {
		log.Info("document unchanged and fully processed, resuming to READY",
			"pages", len(manifest.Pages), "fragments", manifest.Fragments)
		job.PagesTotal = len(manifest.Pages)
		job.PagesDone = len(manifest.Pages)
		job.FragmentsTotal = manifest.Fragments
		job.FragmentsDone = manifest.Fragments
		job.Error = ""
		job.Status = constants.JobStatusReady
		p.tracker.Complete(job.ID)
		return p.jobs.Save(ctx, job)
	}

	if manifest == nil {
		manifest = entity.NewManifest(job.TenantID, job.DocumentID, job.Filename, fileHash)
		if err := p.manifests.Save(ctx, manifest); err != nil {
			return err
		}
	} else if manifest.FileHash != fileHash {
		log.Info("content hash changed, invalidating prior state",
			"old_hash", manifest.FileHash, "new_hash", fileHash)
		if _, err := p.fragments.DeleteByDocument(ctx, job.TenantID, job.DocumentID); err != nil {
			return err
		}
		manifest = entity.NewManifest(job.TenantID, job.DocumentID, job.Filename, fileHash)
		if err := p.manifests.Save(ctx, manifest); err != nil {
			return err
		}
	}

	// Full reprocess with persisted text skips extraction and OCR entirely.
	if job.ReprocessMode == constants.ReprocessFull {
		persisted, err := p.pageText.ListPages(job.TenantID, job.DocumentID)
		if err != nil {
			return err
		}
		if len(persisted) > 0 {
			return p.rebuildFromPersisted(ctx, job, manifest, persisted)
		}
	}

	preset := job.OCRPreset
	if preset == "" {
		preset = p.cfg.OCR.Preset
	}

	sel := ocr.SelectProvider(p.cfg.OCR.Provider, p.deterministic, p.vision)
	if sel.Err != nil {
		return sel.Err
	}
	job.OCRAvailable = sel.Available
	if err := p.jobs.Save(ctx, job); err != nil {
		return err
	}
	log.Info("OCR provider selected", "provider", sel.Provider, "available", sel.Available)

	pages, err := p.extractor.ExtractPages(ctx, filePath)
	if err != nil {
		return err
	}
	totalPages := len(pages)
	anyNeedsOCR := false
	for _, pg := range pages {
		if pg.NeedsOCR {
			anyNeedsOCR = true
			break
		}
	}

	job.PagesTotal = totalPages
	job.PagesDone = 0
	if err := p.jobs.Save(ctx, job); err != nil {
		return err
	}
	manifest.SetStatus(constants.ManifestProcessing)
	if err := p.manifests.Save(ctx, manifest); err != nil {
		return err
	}

	// Batch hybrid OCR only applies to the deterministic provider; the
	// vision provider handles pages one at a time in the loop below.
	var hybridPages []string
	hybridUsed := false
	if anyNeedsOCR && sel.Available && sel.Provider == constants.ProviderDeterministic {
		job.OCRAttempted = true
		texts, meta, hybridErr := p.pageOCR.ExtractAllPages(ctx, filePath, totalPages, preset)
		if hybridErr != nil {
			log.Warn("hybrid OCR failed, falling back to page-by-page OCR", "error", hybridErr)
		} else {
			hybridPages = texts
			hybridUsed = true
			if meta.FallbackUsed {
				log.Info("vision fallback was used for the whole batch", "issues", meta.QualityIssues)
			}
		}
	} else if anyNeedsOCR && sel.Available && sel.Provider == constants.ProviderVision {
		job.OCRAttempted = true
	}

	var (
		outcomes []PageOutcome
		ocrTexts []string
	)
	for _, pg := range pages {
		outcome, collected := p.processPage(ctx, job, manifest, pg, fileHash, sel, preset, hybridPages, hybridUsed, filePath, log)
		if err := p.applyOutcome(ctx, job, manifest, outcome); err != nil {
			return err
		}
		outcomes = append(outcomes, outcome)
		if collected != "" {
			ocrTexts = append(ocrTexts, collected)
		}
	}
	summary := Summarize(outcomes)

	// Duplicate-page safety net. The hybrid batch path already went through
	// quality validation, so only the per-page path is checked.
	if !hybridUsed && len(ocrTexts) >= p.cfg.OCR.DuplicateRunLength {
		if run := ocr.LongestDuplicateRun(ocrTexts); run >= p.cfg.OCR.DuplicateRunLength {
			msg := fmt.Sprintf(
				"OCR produced repeated pages; likely table/scanned issue; try table_ocr preset (found %d consecutive identical pages)",
				run)
			log.Warn("duplicate OCR pages detected", "run", run)
			manifest.SetStatus(constants.ManifestFailed)
			if err := p.manifests.Save(ctx, manifest); err != nil {
				return err
			}
			job.Status = constants.JobStatusFailed
			job.PagesDone = totalPages
			job.FragmentsTotal = 0
			job.FragmentsDone = 0
			job.Error = msg
			p.tracker.Fail(job.ID, msg)
			return p.jobs.Save(ctx, job)
		}
	}

	// Chunk and index over everything persisted for the document, not just
	// the pages touched in this run.
	indexed := 0
	if summary.PagesDone > 0 {
		if job.ReprocessMode != constants.ReprocessNone {
			if _, err := p.fragments.DeleteByDocument(ctx, job.TenantID, job.DocumentID); err != nil {
				return err
			}
		}
		indexed, err = p.chunkAndIndex(ctx, job, manifest)
		if err != nil {
			return err
		}
	} else {
		log.Warn("no pages were processed")
	}

	return p.finish(ctx, job, manifest, summary, totalPages, indexed)
}

// processPage decides one page's outcome without touching persistent state.
// The second return value carries OCR'd text for duplicate detection.
func (p *Processor) processPage(
	ctx context.Context,
	job *entity.Job,
	manifest *entity.Manifest,
	pg extract.PageText,
	fileHash string,
	sel ocr.Selection,
	preset constants.OCRPreset,
	hybridPages []string,
	hybridUsed bool,
	filePath string,
	log *slog.Logger,
) (PageOutcome, string) {
	pageNum := pg.Number
	text := pg.Text
	needsOCR := pg.NeedsOCR
	if len(strings.TrimSpace(text)) < p.cfg.OCR.ForceOCRThreshold {
		needsOCR = true
	}

	// Resumability: a page completed under the current hash is skipped.
	// Pages awaiting OCR are only skippable if OCR actually produced them.
	if job.ReprocessMode == constants.ReprocessNone && manifest.ShouldSkipPage(pageNum, fileHash) {
		if !needsOCR {
			return skippedPage(pageNum), ""
		}
		if rec := manifest.Page(pageNum); rec != nil && rec.OCRUsed {
			return skippedPage(pageNum), ""
		}
	}

	ocrUsed := false
	provider := constants.OCRProvider("")
	collected := ""

	if hybridUsed && pageNum <= len(hybridPages) {
		text = hybridPages[pageNum-1]
		ocrUsed = true
		provider = constants.ProviderDeterministic
	} else if needsOCR {
		job.OCRAttempted = true

		if !sel.Available {
			msg := fmt.Sprintf("OCR prerequisites missing (provider=%s)", sel.Provider)
			log.Warn("page needs OCR but no provider is usable", "page", pageNum)
			return failedPage(pageNum, msg, false, sel.Provider), ""
		}

		log.Info("running OCR", "page", pageNum, "provider", sel.Provider)
		ocrText, usedProvider, err := p.pageOCR.ExtractPage(ctx, filePath, pageNum, sel.Provider, preset)
		if err != nil {
			msg := fmt.Sprintf("OCR failed (%s): %v", sel.Provider, err)
			return failedPage(pageNum, msg, true, sel.Provider), ""
		}
		if len(strings.TrimSpace(ocrText)) == 0 {
			msg := fmt.Sprintf("OCR produced no text (provider=%s)", sel.Provider)
			return failedPage(pageNum, msg, true, sel.Provider), ""
		}
		text = ocrText
		ocrUsed = true
		provider = usedProvider
		collected = ocrText
	}

	lineCount := 0
	if text != "" {
		lineCount = len(strings.Split(strings.TrimSuffix(text, "\n"), "\n"))
	}
	return completedPage(pageNum, text, lineCount, ocrUsed, provider), collected
}

// applyOutcome persists one page outcome: page text to disk, page record to
// the manifest, progress to the job, in that order.
func (p *Processor) applyOutcome(ctx context.Context, job *entity.Job, manifest *entity.Manifest, o PageOutcome) error {
	switch o.Kind {
	case OutcomeSkipped:
		// already recorded under this hash, just advance progress
	case OutcomeCompleted:
		path, err := p.pageText.WritePage(job.TenantID, job.DocumentID, o.Page, o.Text)
		if err != nil {
			manifest.UpdatePage(o.Page, constants.PageFailed, "", o.OCRUsed, 0, err.Error())
			if mErr := p.manifests.Save(ctx, manifest); mErr != nil {
				return mErr
			}
			break
		}
		manifest.UpdatePage(o.Page, constants.PageCompleted, path, o.OCRUsed, o.LineCount, "")
		if err := p.manifests.Save(ctx, manifest); err != nil {
			return err
		}
	case OutcomeFailed:
		manifest.UpdatePage(o.Page, constants.PageFailed, "", o.OCRUsed, 0, o.Err)
		if err := p.manifests.Save(ctx, manifest); err != nil {
			return err
		}
	}

	job.PagesDone++
	p.tracker.Update(job.ID, job.PagesDone, job.PagesTotal, fmt.Sprintf("page %d", o.Page))
	return p.jobs.Save(ctx, job)
}

// chunkAndIndex rebuilds fragments from all persisted page text and writes
// them to the vector collection.
func (p *Processor) chunkAndIndex(ctx context.Context, job *entity.Job, manifest *entity.Manifest) (int, error) {
	pages, err := p.loadPersistedPages(job.TenantID, job.DocumentID)
	if err != nil {
		return 0, err
	}

	fragments := p.chunks.Build(job.TenantID, job.DocumentID, job.Filename, pages)
	job.FragmentsTotal = len(fragments)
	job.FragmentsDone = 0
	if err := p.jobs.Save(ctx, job); err != nil {
		return 0, err
	}
	p.logger.Info("built fragments", "job_id", job.ID, "fragments", len(fragments), "pages", len(pages))

	if len(fragments) == 0 {
		return 0, nil
	}

	return p.indexer.Index(ctx, job.TenantID, fragments, func(ctx context.Context, done int) error {
		job.FragmentsDone = done
		p.tracker.Update(job.ID, done, job.FragmentsTotal, "indexing")
		if err := p.jobs.Save(ctx, job); err != nil {
			return err
		}
		manifest.SetFragments(done)
		return p.manifests.Save(ctx, manifest)
	})
}

func (p *Processor) loadPersistedPages(tenantID, documentID string) ([]chunker.Page, error) {
	nums, err := p.pageText.ListPages(tenantID, documentID)
	if err != nil {
		return nil, err
	}
	var pages []chunker.Page
	for _, n := range nums {
		text, err := p.pageText.ReadPage(tenantID, documentID, n)
		if err != nil {
			p.logger.Warn("could not read persisted page", "page", n, "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, chunker.Page{Number: n, Text: text})
	}
	return pages, nil
}

// rebuildFromPersisted is the full-reprocess shortcut: discard fragments,
// rebuild them from persisted page text, skip extraction and OCR.
func (p *Processor) rebuildFromPersisted(ctx context.Context, job *entity.Job, manifest *entity.Manifest, persisted []int) error {
	p.logger.Info("full reprocess from persisted pages",
		"job_id", job.ID, "document_id", job.DocumentID, "pages", len(persisted))

	job.OCRAvailable = p.deterministic.Available() == nil
	if _, err := p.fragments.DeleteByDocument(ctx, job.TenantID, job.DocumentID); err != nil {
		return err
	}

	job.PagesTotal = len(persisted)
	job.PagesDone = len(persisted)
	if err := p.jobs.Save(ctx, job); err != nil {
		return err
	}

	indexed, err := p.chunkAndIndex(ctx, job, manifest)
	if err != nil {
		return err
	}
	if indexed == 0 {
		manifest.SetStatus(constants.ManifestFailed)
		if err := p.manifests.Save(ctx, manifest); err != nil {
			return err
		}
		job.Status = constants.JobStatusFailed
		job.Error = "no fragments created from persisted text pages"
		p.tracker.Fail(job.ID, job.Error)
		return p.jobs.Save(ctx, job)
	}

	manifest.SetStatus(constants.ManifestReady)
	if err := p.manifests.Save(ctx, manifest); err != nil {
		return err
	}
	job.Status = constants.JobStatusReady
	job.FragmentsTotal = indexed
	job.FragmentsDone = indexed
	job.Error = ""
	p.tracker.Complete(job.ID)
	return p.jobs.Save(ctx, job)
}

// finish decides the terminal status. READY requires at least one processed
// page and at least one indexed fragment; anything else fails with the most
// specific diagnosable cause.
func (p *Processor) finish(ctx context.Context, job *entity.Job, manifest *entity.Manifest, summary RunSummary, totalPages, indexed int) error {
	if summary.PagesDone > 0 && indexed > 0 {
		manifest.SetStatus(constants.ManifestReady)
		if err := p.manifests.Save(ctx, manifest); err != nil {
			return err
		}
		job.Status = constants.JobStatusReady
		job.PagesDone = totalPages
		job.FragmentsTotal = indexed
		job.FragmentsDone = indexed
		job.Error = ""
		p.logger.Info("job complete", "job_id", job.ID, "pages", totalPages, "fragments", indexed)
		p.tracker.Complete(job.ID)
		return p.jobs.Save(ctx, job)
	}

	status := constants.JobStatusFailed
	var msg string
	switch {
	case summary.PagesDone == 0:
		msg = "All pages failed to process"
	case indexed == 0:
		failed := manifest.FailedPages()
		if len(failed) > 0 && job.OCRAttempted {
			ocrErr, allPrereq := firstOCRError(failed)
			if ocrErr != "" {
				msg = "OCR failed: " + ocrErr
				if allPrereq {
					status = constants.JobStatusOCRNeeded
				} else {
					status = constants.JobStatusOCRFailed
				}
			} else {
				msg = "No fragments created from processed pages"
			}
		} else {
			msg = "No fragments created from OCR text"
		}
	default:
		msg = "Job failed for unknown reason"
	}

	manifest.SetStatus(constants.ManifestFailed)
	if err := p.manifests.Save(ctx, manifest); err != nil {
		return err
	}
	job.Status = status
	if summary.PagesDone > 0 {
		job.PagesDone = totalPages
	}
	job.FragmentsTotal = indexed
	job.FragmentsDone = indexed
	job.Error = msg
	p.logger.Warn("job did not reach READY", "job_id", job.ID, "status", status, "error", msg)
	p.tracker.Fail(job.ID, msg)
	return p.jobs.Save(ctx, job)
}

// firstOCRError picks the first OCR-specific page error and reports whether
// every OCR error was a missing-prerequisite one.
func firstOCRError(failed []entity.PageRecord) (string, bool) {
	first := ""
	allPrereq := true
	for _, rec := range failed {
		if !strings.Contains(rec.Error, "OCR") {
			continue
		}
		if first == "" {
			first = rec.Error
		}
		if !strings.HasPrefix(rec.Error, "OCR prerequisites missing") {
			allPrereq = false
		}
	}
	if first == "" {
		return "", false
	}
	return first, allPrereq
}
