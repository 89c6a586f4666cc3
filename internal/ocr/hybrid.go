package ocr

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tade-balogun/policy-engine/constants"
	"github.com/tade-balogun/policy-engine/internal/common"
)

// BatchMetadata describes how a whole-document hybrid extraction went.
type BatchMetadata struct {
	MethodsUsed   []string
	QualityIssues []string
	QualityValid  bool
	FallbackUsed  bool
}

// HybridExtractor runs the two-tier OCR pipeline: tesseract over every page
// first, a batch-level quality validation, and a vision re-extraction of the
// whole batch when the deterministic output looks broken.
type HybridExtractor struct {
	renderer      *Renderer
	deterministic Engine
	vision        Engine
	cfg           common.OCRConfig
	logger        *slog.Logger
}

func NewHybridExtractor(renderer *Renderer, deterministic, vision Engine, cfg common.OCRConfig, logger *slog.Logger) *HybridExtractor {
	return &HybridExtractor{
		renderer:      renderer,
		deterministic: deterministic,
		vision:        vision,
		cfg:           cfg,
		logger:        logger,
	}
}

// ExtractAllPages OCRs the full document. The returned slice always has
// totalPages entries; a page whose recognition failed in both stages holds
// an empty string.
func (h *HybridExtractor) ExtractAllPages(ctx context.Context, pdfPath string, totalPages int, preset constants.OCRPreset) ([]string, BatchMetadata, error) {
	tmpDir, cleanup, err := TempDir()
	if err != nil {
		return nil, BatchMetadata{}, err
	}
	defer cleanup()

	images, err := h.renderer.RenderAll(ctx, pdfPath, h.cfg.DPI, tmpDir)
	if err != nil {
		return nil, BatchMetadata{}, err
	}

	h.logger.Info("hybrid OCR stage 1", "pages", totalPages, "rendered", len(images))

	textPages := make([]string, totalPages)
	methods := make([]string, totalPages)
	pageNumbers := make([]int, totalPages)
	for i := 0; i < totalPages; i++ {
		pageNum := i + 1
		pageNumbers[i] = pageNum
		if i >= len(images) {
			methods[i] = "failed"
			continue
		}
		text, err := h.deterministic.ExtractImage(ctx, images[i], pageNum, preset)
		if err != nil {
			h.logger.Warn("stage 1 OCR failed", "page", pageNum, "error", err)
			methods[i] = "tesseract_failed"
			continue
		}
		textPages[i] = text
		methods[i] = "tesseract"
	}

	valid, issues := ValidateQuality(textPages, pageNumbers)
	meta := BatchMetadata{MethodsUsed: methods, QualityIssues: issues, QualityValid: valid}
	if valid {
		h.logger.Info("hybrid OCR quality check passed")
		return textPages, meta, nil
	}
	if err := h.vision.Available(); err != nil {
		h.logger.Warn("quality check failed but vision fallback unavailable", "issues", issues)
		return textPages, meta, nil
	}

	h.logger.Info("hybrid OCR stage 2", "issues", issues)
	for i := 0; i < totalPages; i++ {
		if i >= len(images) {
			continue
		}
		pageNum := i + 1
		text, err := h.vision.ExtractImage(ctx, images[i], pageNum, preset)
		if err != nil {
			// keep the stage 1 text for this page
			h.logger.Warn("stage 2 OCR failed", "page", pageNum, "error", err)
			methods[i] = "vision_failed"
			continue
		}
		textPages[i] = text
		methods[i] = "vision"
	}
	meta.MethodsUsed = methods
	meta.FallbackUsed = true
	return textPages, meta, nil
}

// ExtractPage OCRs a single page with the selected provider. A tesseract
// failure falls back to vision when that backend is configured.
func (h *HybridExtractor) ExtractPage(ctx context.Context, pdfPath string, pageNum int, provider constants.OCRProvider, preset constants.OCRPreset) (string, constants.OCRProvider, error) {
	engine, dpi := h.deterministic, h.cfg.DPI
	if provider == constants.ProviderVision {
		engine, dpi = h.vision, h.cfg.VisionDPI
	}

	tmpDir, cleanup, err := TempDir()
	if err != nil {
		return "", provider, err
	}
	defer cleanup()

	image, err := h.renderer.RenderPage(ctx, pdfPath, pageNum, dpi, tmpDir)
	if err != nil {
		return "", provider, err
	}

	text, err := engine.ExtractImage(ctx, image, pageNum, preset)
	if err != nil && provider == constants.ProviderDeterministic && h.vision.Available() == nil {
		h.logger.Warn("tesseract failed, falling back to vision", "page", pageNum, "error", err)
		text, err = h.vision.ExtractImage(ctx, image, pageNum, preset)
		if err == nil {
			return text, constants.ProviderVision, nil
		}
	}
	if err != nil {
		return "", provider, fmt.Errorf("page %d: %w", pageNum, err)
	}
	return text, engine.Provider(), nil
}
