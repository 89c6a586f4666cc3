package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/tade-balogun/policy-engine/constants"
	"github.com/tade-balogun/policy-engine/internal/common"
	"github.com/tade-balogun/policy-engine/internal/ocr"
)

// ocrcheck OCRs a single page of a PDF and prints the recognized text,
// useful for tuning DPI, language and preset before a real ingest.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 3 {
		logger.Error("usage", "cmd", "ocrcheck <file.pdf> <page>")
		os.Exit(2)
	}
	pdfPath := os.Args[1]
	pageNum, err := strconv.Atoi(os.Args[2])
	if err != nil || pageNum < 1 {
		logger.Error("invalid page number", "arg", os.Args[2])
		os.Exit(2)
	}
	if _, err := os.Stat(pdfPath); err != nil {
		logger.Error("cannot read file", "path", pdfPath, "error", err)
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded")
	}
	cfg := common.LoadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	runner := ocr.NewExecRunner()
	deterministic := ocr.NewTesseractEngine(runner, cfg.OCR, logger)
	vision, err := ocr.NewVisionEngine(cfg.OCR, logger)
	if err != nil {
		logger.Error("vision engine init failed", "error", err)
		os.Exit(1)
	}

	sel := ocr.SelectProvider(cfg.OCR.Provider, deterministic, vision)
	if sel.Err != nil {
		logger.Error("provider unavailable", "error", sel.Err)
		os.Exit(1)
	}
	if !sel.Available {
		logger.Error("no OCR backend available (install tesseract/pdftoppm or set OPENAI_API_KEY)")
		os.Exit(1)
	}

	engine := ocr.Engine(deterministic)
	dpi := cfg.OCR.DPI
	if sel.Provider == constants.ProviderVision {
		engine = vision
		dpi = cfg.OCR.VisionDPI
	}

	tmpDir, cleanup, err := ocr.TempDir()
	if err != nil {
		logger.Error("temp dir", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	renderer := ocr.NewRenderer(runner, cfg.OCR)

	start := time.Now()
	imagePath, err := renderer.RenderPage(ctx, pdfPath, pageNum, dpi, tmpDir)
	if err != nil {
		logger.Error("page render failed", "page", pageNum, "error", err)
		os.Exit(1)
	}
	text, err := engine.ExtractImage(ctx, imagePath, pageNum, cfg.OCR.Preset)
	dur := time.Since(start)
	if err != nil {
		logger.Error("OCR failed",
			"page", pageNum, "provider", sel.Provider,
			"error", err, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	logger.Info("OCR OK",
		"page", pageNum,
		"provider", sel.Provider,
		"preset", cfg.OCR.Preset,
		"dpi", dpi,
		"chars", len(text),
		"duration_ms", dur.Milliseconds(),
	)
	fmt.Println(text)
}
