package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/tade-balogun/policy-engine/constants"
	"github.com/tade-balogun/policy-engine/internal/common"
)

// Engine recognizes text on rendered document pages.
type Engine interface {
	Provider() constants.OCRProvider
	// Available reports whether the engine's prerequisites are present.
	Available() error
	// ExtractImage recognizes one rendered page image. An empty preset
	// means the engine's configured default.
	ExtractImage(ctx context.Context, imagePath string, pageNum int, preset constants.OCRPreset) (string, error)
}

// TesseractEngine is the deterministic first-stage recognizer. Pages are
// rendered with pdftoppm, cleaned up with ImageMagick (grayscale, local
// adaptive threshold, deskew) and fed to tesseract.
type TesseractEngine struct {
	runner Runner
	cfg    common.OCRConfig
	logger *slog.Logger
}

func NewTesseractEngine(runner Runner, cfg common.OCRConfig, logger *slog.Logger) *TesseractEngine {
	return &TesseractEngine{runner: runner, cfg: cfg, logger: logger}
}

func (e *TesseractEngine) Provider() constants.OCRProvider { return constants.ProviderDeterministic }

func (e *TesseractEngine) Available() error {
	for _, bin := range []string{e.cfg.Tesseract, e.cfg.Pdftoppm} {
		if _, err := exec.LookPath(bin); err != nil {
			return common.PrerequisiteError(bin)
		}
	}
	return nil
}

func (e *TesseractEngine) ExtractImage(ctx context.Context, imagePath string, pageNum int, preset constants.OCRPreset) (string, error) {
	cleaned, err := e.preprocess(ctx, imagePath)
	if err != nil {
		// preprocessing is best-effort, OCR the raw render instead
		e.logger.Warn("image preprocessing failed", "page", pageNum, "error", err)
		cleaned = imagePath
	}
	return e.recognize(ctx, cleaned, preset)
}

// preprocess writes a cleaned copy of the image next to the original.
func (e *TesseractEngine) preprocess(ctx context.Context, imagePath string) (string, error) {
	if _, err := exec.LookPath(e.cfg.Magick); err != nil {
		return "", common.PrerequisiteError(e.cfg.Magick)
	}
	out := imagePath[:len(imagePath)-len(filepath.Ext(imagePath))] + "_pp.png"
	// magick <in> -colorspace Gray -lat 25x25+10% -deskew 40% <out>
	_, errb, err := e.runner.Run(ctx, e.cfg.Magick, imagePath,
		"-colorspace", "Gray", "-lat", "25x25+10%", "-deskew", "40%", out)
	if err != nil {
		return "", fmt.Errorf("magick preprocess: %s: %w", truncate(string(errb), 512), err)
	}
	return out, nil
}

func (e *TesseractEngine) recognize(ctx context.Context, imagePath string, preset constants.OCRPreset) (string, error) {
	if preset == "" {
		preset = e.cfg.Preset
	}
	args := []string{imagePath, "stdout", "-l", e.cfg.Language, "--oem", "3", "--psm", "6"}
	if preset == constants.PresetTable {
		args = append(args, "-c", "preserve_interword_spaces=1")
	}
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %s: %w", truncate(string(errb), 512), err)
	}
	return string(out), nil
}

// Renderer rasterizes PDF pages to PNG for the OCR engines.
type Renderer struct {
	runner Runner
	cfg    common.OCRConfig
}

func NewRenderer(runner Runner, cfg common.OCRConfig) *Renderer {
	return &Renderer{runner: runner, cfg: cfg}
}

// RenderPage rasterizes a single page into tmpDir and returns the PNG path.
func (r *Renderer) RenderPage(ctx context.Context, pdfPath string, pageNum, dpi int, tmpDir string) (string, error) {
	prefix := filepath.Join(tmpDir, fmt.Sprintf("page_%d", pageNum))
	// pdftoppm -r <dpi> -png -f N -l N <in.pdf> <prefix>
	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm,
		"-r", fmt.Sprintf("%d", dpi), "-png",
		"-f", fmt.Sprintf("%d", pageNum), "-l", fmt.Sprintf("%d", pageNum),
		pdfPath, prefix)
	if err != nil {
		return "", fmt.Errorf("pdftoppm page %d: %s: %w", pageNum, truncate(string(errb), 512), err)
	}
	matches, _ := filepath.Glob(prefix + "-*.png")
	if len(matches) == 0 {
		return "", fmt.Errorf("pdftoppm rendered no image for page %d", pageNum)
	}
	return matches[0], nil
}

// RenderAll rasterizes every page into tmpDir, returned in page order.
func (r *Renderer) RenderAll(ctx context.Context, pdfPath string, dpi int, tmpDir string) ([]string, error) {
	prefix := filepath.Join(tmpDir, "page")
	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm,
		"-r", fmt.Sprintf("%d", dpi), "-png", pdfPath, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %s: %w", truncate(string(errb), 512), err)
	}
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Slice(matches, func(i, j int) bool {
		return pageIndex(matches[i]) < pageIndex(matches[j])
	})
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm rendered no images")
	}
	return matches, nil
}

// pageIndex orders pdftoppm output files (prefix-1.png, prefix-2.png, ...).
func pageIndex(path string) int {
	base := filepath.Base(path)
	var n int
	_, err := fmt.Sscanf(base, "page-%d.png", &n)
	if err != nil {
		return 1 << 30
	}
	return n
}

// TempDir creates a scratch directory for rendered pages.
func TempDir() (string, func(), error) {
	dir, err := os.MkdirTemp("", "pe-ocr-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("failed to remove temp dir", "path", dir, "error", err)
		}
	}
	return dir, cleanup, nil
}
