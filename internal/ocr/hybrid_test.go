package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tade-balogun/policy-engine/constants"
	"github.com/tade-balogun/policy-engine/internal/common"
)

// fakeRenderRunner pretends to be pdftoppm: it writes the PNG files the
// renderer globs for instead of shelling out.
type fakeRenderRunner struct {
	pages int
}

func (f *fakeRenderRunner) Run(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
	prefix := args[len(args)-1]
	for i, a := range args {
		if a == "-f" {
			page, _ := strconv.Atoi(args[i+1])
			return nil, nil, os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, page), []byte("png"), 0o644)
		}
	}
	for p := 1; p <= f.pages; p++ {
		if err := os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, p), []byte("png"), 0o644); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, nil
}

type stubEngine struct {
	provider constants.OCRProvider
	avail    error
	extract  func(pageNum int) (string, error)
	presets  []constants.OCRPreset
}

func (s *stubEngine) Provider() constants.OCRProvider { return s.provider }
func (s *stubEngine) Available() error                { return s.avail }
func (s *stubEngine) ExtractImage(_ context.Context, _ string, pageNum int, preset constants.OCRPreset) (string, error) {
	s.presets = append(s.presets, preset)
	return s.extract(pageNum)
}

func hybridUnderTest(pages int, deterministic, vision Engine) *HybridExtractor {
	cfg := common.OCRConfig{Pdftoppm: "pdftoppm", DPI: 200, VisionDPI: 225}
	renderer := NewRenderer(&fakeRenderRunner{pages: pages}, cfg)
	return NewHybridExtractor(renderer, deterministic, vision, cfg, slog.Default())
}

func TestHybridExtractAllPages(t *testing.T) {
	ctx := context.Background()

	t.Run("clean first stage needs no fallback", func(t *testing.T) {
		deterministic := &stubEngine{
			provider: constants.ProviderDeterministic,
			extract:  func(pageNum int) (string, error) { return goodPage(pageNum), nil },
		}
		vision := &stubEngine{
			provider: constants.ProviderVision,
			extract:  func(int) (string, error) { t.Fatal("vision must not run"); return "", nil },
		}

		texts, meta, err := hybridUnderTest(3, deterministic, vision).ExtractAllPages(ctx, "doc.pdf", 3, constants.PresetNormal)
		require.NoError(t, err)
		require.Len(t, texts, 3)
		assert.True(t, meta.QualityValid)
		assert.False(t, meta.FallbackUsed)
		assert.Equal(t, []string{"tesseract", "tesseract", "tesseract"}, meta.MethodsUsed)
		assert.Equal(t, goodPage(2), texts[1])
	})

	t.Run("broken first stage re-extracts every page with vision", func(t *testing.T) {
		dup := goodPage(5)
		deterministic := &stubEngine{
			provider: constants.ProviderDeterministic,
			extract:  func(int) (string, error) { return dup, nil },
		}
		vision := &stubEngine{
			provider: constants.ProviderVision,
			extract:  func(pageNum int) (string, error) { return goodPage(100 + pageNum), nil },
		}

		texts, meta, err := hybridUnderTest(4, deterministic, vision).ExtractAllPages(ctx, "doc.pdf", 4, constants.PresetNormal)
		require.NoError(t, err)
		assert.True(t, meta.FallbackUsed)
		assert.False(t, meta.QualityValid)
		assert.NotEmpty(t, meta.QualityIssues)
		assert.Equal(t, []string{"vision", "vision", "vision", "vision"}, meta.MethodsUsed)
		for i, text := range texts {
			assert.Equal(t, goodPage(100+i+1), text)
		}
	})

	t.Run("vision unavailable keeps first stage output", func(t *testing.T) {
		dup := goodPage(5)
		deterministic := &stubEngine{
			provider: constants.ProviderDeterministic,
			extract:  func(int) (string, error) { return dup, nil },
		}
		vision := &stubEngine{
			provider: constants.ProviderVision,
			avail:    common.PrerequisiteError("vision API key"),
			extract:  func(int) (string, error) { t.Fatal("vision must not run"); return "", nil },
		}

		texts, meta, err := hybridUnderTest(3, deterministic, vision).ExtractAllPages(ctx, "doc.pdf", 3, constants.PresetNormal)
		require.NoError(t, err)
		assert.False(t, meta.FallbackUsed)
		assert.False(t, meta.QualityValid)
		assert.Equal(t, []string{dup, dup, dup}, texts)
	})

	t.Run("per-page vision failure keeps the first stage text", func(t *testing.T) {
		dup := goodPage(5)
		deterministic := &stubEngine{
			provider: constants.ProviderDeterministic,
			extract:  func(int) (string, error) { return dup, nil },
		}
		vision := &stubEngine{
			provider: constants.ProviderVision,
			extract: func(pageNum int) (string, error) {
				if pageNum == 2 {
					return "", errors.New("rate limited")
				}
				return goodPage(100 + pageNum), nil
			},
		}

		texts, meta, err := hybridUnderTest(3, deterministic, vision).ExtractAllPages(ctx, "doc.pdf", 3, constants.PresetNormal)
		require.NoError(t, err)
		assert.True(t, meta.FallbackUsed)
		assert.Equal(t, []string{"vision", "vision_failed", "vision"}, meta.MethodsUsed)
		assert.Equal(t, dup, texts[1])
		assert.Equal(t, goodPage(101), texts[0])
	})

	t.Run("preset reaches every stage one call", func(t *testing.T) {
		deterministic := &stubEngine{
			provider: constants.ProviderDeterministic,
			extract:  func(pageNum int) (string, error) { return goodPage(pageNum), nil },
		}
		vision := &stubEngine{provider: constants.ProviderVision, avail: common.PrerequisiteError("vision API key")}

		_, _, err := hybridUnderTest(2, deterministic, vision).ExtractAllPages(ctx, "doc.pdf", 2, constants.PresetTable)
		require.NoError(t, err)
		assert.Equal(t, []constants.OCRPreset{constants.PresetTable, constants.PresetTable}, deterministic.presets)
	})

	t.Run("first stage failure marks the page and moves on", func(t *testing.T) {
		deterministic := &stubEngine{
			provider: constants.ProviderDeterministic,
			extract: func(pageNum int) (string, error) {
				if pageNum == 1 {
					return "", errors.New("tesseract crashed")
				}
				return goodPage(pageNum), nil
			},
		}
		vision := &stubEngine{provider: constants.ProviderVision, avail: common.PrerequisiteError("vision API key")}

		texts, meta, err := hybridUnderTest(3, deterministic, vision).ExtractAllPages(ctx, "doc.pdf", 3, constants.PresetNormal)
		require.NoError(t, err)
		assert.Equal(t, "tesseract_failed", meta.MethodsUsed[0])
		assert.Empty(t, texts[0])
		assert.Equal(t, goodPage(2), texts[1])
	})
}

func TestHybridExtractPage(t *testing.T) {
	ctx := context.Background()

	t.Run("deterministic success", func(t *testing.T) {
		deterministic := &stubEngine{
			provider: constants.ProviderDeterministic,
			extract:  func(pageNum int) (string, error) { return fmt.Sprintf("page %d text", pageNum), nil },
		}
		vision := &stubEngine{provider: constants.ProviderVision, avail: common.PrerequisiteError("vision API key")}

		text, provider, err := hybridUnderTest(1, deterministic, vision).
			ExtractPage(ctx, "doc.pdf", 3, constants.ProviderDeterministic, constants.PresetNormal)
		require.NoError(t, err)
		assert.Equal(t, "page 3 text", text)
		assert.Equal(t, constants.ProviderDeterministic, provider)
	})

	t.Run("deterministic failure falls back to vision", func(t *testing.T) {
		deterministic := &stubEngine{
			provider: constants.ProviderDeterministic,
			extract:  func(int) (string, error) { return "", errors.New("tesseract crashed") },
		}
		vision := &stubEngine{
			provider: constants.ProviderVision,
			extract:  func(pageNum int) (string, error) { return fmt.Sprintf("vision page %d", pageNum), nil },
		}

		text, provider, err := hybridUnderTest(1, deterministic, vision).
			ExtractPage(ctx, "doc.pdf", 2, constants.ProviderDeterministic, constants.PresetNormal)
		require.NoError(t, err)
		assert.Equal(t, "vision page 2", text)
		assert.Equal(t, constants.ProviderVision, provider)
	})

	t.Run("both stages failing reports the page", func(t *testing.T) {
		deterministic := &stubEngine{
			provider: constants.ProviderDeterministic,
			extract:  func(int) (string, error) { return "", errors.New("tesseract crashed") },
		}
		vision := &stubEngine{
			provider: constants.ProviderVision,
			extract:  func(int) (string, error) { return "", errors.New("rate limited") },
		}

		_, _, err := hybridUnderTest(1, deterministic, vision).
			ExtractPage(ctx, "doc.pdf", 4, constants.ProviderDeterministic, constants.PresetNormal)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "page 4")
	})

	t.Run("preset travels with the single page call", func(t *testing.T) {
		deterministic := &stubEngine{
			provider: constants.ProviderDeterministic,
			extract:  func(pageNum int) (string, error) { return fmt.Sprintf("page %d text", pageNum), nil },
		}
		vision := &stubEngine{provider: constants.ProviderVision, avail: common.PrerequisiteError("vision API key")}

		_, _, err := hybridUnderTest(1, deterministic, vision).
			ExtractPage(ctx, "doc.pdf", 1, constants.ProviderDeterministic, constants.PresetTable)
		require.NoError(t, err)
		assert.Equal(t, []constants.OCRPreset{constants.PresetTable}, deterministic.presets)
	})

	t.Run("vision provider goes straight to vision", func(t *testing.T) {
		deterministic := &stubEngine{
			provider: constants.ProviderDeterministic,
			extract:  func(int) (string, error) { t.Fatal("tesseract must not run"); return "", nil },
		}
		vision := &stubEngine{
			provider: constants.ProviderVision,
			extract:  func(pageNum int) (string, error) { return fmt.Sprintf("vision page %d", pageNum), nil },
		}

		text, provider, err := hybridUnderTest(1, deterministic, vision).
			ExtractPage(ctx, "doc.pdf", 1, constants.ProviderVision, constants.PresetNormal)
		require.NoError(t, err)
		assert.Equal(t, "vision page 1", text)
		assert.Equal(t, constants.ProviderVision, provider)
	})
}

func TestSelectProvider(t *testing.T) {
	available := func(p constants.OCRProvider) Engine { return &stubEngine{provider: p} }
	missing := func(p constants.OCRProvider) Engine {
		return &stubEngine{provider: p, avail: common.PrerequisiteError(string(p))}
	}

	t.Run("auto prefers vision", func(t *testing.T) {
		sel := SelectProvider(constants.PolicyAuto,
			available(constants.ProviderDeterministic), available(constants.ProviderVision))
		assert.True(t, sel.Available)
		assert.Equal(t, constants.ProviderVision, sel.Provider)
		assert.NoError(t, sel.Err)
	})

	t.Run("auto falls back to tesseract", func(t *testing.T) {
		sel := SelectProvider(constants.PolicyAuto,
			available(constants.ProviderDeterministic), missing(constants.ProviderVision))
		assert.True(t, sel.Available)
		assert.Equal(t, constants.ProviderDeterministic, sel.Provider)
	})

	t.Run("auto with nothing installed", func(t *testing.T) {
		sel := SelectProvider(constants.PolicyAuto,
			missing(constants.ProviderDeterministic), missing(constants.ProviderVision))
		assert.False(t, sel.Available)
		assert.Equal(t, constants.ProviderUnavailable, sel.Provider)
		assert.NoError(t, sel.Err)
	})

	t.Run("explicit vision without a client errors", func(t *testing.T) {
		sel := SelectProvider(constants.PolicyVision,
			available(constants.ProviderDeterministic), missing(constants.ProviderVision))
		require.Error(t, sel.Err)
		assert.Equal(t, "OCR_PROVIDER=vision but OpenAI client not available (check OPENAI_API_KEY)", sel.Err.Error())
	})

	t.Run("explicit tesseract without binaries errors", func(t *testing.T) {
		sel := SelectProvider(constants.PolicyDeterministic,
			missing(constants.ProviderDeterministic), available(constants.ProviderVision))
		require.Error(t, sel.Err)
		assert.Equal(t, "OCR_PROVIDER=tesseract but prerequisites missing (tesseract/pdftoppm)", sel.Err.Error())
	})

	t.Run("explicit policies honor availability", func(t *testing.T) {
		sel := SelectProvider(constants.PolicyDeterministic,
			available(constants.ProviderDeterministic), missing(constants.ProviderVision))
		require.NoError(t, sel.Err)
		assert.True(t, sel.Available)
		assert.Equal(t, constants.ProviderDeterministic, sel.Provider)
	})
}
