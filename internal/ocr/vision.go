package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/tade-balogun/policy-engine/constants"
	"github.com/tade-balogun/policy-engine/internal/common"
)

const visionPrompt = `Extract ALL readable text from this document page.

CRITICAL INSTRUCTIONS:
- Extract EVERY word and number you can see
- Preserve table structures (rows and columns)
- Ignore repeated headers/footers (if they appear on every page, skip them)
- Output clean plain text, one line per row for tables
- Do NOT summarize or paraphrase
- Do NOT add explanations or comments
- Include ALL text exactly as it appears
- For tables: preserve column alignment using spaces or tabs
- Output ONLY the extracted text, nothing else`

// VisionEngine is the second-stage recognizer. It sends the page render to
// a multimodal chat model and transcribes whatever tesseract could not read.
type VisionEngine struct {
	client    llms.Model
	maxTokens int
	logger    *slog.Logger
}

// NewVisionEngine builds the vision recognizer. A nil-client engine is
// returned when no API key is configured so provider selection can still
// interrogate availability.
func NewVisionEngine(cfg common.OCRConfig, logger *slog.Logger) (*VisionEngine, error) {
	e := &VisionEngine{maxTokens: cfg.VisionMaxTok, logger: logger}
	if cfg.VisionAPIKey == "" {
		return e, nil
	}
	opts := []openai.Option{
		openai.WithToken(cfg.VisionAPIKey),
		openai.WithModel(cfg.VisionModel),
	}
	if cfg.VisionBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.VisionBaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	e.client = client
	return e, nil
}

func (e *VisionEngine) Provider() constants.OCRProvider { return constants.ProviderVision }

func (e *VisionEngine) Available() error {
	if e.client == nil {
		return common.PrerequisiteError("vision API key")
	}
	return nil
}

// ExtractImage transcribes one rendered page. The preset only tunes the
// deterministic engine, so it is ignored here.
func (e *VisionEngine) ExtractImage(ctx context.Context, imagePath string, pageNum int, _ constants.OCRPreset) (string, error) {
	if e.client == nil {
		return "", common.PrerequisiteError("vision API key")
	}
	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read page image: %w", err)
	}

	content := []llms.MessageContent{
		{
			Role: schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(visionPrompt),
				llms.BinaryPart("image/png", imgData),
			},
		},
	}

	response, err := e.client.GenerateContent(ctx, content,
		llms.WithTemperature(0.0),
		llms.WithMaxTokens(e.maxTokens))
	if err != nil {
		return "", fmt.Errorf("vision OCR page %d: %w", pageNum, err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("vision OCR page %d: empty response", pageNum)
	}
	text := response.Choices[0].Content
	e.logger.Debug("vision OCR page done", "page", pageNum, "chars", len(text))
	return text, nil
}
