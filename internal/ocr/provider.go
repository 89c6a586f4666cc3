package ocr

import (
	"fmt"

	"github.com/tade-balogun/policy-engine/constants"
)

// Selection is the outcome of resolving the configured provider policy
// against what is actually installed. Err is set only when an explicit
// policy names a backend whose prerequisites are missing.
type Selection struct {
	Provider  constants.OCRProvider
	Available bool
	Err       error
}

// SelectProvider resolves the policy once per job. "auto" prefers the
// vision backend when it is configured, then falls back to tesseract.
func SelectProvider(policy constants.OCRProviderPolicy, deterministic, vision Engine) Selection {
	tessErr := deterministic.Available()
	visionErr := vision.Available()

	switch policy {
	case constants.PolicyVision:
		if visionErr != nil {
			return Selection{
				Provider: constants.ProviderVision,
				Err:      fmt.Errorf("OCR_PROVIDER=vision but OpenAI client not available (check OPENAI_API_KEY)"),
			}
		}
		return Selection{Provider: constants.ProviderVision, Available: true}
	case constants.PolicyDeterministic:
		if tessErr != nil {
			return Selection{
				Provider: constants.ProviderDeterministic,
				Err:      fmt.Errorf("OCR_PROVIDER=tesseract but prerequisites missing (tesseract/pdftoppm)"),
			}
		}
		return Selection{Provider: constants.ProviderDeterministic, Available: true}
	default:
		if visionErr == nil {
			return Selection{Provider: constants.ProviderVision, Available: true}
		}
		if tessErr == nil {
			return Selection{Provider: constants.ProviderDeterministic, Available: true}
		}
		return Selection{Provider: constants.ProviderUnavailable}
	}
}
