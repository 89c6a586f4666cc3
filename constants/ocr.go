package constants

import "strings"

// OCRProvider identifies which extraction backend produced a page of text.
type OCRProvider string

const (
	ProviderDeterministic OCRProvider = "tesseract"
	ProviderVision        OCRProvider = "vision"
	ProviderUnavailable   OCRProvider = "unavailable"
)

// OCRProviderPolicy is the configured selection policy, resolved to an
// OCRProvider once per job.
type OCRProviderPolicy string

const (
	PolicyAuto          OCRProviderPolicy = "auto"
	PolicyDeterministic OCRProviderPolicy = "tesseract"
	PolicyVision        OCRProviderPolicy = "vision"
)

// OCRPreset tunes tesseract for the document layout.
type OCRPreset string

const (
	PresetNormal OCRPreset = "normal_ocr"
	PresetTable  OCRPreset = "table_ocr"
)

// ParseOCRPreset falls back to PresetNormal for unknown values.
func ParseOCRPreset(s string) OCRPreset {
	if OCRPreset(s) == PresetTable {
		return PresetTable
	}
	return PresetNormal
}

// AllowedExtensions holds the file extensions the intake accepts.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
