package constants

// JobStatus is the canonical status for ingestion jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued     JobStatus = "QUEUED"     // created, waiting for a worker
	JobStatusProcessing JobStatus = "PROCESSING" // in progress
	JobStatusReady      JobStatus = "READY"      // indexed, at least one fragment searchable
	JobStatusOCRNeeded  JobStatus = "OCR_NEEDED" // pages need OCR but no provider is available
	JobStatusOCRFailed  JobStatus = "OCR_FAILED" // OCR attempted and produced nothing usable
	JobStatusFailed     JobStatus = "FAILED"     // terminal failure
)

// ManifestStatus is the overall status of a document manifest.
type ManifestStatus string

const (
	ManifestInitializing ManifestStatus = "INITIALIZING"
	ManifestProcessing   ManifestStatus = "PROCESSING"
	ManifestReady        ManifestStatus = "READY"
	ManifestFailed       ManifestStatus = "FAILED"
)

// PageStatus is the per-page extraction outcome recorded in the manifest.
type PageStatus string

const (
	PageCompleted PageStatus = "COMPLETED"
	PageFailed    PageStatus = "FAILED"
)

// ReprocessMode selects how an existing document is reprocessed.
type ReprocessMode string

const (
	ReprocessNone    ReprocessMode = ""
	ReprocessOCROnly ReprocessMode = "ocr_only"
	ReprocessFull    ReprocessMode = "full"
)

// ParseReprocessMode validates a user-supplied mode string.
func ParseReprocessMode(s string) (ReprocessMode, bool) {
	switch ReprocessMode(s) {
	case ReprocessNone, ReprocessOCROnly, ReprocessFull:
		return ReprocessMode(s), true
	}
	return ReprocessNone, false
}
