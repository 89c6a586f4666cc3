package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/tade-balogun/policy-engine/constants"
)

// Job represents one processing attempt for one document.
type Job struct {
	ID             uuid.UUID               `json:"id"`
	TenantID       string                  `json:"tenant_id"`
	DocumentID     string                  `json:"document_id"`
	Filename       string                  `json:"filename"`
	Status         constants.JobStatus     `json:"status"`
	PagesTotal     int                     `json:"pages_total"`
	PagesDone      int                     `json:"pages_done"`
	FragmentsTotal int                     `json:"fragments_total"`
	FragmentsDone  int                     `json:"fragments_done"`
	OCRAttempted   bool                    `json:"ocr_attempted"`
	OCRAvailable   bool                    `json:"ocr_available"`
	OCRPreset      constants.OCRPreset     `json:"ocr_preset"`
	Error          string                  `json:"error,omitempty"`
	ReprocessMode  constants.ReprocessMode `json:"reprocess_mode,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// NewJob returns a QUEUED job for the given document.
func NewJob(tenantID, documentID, filename string, mode constants.ReprocessMode, preset constants.OCRPreset) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:            uuid.New(),
		TenantID:      tenantID,
		DocumentID:    documentID,
		Filename:      filename,
		Status:        constants.JobStatusQueued,
		OCRPreset:     preset,
		ReprocessMode: mode,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ApplyReadyInvariant downgrades an attempted READY transition that carries
// no indexed fragments. READY is the only state permitted to report a
// nonzero fragment count; reaching it with zero is an orchestration bug,
// surfaced as FAILED rather than silently accepted. Repositories call this
// on every save.
func (j *Job) ApplyReadyInvariant() {
	if j.Status != constants.JobStatusReady {
		return
	}
	if j.FragmentsTotal == 0 || j.PagesDone == 0 {
		j.Status = constants.JobStatusFailed
		if j.Error == "" {
			j.Error = "no fragments indexed"
		}
	}
}

// Progress is the externally queryable job snapshot.
type Progress struct {
	JobID          uuid.UUID           `json:"job_id"`
	Status         constants.JobStatus `json:"status"`
	PagesTotal     int                 `json:"pages_total"`
	PagesDone      int                 `json:"pages_done"`
	FragmentsTotal int                 `json:"fragments_total"`
	FragmentsDone  int                 `json:"fragments_done"`
	OCRAttempted   bool                `json:"ocr_attempted"`
	OCRAvailable   bool                `json:"ocr_available"`
	Error          string              `json:"error,omitempty"`
}

// Snapshot projects the job into its progress view.
func (j *Job) Snapshot() Progress {
	return Progress{
		JobID:          j.ID,
		Status:         j.Status,
		PagesTotal:     j.PagesTotal,
		PagesDone:      j.PagesDone,
		FragmentsTotal: j.FragmentsTotal,
		FragmentsDone:  j.FragmentsDone,
		OCRAttempted:   j.OCRAttempted,
		OCRAvailable:   j.OCRAvailable,
		Error:          j.Error,
	}
}
