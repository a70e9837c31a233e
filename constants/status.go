package constants

// NarrativeStatus is the outcome of the optional narrative request.
type NarrativeStatus string

// Stable values (store these exact strings in DB).
const (
	NarrativeSkipped NarrativeStatus = "SKIPPED" // not requested
	NarrativeOK      NarrativeStatus = "OK"      // text received
	NarrativeFailed  NarrativeStatus = "FAILED"  // request failed, analysis still valid
)

// JobStatus is the status of a batch job.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "QUEUED"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusDone    JobStatus = "DONE"
	JobStatusFailed  JobStatus = "FAILED"
)
