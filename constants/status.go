package constants

// DocStatus is the canonical lifecycle status for rows in documents.
type DocStatus string

// Stable values (store these exact strings in DB).
const (
	DocStatusQueued     DocStatus = "QUEUED"     // accepted, waiting for a worker
	DocStatusProcessing DocStatus = "PROCESSING" // render succeeded, extraction in flight
	DocStatusCompleted  DocStatus = "COMPLETED"  // result + validation log persisted
	DocStatusFailed     DocStatus = "FAILED"     // terminal failure for this attempt
)

// JobState is the in-queue state of a processing job. Unlike DocStatus it is
// owned by the queue, not the store.
type JobState string

const (
	JobStateWaiting   JobState = "WAITING"
	JobStateActive    JobState = "ACTIVE"
	JobStateCompleted JobState = "COMPLETED"
	JobStateFailed    JobState = "FAILED"
	JobStateStalled   JobState = "STALLED" // worker stopped heartbeating mid-job
)

// Terminal reports whether no further transitions are expected for s.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}
