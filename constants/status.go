package constants

// JobStatus is the canonical status for a processing job.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued     JobStatus = "QUEUED"     // accepted, waiting for a worker
	JobStatusProcessing JobStatus = "PROCESSING" // some stage is executing
	JobStatusCompleted  JobStatus = "COMPLETED"  // terminal success
	JobStatusFailed     JobStatus = "FAILED"     // terminal failure
	JobStatusCancelled  JobStatus = "CANCELLED"  // terminal, externally cancelled
)

// JobStatusNames lists the stable status strings for schema validators.
var JobStatusNames = []string{
	string(JobStatusQueued),
	string(JobStatusProcessing),
	string(JobStatusCompleted),
	string(JobStatusFailed),
	string(JobStatusCancelled),
}

// Retry policy defaults for a single stage.
const MaxStageRetries = 3

// RetryBackoffSeconds is the delay table indexed by retry count, clamped
// to the last entry.
var RetryBackoffSeconds = []int{1, 2, 5}
