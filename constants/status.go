package constants

// JobStatus is the lifecycle state of one document analysis job.
type JobStatus string

// Stable values surfaced verbatim to callers.
const (
	JobStatusUploaded   JobStatus = "uploaded"        // accepted, waiting for a worker
	JobStatusExtracting JobStatus = "extracting_text" // extraction chain running
	JobStatusAnalyzing  JobStatus = "analyzing"       // analysis, location and scoring running
	JobStatusComplete   JobStatus = "complete"        // terminal success
	JobStatusError      JobStatus = "error"           // terminal failure, retry allowed
)

var statusProgress = map[JobStatus]int{
	JobStatusUploaded:   10,
	JobStatusExtracting: 30,
	JobStatusAnalyzing:  70,
	JobStatusComplete:   100,
}

var statusRank = map[JobStatus]int{
	JobStatusUploaded:   0,
	JobStatusExtracting: 1,
	JobStatusAnalyzing:  2,
	JobStatusComplete:   3,
}

// Progress returns the fixed progress percentage of a stage. The error state
// has no fixed value; the job keeps the progress of the stage that failed.
func (s JobStatus) Progress() (int, bool) {
	p, ok := statusProgress[s]
	return p, ok
}

// Valid reports whether s is one of the defined states.
func (s JobStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok || s == JobStatusError
}

// Terminal reports whether no worker will write to the job again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusError
}

// CanAdvanceTo reports whether the forward transition s -> next is allowed.
// Backward moves only happen through retry.
func (s JobStatus) CanAdvanceTo(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == JobStatusError {
		return true
	}
	from, ok1 := statusRank[s]
	to, ok2 := statusRank[next]
	return ok1 && ok2 && to > from
}
