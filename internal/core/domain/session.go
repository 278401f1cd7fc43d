package domain

import "time"

type SessionState string

const (
	StateIdle              SessionState = "idle"
	StateFileSelected      SessionState = "file_selected"
	StateAnalyzing         SessionState = "analyzing"
	StateOcrRetrying       SessionState = "ocr_retrying"
	StateAnalysisSucceeded SessionState = "analysis_succeeded"
	StateAnalysisFailed    SessionState = "analysis_failed"
	StateResultsShown      SessionState = "results_shown"
	StateConfirmed         SessionState = "confirmed"
	StateRejected          SessionState = "rejected"
	StateSubmitting        SessionState = "submitting"
	StateDuplicateDetected SessionState = "duplicate_detected"
	StateSaved             SessionState = "saved"
	StateSubmitFailed      SessionState = "submit_failed"
)

// legalTransitions encodes the upload-session lifecycle. A session walks
// Idle -> FileSelected -> Analyzing -> (OcrRetrying) -> ResultsShown ->
// Confirmed/Rejected -> Submitting -> Saved, with DuplicateDetected and
// SubmitFailed as recoverable detours. A failed analysis returns to
// FileSelected when the user picks a new file.
var legalTransitions = map[SessionState][]SessionState{
	StateIdle:              {StateFileSelected},
	StateFileSelected:      {StateAnalyzing},
	StateAnalyzing:         {StateOcrRetrying, StateAnalysisSucceeded, StateAnalysisFailed},
	StateOcrRetrying:       {StateAnalysisSucceeded, StateAnalysisFailed},
	StateAnalysisSucceeded: {StateResultsShown},
	StateAnalysisFailed:    {StateFileSelected},
	StateResultsShown:      {StateConfirmed, StateRejected},
	StateConfirmed:         {StateSubmitting, StateResultsShown},
	StateRejected:          {StateSubmitting, StateResultsShown},
	StateSubmitting:        {StateDuplicateDetected, StateSaved, StateSubmitFailed},
	StateDuplicateDetected: {StateSubmitting, StateConfirmed, StateRejected, StateResultsShown},
	StateSubmitFailed:      {StateSubmitting},
	StateSaved:             {},
}

// CanTransition reports whether moving from one session state to another is
// legal.
func CanTransition(from, to SessionState) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions leave the state.
func (s SessionState) IsTerminal() bool {
	return len(legalTransitions[s]) == 0
}

// ExistingDocument describes the already-stored document surfaced when a
// submission collides with previously uploaded content.
type ExistingDocument struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	UploadedAt time.Time `json:"uploaded_at"`
}
