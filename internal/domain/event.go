package domain

const (
	EventNameSubmissionScored = "submission.scored"
)

type EventSubmissionScored struct {
	Submission ScoredSubmission
}

func (EventSubmissionScored) Name() string { return EventNameSubmissionScored }
