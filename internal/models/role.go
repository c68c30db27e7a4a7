package models

// ParticipantRole identifies which side of the interview a live connection
// or a reported violation belongs to. Room membership allows at most one
// active connection per role per session.
type ParticipantRole string

const (
	RoleCandidate   ParticipantRole = "candidate"
	RoleInterviewer ParticipantRole = "interviewer"
	RoleNone        ParticipantRole = ""
)

func (r ParticipantRole) Valid() bool {
	return r == RoleCandidate || r == RoleInterviewer
}

// Other returns the opposite side of the interview.
func (r ParticipantRole) Other() ParticipantRole {
	switch r {
	case RoleCandidate:
		return RoleInterviewer
	case RoleInterviewer:
		return RoleCandidate
	default:
		return RoleNone
	}
}

// DetectionSource maps a reporting role to the violation source recorded
// when the client did not state one.
func (r ParticipantRole) DetectionSource() ViolationSource {
	switch r {
	case RoleCandidate:
		return SourceCandidateDetection
	case RoleInterviewer:
		return SourceInterviewerDetection
	default:
		return SourceUnknown
	}
}
