package domain

const (
	EventNameSessionCreated    = "session.created"
	EventNameParticipantJoined = "participant.joined"
	EventNameSessionStarted    = "session.started"
	EventNameAnswerSubmitted   = "answer.submitted"
	EventNameQuestionAdvanced  = "question.advanced"
	EventNameSessionCompleted  = "session.completed"
)

// Events carry committed snapshots. Handlers must treat them as read-only.

type EventSessionCreated struct {
	Session *Session
}

func (EventSessionCreated) Name() string { return EventNameSessionCreated }

type EventParticipantJoined struct {
	SessionCode string
	Participant Participant
}

func (EventParticipantJoined) Name() string { return EventNameParticipantJoined }

type EventSessionStarted struct {
	Session *Session
}

func (EventSessionStarted) Name() string { return EventNameSessionStarted }

type EventAnswerSubmitted struct {
	SessionCode string
	UserID      string
	Record      AnswerRecord
	TotalScore  int
}

func (EventAnswerSubmitted) Name() string { return EventNameAnswerSubmitted }

type EventQuestionAdvanced struct {
	SessionCode          string
	CurrentQuestionIndex int
}

func (EventQuestionAdvanced) Name() string { return EventNameQuestionAdvanced }

// EventSessionCompleted is published once, when a session reaches COMPLETED by
// either running out of questions or a forced end.
type EventSessionCompleted struct {
	Session *Session
	Forced  bool
}

func (EventSessionCompleted) Name() string { return EventNameSessionCompleted }
