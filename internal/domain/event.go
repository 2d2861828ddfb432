package domain

const (
	EventNameAttemptRecorded   = "attempt.recorded"
	EventNameWrongAnswerLogged = "wronganswer.logged"
)

type EventAttemptRecorded struct {
	Attempt Attempt
}

func (EventAttemptRecorded) Name() string { return EventNameAttemptRecorded }

type EventWrongAnswerLogged struct {
	Record WrongAnswer
}

func (EventWrongAnswerLogged) Name() string { return EventNameWrongAnswerLogged }
