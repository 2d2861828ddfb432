package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"selfquiz/internal/domain"
	"selfquiz/internal/errors"
	"selfquiz/internal/ledger"
)

type state int

const (
	stateInProgress state = iota
	stateCompleted
)

// Session is one running quiz attempt. It is owned by a single caller and is
// not safe for concurrent use; every transition runs to completion before the
// next one starts. Nothing is persisted until Finish.
type Session struct {
	svc *Service

	questions []question
	current   int
	score     int
	answers   []*AnswerRecord
	startTime time.Time
	topics    map[string]domain.TopicScore
	state     state
}

// AnswerRecord is the stored outcome of one answered question. QuestionID is
// the position within the session.
type AnswerRecord struct {
	QuestionID     int    `json:"questionId"`
	SelectedAnswer int    `json:"selectedAnswer"`
	CorrectAnswer  int    `json:"correctAnswer"`
	IsCorrect      bool   `json:"isCorrect"`
	Topic          string `json:"topic"`
}

// AnswerResult is returned to the caller for display.
type AnswerResult struct {
	// AlreadyAnswered signals a no-op: the question had been answered before
	// and the stored record is returned unchanged.
	AlreadyAnswered bool         `json:"alreadyAnswered"`
	Answer          AnswerRecord `json:"answer"`
	Explanation     string       `json:"explanation,omitempty"`
}

// QuestionView is the read-only projection of the current question.
type QuestionView struct {
	Index       int           `json:"index"`
	Total       int           `json:"total"`
	Score       int           `json:"score"`
	Question    string        `json:"question"`
	Options     []string      `json:"options"`
	Topic       string        `json:"topic"`
	Answer      *AnswerRecord `json:"answer,omitempty"`
	Explanation string        `json:"explanation,omitempty"`
}

// Current returns the view of the question at the current index, including
// the stored outcome when it was already answered.
func (s *Session) Current() QuestionView {
	q := s.questions[s.current]

	v := QuestionView{
		Index:    s.current,
		Total:    len(s.questions),
		Score:    s.score,
		Question: q.Question.Question,
		Options:  q.Options,
		Topic:    q.Topic,
	}

	if a := s.answers[s.current]; a != nil {
		v.Answer = a
		v.Explanation = q.Explanation
	}

	return v
}

// SelectAnswer records the answer for the current question and applies the
// ledger side effects. Re-answering is a no-op reported via AlreadyAnswered.
func (s *Session) SelectAnswer(ctx context.Context, index int) (*AnswerResult, error) {
	if s.state != stateInProgress {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session is already completed"))
	}

	if index < 0 || index >= len(s.questions[s.current].Options) {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("answer index out of range: %d", index))
	}

	if a := s.answers[s.current]; a != nil {
		return &AnswerResult{AlreadyAnswered: true, Answer: *a}, nil
	}

	q := s.questions[s.current]
	isCorrect := index == q.CorrectAnswer

	record := AnswerRecord{
		QuestionID:     s.current,
		SelectedAnswer: index,
		CorrectAnswer:  q.CorrectAnswer,
		IsCorrect:      isCorrect,
		Topic:          q.Topic,
	}
	s.answers[s.current] = &record

	if isCorrect {
		s.score++
	}

	topic := q.Topic
	if topic == "" {
		topic = "General"
	}
	ts := s.topics[topic]
	ts.Total++
	if isCorrect {
		ts.Correct++
	}
	s.topics[topic] = ts

	s.applyLedger(ctx, q, index, isCorrect)

	return &AnswerResult{Answer: record, Explanation: q.Explanation}, nil
}

// applyLedger runs the Boost bookkeeping for one answered question. A miss is
// upserted under the question's original pack identity. A correct answer runs
// both clear paths: the text+pack match, and the record-id clear when the
// question came out of the ledger. Ledger failures are logged, never surfaced:
// the answer outcome already happened.
func (s *Session) applyLedger(ctx context.Context, q question, selected int, isCorrect bool) {
	if !isCorrect {
		_, err := s.svc.ledger.LogWrongAnswer(ctx, ledger.LogRequest{
			QuestionID:    q.sourceIndex,
			Question:      q.Question.Question,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			UserAnswer:    selected,
			Explanation:   q.Explanation,
			Topic:         q.Topic,
			PackID:        q.packID,
			PackName:      q.packName,
		})
		if err != nil {
			slog.ErrorContext(ctx, "quiz: log wrong answer failed", "error", err)
		}
		return
	}

	if _, err := s.svc.ledger.ClearMatching(ctx, q.Question.Question, q.packID); err != nil {
		slog.ErrorContext(ctx, "quiz: clear matching wrong answer failed", "error", err)
	}

	if q.wrongAnswerID != "" {
		err := s.svc.ledger.ClearByRecordID(ctx, q.wrongAnswerID)
		if err != nil && !errors.Is(err, errors.CodeNotFound) {
			slog.ErrorContext(ctx, "quiz: clear wrong answer record failed",
				"record", q.wrongAnswerID,
				"error", err,
			)
		}
	}
}

// Advance moves to the next question, clamped at the last one.
func (s *Session) Advance() error {
	if s.state != stateInProgress {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session is already completed"))
	}

	if s.current < len(s.questions)-1 {
		s.current++
	}

	return nil
}

// Retreat moves to the previous question, clamped at the first one. Moving to
// an answered question redisplays the stored outcome via Current.
func (s *Session) Retreat() error {
	if s.state != stateInProgress {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session is already completed"))
	}

	if s.current > 0 {
		s.current--
	}

	return nil
}

// Skip leaves the current question unanswered and advances. Skipping the last
// question reports readyToFinish instead; the slot stays empty and counts as
// missed at finish time. Skipping an answered question is illegal.
func (s *Session) Skip() (readyToFinish bool, err error) {
	if s.state != stateInProgress {
		return false, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session is already completed"))
	}

	if s.answers[s.current] != nil {
		return false, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("question %d is already answered", s.current))
	}

	if s.current < len(s.questions)-1 {
		s.current++
		return false, nil
	}

	return true, nil
}

// Finish closes the session, records the attempt in history and publishes the
// attempt-recorded event. The session accepts no operations afterwards.
func (s *Session) Finish(ctx context.Context) (*domain.Attempt, error) {
	if s.state != stateInProgress {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session is already completed"))
	}

	var (
		streak  int
		longest int
		missed  int
	)
	for _, a := range s.answers {
		switch {
		case a == nil:
			missed++
			streak = 0
		case a.IsCorrect:
			streak++
			if streak > longest {
				longest = streak
			}
		default:
			streak = 0
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate attempt ID: %w", err)
	}

	first := s.questions[0]
	chapterID, chapterTitle := first.ChapterID, first.ChapterTitle
	if chapterID == "" {
		chapterID = "all"
	}
	if chapterTitle == "" {
		chapterTitle = "All Topics"
	}

	attempt := domain.Attempt{
		ID:               id.String(),
		ChapterID:        chapterID,
		ChapterTitle:     chapterTitle,
		TotalQuestions:   len(s.questions),
		CorrectAnswers:   s.score,
		WrongAnswers:     len(s.questions) - s.score - missed,
		MissedQuestions:  missed,
		TimeSpent:        int(math.Round(s.svc.now().Sub(s.startTime).Minutes())),
		Streak:           longest,
		TopicPerformance: s.topics,
		Timestamp:        s.svc.now(),
	}

	if err := s.svc.stats.Append(ctx, attempt); err != nil {
		return nil, err
	}

	s.state = stateCompleted

	if s.svc.eb != nil {
		s.svc.eb.Publish(ctx, domain.EventAttemptRecorded{Attempt: attempt})
	}

	return &attempt, nil
}

// Score returns the number of correct answers so far.
func (s *Session) Score() int { return s.score }

// Index returns the current question index.
func (s *Session) Index() int { return s.current }

// Total returns the number of questions in the session.
func (s *Session) Total() int { return len(s.questions) }
