// Package quiz drives a single quiz attempt from initialization through
// answering, navigation and completion. Pack-backed and Boost-backed sessions
// run through the same state machine, differing only in how their questions
// are resolved.
package quiz

import (
	"context"
	"math/rand"
	"time"

	"selfquiz/internal/domain"
	"selfquiz/internal/errors"
	"selfquiz/internal/event"
	"selfquiz/internal/ledger"
	"selfquiz/internal/pack"
	"selfquiz/internal/stats"
)

type Config struct {
	Packs    *pack.Service
	Ledger   *ledger.Service
	Stats    *stats.Service
	EventBus *event.Bus

	// Now and Rand override the clock and the shuffle source, for tests.
	Now  func() time.Time
	Rand *rand.Rand
}

type Service struct {
	packs  *pack.Service
	ledger *ledger.Service
	stats  *stats.Service
	eb     *event.Bus
	now    func() time.Time
	rand   *rand.Rand
}

func NewService(c Config) *Service {
	s := &Service{
		packs:  c.Packs,
		ledger: c.Ledger,
		stats:  c.Stats,
		eb:     c.EventBus,
		now:    c.Now,
		rand:   c.Rand,
	}

	if s.now == nil {
		s.now = time.Now
	}
	if s.rand == nil {
		s.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return s
}

// StartRequest configures a new session.
type StartRequest struct {
	// SourceID selects the question pack. Ignored when Boost is set.
	SourceID string
	// QuestionCount truncates the question sequence. Ignored for Boost
	// sessions, which always use every supplied record.
	QuestionCount int
	Shuffle       bool
	// Boost, when present, builds the session from wrong-answer records
	// instead of a pack.
	Boost *Boost
}

// Boost configures a retry session built from ledger records.
type Boost struct {
	Records []domain.WrongAnswer
}

// question is a session-runtime question. Boost questions carry the ledger
// record id for clearing on a correct answer; both kinds keep their original
// pack identity and source index so repeated misses upsert the same record.
type question struct {
	domain.Question

	sourceIndex   int
	wrongAnswerID string
	packID        string
	packName      string
}

// Start resolves the question source and returns a session in progress.
func (s *Service) Start(ctx context.Context, req StartRequest) (*Session, error) {
	var questions []question

	if req.Boost != nil {
		questions = rehydrate(req.Boost.Records)
		if req.Shuffle {
			questions = shuffleQuestions(s.rand, questions)
		}
	} else {
		p, err := s.packs.FindByID(ctx, req.SourceID)
		if err != nil {
			return nil, err
		}

		questions = fromPack(p)
		if req.Shuffle {
			questions = shuffleQuestions(s.rand, questions)
		}
		if req.QuestionCount > 0 && req.QuestionCount < len(questions) {
			questions = questions[:req.QuestionCount]
		}
	}

	if len(questions) == 0 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("no questions available"))
	}

	return &Session{
		svc:       s,
		questions: questions,
		answers:   make([]*AnswerRecord, len(questions)),
		startTime: s.now(),
		topics:    make(map[string]domain.TopicScore),
		state:     stateInProgress,
	}, nil
}

func fromPack(p *domain.Pack) []question {
	questions := make([]question, 0, len(p.Questions))
	for i, q := range p.Questions {
		questions = append(questions, question{
			Question:    q,
			sourceIndex: i,
			packID:      p.ID,
			packName:    p.Name,
		})
	}

	return questions
}

func rehydrate(records []domain.WrongAnswer) []question {
	questions := make([]question, 0, len(records))
	for _, wa := range records {
		questions = append(questions, question{
			Question: domain.Question{
				Question:      wa.Question,
				Options:       wa.Options,
				CorrectAnswer: wa.CorrectAnswer,
				Explanation:   wa.Explanation,
				Topic:         wa.Topic,
			},
			sourceIndex:   wa.QuestionID,
			wrongAnswerID: wa.ID,
			packID:        wa.PackID,
			packName:      wa.PackName,
		})
	}

	return questions
}

// shuffleQuestions returns a Fisher-Yates shuffled copy, leaving the input
// untouched.
func shuffleQuestions(r *rand.Rand, questions []question) []question {
	shuffled := make([]question, len(questions))
	copy(shuffled, questions)

	for i := len(shuffled) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	return shuffled
}
