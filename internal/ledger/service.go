// Package ledger tracks incorrectly answered questions for the Boost feature.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"selfquiz/internal/domain"
	"selfquiz/internal/errors"
	"selfquiz/internal/event"
	"selfquiz/internal/store"
)

type Config struct {
	Store    store.Store
	EventBus *event.Bus

	// Now overrides the clock, for tests.
	Now func() time.Time
}

type Service struct {
	store store.Store
	eb    *event.Bus
	now   func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store: c.Store,
		eb:    c.EventBus,
		now:   c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// LogRequest describes one incorrect answer to record.
type LogRequest struct {
	QuestionID    int
	Question      string
	Options       []string
	CorrectAnswer int
	UserAnswer    int
	Explanation   string
	Topic         string
	PackID        string
	PackName      string
}

// LogWrongAnswer upserts a record by its identity key (QuestionID, PackID,
// question text). A repeated miss increments AttemptCount and refreshes the
// timestamp and the user's answer instead of creating a duplicate.
func (s *Service) LogWrongAnswer(ctx context.Context, req LogRequest) (*domain.WrongAnswer, error) {
	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	for i := range records {
		r := &records[i]
		if r.QuestionID == req.QuestionID && r.PackID == req.PackID && r.Question == req.Question {
			r.AttemptCount++
			r.Timestamp = s.now()
			r.UserAnswer = req.UserAnswer

			if err := s.save(ctx, records); err != nil {
				return nil, err
			}

			s.publish(ctx, *r)
			return r, nil
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate record ID: %w", err)
	}

	topic := req.Topic
	if topic == "" {
		topic = "General"
	}
	packName := req.PackName
	if packName == "" {
		packName = "Unknown Pack"
	}

	record := domain.WrongAnswer{
		ID:            "wa_" + id.String(),
		QuestionID:    req.QuestionID,
		Question:      req.Question,
		Options:       req.Options,
		CorrectAnswer: req.CorrectAnswer,
		UserAnswer:    req.UserAnswer,
		Explanation:   req.Explanation,
		Topic:         topic,
		PackID:        req.PackID,
		PackName:      packName,
		Timestamp:     s.now(),
		AttemptCount:  1,
	}

	records = append(records, record)
	if err := s.save(ctx, records); err != nil {
		return nil, err
	}

	s.publish(ctx, record)
	return &record, nil
}

func (s *Service) publish(ctx context.Context, r domain.WrongAnswer) {
	if s.eb != nil {
		s.eb.Publish(ctx, domain.EventWrongAnswerLogged{Record: r})
	}
}

// ClearByRecordID removes one record by its own id. Used when a Boost-mode
// retry question is answered correctly.
func (s *Service) ClearByRecordID(ctx context.Context, id string) error {
	records, err := s.load(ctx)
	if err != nil {
		return err
	}

	kept := records[:0]
	for _, r := range records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}

	if len(kept) == len(records) {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("wrong answer record not found: %s", id))
	}

	return s.save(ctx, kept)
}

// ClearMatching removes any record whose question text and pack id match, so
// future Boost sessions no longer include a question answered correctly in a
// normal quiz. Reports whether any record was removed; clearing when nothing
// matches is a no-op.
func (s *Service) ClearMatching(ctx context.Context, questionText, packID string) (bool, error) {
	records, err := s.load(ctx)
	if err != nil {
		return false, err
	}

	kept := records[:0]
	for _, r := range records {
		if !(r.Question == questionText && r.PackID == packID) {
			kept = append(kept, r)
		}
	}

	if len(kept) == len(records) {
		return false, nil
	}

	if err := s.save(ctx, kept); err != nil {
		return false, err
	}

	return true, nil
}

// ByPack returns all records for one pack.
func (s *Service) ByPack(ctx context.Context, packID string) ([]domain.WrongAnswer, error) {
	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.WrongAnswer
	for _, r := range records {
		if r.PackID == packID {
			out = append(out, r)
		}
	}

	return out, nil
}

// All returns every record in the ledger.
func (s *Service) All(ctx context.Context) ([]domain.WrongAnswer, error) {
	return s.load(ctx)
}

type PackCount struct {
	PackName string `json:"packName"`
	Count    int    `json:"count"`
}

type Stats struct {
	TotalWrongAnswers int                  `json:"totalWrongAnswers"`
	UniquePacks       int                  `json:"uniquePacks"`
	TopicBreakdown    map[string]int       `json:"topicBreakdown"`
	PackBreakdown     map[string]PackCount `json:"packBreakdown"`
}

// Stats aggregates the ledger in a single pass.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TopicBreakdown: make(map[string]int),
		PackBreakdown:  make(map[string]PackCount),
	}

	for _, r := range records {
		stats.TotalWrongAnswers++

		topic := r.Topic
		if topic == "" {
			topic = "General"
		}
		stats.TopicBreakdown[topic]++

		pc := stats.PackBreakdown[r.PackID]
		pc.PackName = r.PackName
		pc.Count++
		stats.PackBreakdown[r.PackID] = pc
	}

	stats.UniquePacks = len(stats.PackBreakdown)
	return stats, nil
}

// ClearByPack removes every record for one pack.
func (s *Service) ClearByPack(ctx context.Context, packID string) error {
	records, err := s.load(ctx)
	if err != nil {
		return err
	}

	kept := records[:0]
	for _, r := range records {
		if r.PackID != packID {
			kept = append(kept, r)
		}
	}

	return s.save(ctx, kept)
}

func (s *Service) load(ctx context.Context) ([]domain.WrongAnswer, error) {
	var records []domain.WrongAnswer
	if err := store.Load(ctx, s.store, store.KeyWrongAnswers, &records); err != nil {
		return nil, err
	}

	return records, nil
}

func (s *Service) save(ctx context.Context, records []domain.WrongAnswer) error {
	return store.Save(ctx, s.store, store.KeyWrongAnswers, records)
}
