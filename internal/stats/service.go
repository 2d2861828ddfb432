// Package stats persists quiz history and derives read-side statistics.
// Aggregates are recomputed on demand from fresh reads; nothing is cached.
package stats

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"selfquiz/internal/domain"
	"selfquiz/internal/store"
)

type Config struct {
	Store store.Store

	// Now overrides the clock, for tests.
	Now func() time.Time
}

type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store: c.Store,
		now:   c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// Append records a completed attempt. History is append-only; attempts are
// never mutated after creation.
func (s *Service) Append(ctx context.Context, attempt domain.Attempt) error {
	history, err := s.History(ctx)
	if err != nil {
		return err
	}

	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = s.now()
	}

	history = append(history, attempt)
	return store.Save(ctx, s.store, store.KeyHistory, history)
}

// History returns all recorded attempts in chronological order.
func (s *Service) History(ctx context.Context) ([]domain.Attempt, error) {
	var history []domain.Attempt
	if err := store.Load(ctx, s.store, store.KeyHistory, &history); err != nil {
		return nil, err
	}

	return history, nil
}

type Overview struct {
	TotalAttempts  int `json:"totalAttempts"`
	TotalQuestions int `json:"totalQuestions"`
	TotalCorrect   int `json:"totalCorrect"`
	AverageScore   int `json:"averageScore"`
	BestScore      int `json:"bestScore"`
	BestStreak     int `json:"bestStreak"`
}

// Overview summarizes all attempts. AverageScore is the rounded weighted mean
// percentage over all answered questions, BestScore the best single-attempt
// percentage. All fields are zero when history is empty.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	history, err := s.History(ctx)
	if err != nil {
		return nil, err
	}

	o := &Overview{TotalAttempts: len(history)}
	if len(history) == 0 {
		return o, nil
	}

	best := decimal.Zero
	for _, a := range history {
		o.TotalQuestions += a.TotalQuestions
		o.TotalCorrect += a.CorrectAnswers

		if a.TotalQuestions > 0 {
			score := percentage(a.CorrectAnswers, a.TotalQuestions)
			if score.GreaterThan(best) {
				best = score
			}
		}

		if a.Streak > o.BestStreak {
			o.BestStreak = a.Streak
		}
	}

	if o.TotalQuestions > 0 {
		o.AverageScore = int(percentage(o.TotalCorrect, o.TotalQuestions).Round(0).IntPart())
	}
	o.BestScore = int(best.Round(0).IntPart())

	return o, nil
}

func percentage(part, total int) decimal.Decimal {
	return decimal.NewFromInt(int64(part)).
		Div(decimal.NewFromInt(int64(total))).
		Mul(decimal.NewFromInt(100))
}

type TopicAccuracy struct {
	Topic    string `json:"topic"`
	Correct  int    `json:"correct"`
	Total    int    `json:"total"`
	Accuracy int    `json:"accuracy"`
}

// TopicAccuracy merges per-topic counters across all attempts and converts
// each topic to a rounded percentage.
func (s *Service) TopicAccuracy(ctx context.Context) (map[string]TopicAccuracy, error) {
	history, err := s.History(ctx)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]domain.TopicScore)
	for _, a := range history {
		for topic, ts := range a.TopicPerformance {
			m := merged[topic]
			m.Correct += ts.Correct
			m.Total += ts.Total
			merged[topic] = m
		}
	}

	out := make(map[string]TopicAccuracy, len(merged))
	for topic, ts := range merged {
		acc := 0
		if ts.Total > 0 {
			acc = int(percentage(ts.Correct, ts.Total).Round(0).IntPart())
		}
		out[topic] = TopicAccuracy{
			Topic:    topic,
			Correct:  ts.Correct,
			Total:    ts.Total,
			Accuracy: acc,
		}
	}

	return out, nil
}

// RecentAttempts returns the n most recent attempts, newest first.
func (s *Service) RecentAttempts(ctx context.Context, n int) ([]domain.Attempt, error) {
	history, err := s.History(ctx)
	if err != nil {
		return nil, err
	}

	// n is caller-controlled; never allocate past what history can yield.
	out := make([]domain.Attempt, 0, min(n, len(history)))
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, history[i])
	}

	return out, nil
}

// Achievements returns all unlocked achievements.
func (s *Service) Achievements(ctx context.Context) ([]domain.Achievement, error) {
	var achievements []domain.Achievement
	if err := store.Load(ctx, s.store, store.KeyAchievements, &achievements); err != nil {
		return nil, err
	}

	return achievements, nil
}

// SaveAchievement unlocks an achievement. Reports false without persisting
// anything when the achievement was already unlocked.
func (s *Service) SaveAchievement(ctx context.Context, a domain.Achievement) (bool, error) {
	achievements, err := s.Achievements(ctx)
	if err != nil {
		return false, err
	}

	for _, existing := range achievements {
		if existing.ID == a.ID {
			return false, nil
		}
	}

	a.UnlockedAt = s.now()
	achievements = append(achievements, a)
	if err := store.Save(ctx, s.store, store.KeyAchievements, achievements); err != nil {
		return false, err
	}

	return true, nil
}

// ClearAll wipes history, achievements and the wrong-answer ledger.
func (s *Service) ClearAll(ctx context.Context) error {
	for _, key := range []string{store.KeyHistory, store.KeyAchievements, store.KeyWrongAnswers} {
		if err := s.store.Remove(ctx, key); err != nil {
			return err
		}
	}

	return nil
}
