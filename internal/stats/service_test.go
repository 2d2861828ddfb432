package stats_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"selfquiz/internal/domain"
	"selfquiz/internal/stats"
	"selfquiz/internal/store"
)

func makeService(t *testing.T) *stats.Service {
	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(context.Background()).Err(), "should be able to ping redis")

	return stats.NewService(stats.Config{
		Store: store.NewRedisStore(rc, "test"),
		Now:   func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
}

func attempt(id string, correct, total, streak int) domain.Attempt {
	return domain.Attempt{
		ID:             id,
		ChapterID:      "all",
		ChapterTitle:   "All Topics",
		TotalQuestions: total,
		CorrectAnswers: correct,
		WrongAnswers:   total - correct,
		Streak:         streak,
	}
}

func TestService_OverviewEmptyHistory(t *testing.T) {
	s := makeService(t)

	o, err := s.Overview(context.Background())
	require.NoError(t, err)
	require.Equal(t, &stats.Overview{}, o, "empty history should yield all zeros")
}

func TestService_OverviewAggregates(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	// 7/10 and 2/10: weighted mean is 45%, best single attempt 70%.
	require.NoError(t, s.Append(ctx, attempt("a1", 7, 10, 4)))
	require.NoError(t, s.Append(ctx, attempt("a2", 2, 10, 1)))

	o, err := s.Overview(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, o.TotalAttempts)
	require.Equal(t, 20, o.TotalQuestions)
	require.Equal(t, 9, o.TotalCorrect)
	require.Equal(t, 45, o.AverageScore)
	require.Equal(t, 70, o.BestScore)
	require.Equal(t, 4, o.BestStreak)
}

func TestService_OverviewRoundsWeightedMean(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	// 2/3 over one attempt: 66.66...% rounds to 67.
	require.NoError(t, s.Append(ctx, attempt("a1", 2, 3, 2)))

	o, err := s.Overview(ctx)
	require.NoError(t, err)
	require.Equal(t, 67, o.AverageScore)
	require.Equal(t, 67, o.BestScore)
}

func TestService_TopicAccuracyMergesAcrossAttempts(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	a1 := attempt("a1", 3, 4, 0)
	a1.TopicPerformance = map[string]domain.TopicScore{
		"Arithmetic": {Correct: 2, Total: 2},
		"Geometry":   {Correct: 1, Total: 2},
	}
	a2 := attempt("a2", 1, 2, 0)
	a2.TopicPerformance = map[string]domain.TopicScore{
		"Geometry": {Correct: 1, Total: 2},
	}

	require.NoError(t, s.Append(ctx, a1))
	require.NoError(t, s.Append(ctx, a2))

	topics, err := s.TopicAccuracy(ctx)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	require.Equal(t, stats.TopicAccuracy{Topic: "Arithmetic", Correct: 2, Total: 2, Accuracy: 100}, topics["Arithmetic"])
	require.Equal(t, stats.TopicAccuracy{Topic: "Geometry", Correct: 2, Total: 4, Accuracy: 50}, topics["Geometry"])
}

func TestService_RecentAttemptsNewestFirst(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	for _, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, s.Append(ctx, attempt(id, 1, 2, 0)))
	}

	recent, err := s.RecentAttempts(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "a3", recent[0].ID)
	require.Equal(t, "a2", recent[1].ID)

	all, err := s.RecentAttempts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 3, "asking for more than exists returns everything")
}

func TestService_RecentAttemptsHugeLimit(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, attempt("a1", 1, 2, 0)))

	recent, err := s.RecentAttempts(ctx, 1<<62)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}

func TestService_SaveAchievementDeduplicates(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	unlocked, err := s.SaveAchievement(ctx, domain.Achievement{ID: "first_quiz", Title: "First Quiz"})
	require.NoError(t, err)
	require.True(t, unlocked)

	unlocked, err = s.SaveAchievement(ctx, domain.Achievement{ID: "first_quiz", Title: "First Quiz"})
	require.NoError(t, err)
	require.False(t, unlocked, "already unlocked achievement should be a no-op")

	achievements, err := s.Achievements(ctx)
	require.NoError(t, err)
	require.Len(t, achievements, 1)
	require.False(t, achievements[0].UnlockedAt.IsZero(), "unlock time should be stamped")
}

func TestService_ClearAll(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, attempt("a1", 1, 2, 0)))
	_, err := s.SaveAchievement(ctx, domain.Achievement{ID: "x", Title: "X"})
	require.NoError(t, err)

	require.NoError(t, s.ClearAll(ctx))

	history, err := s.History(ctx)
	require.NoError(t, err)
	require.Empty(t, history)

	achievements, err := s.Achievements(ctx)
	require.NoError(t, err)
	require.Empty(t, achievements)
}
