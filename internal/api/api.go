// Package api exposes the quiz core over REST. It owns the single active
// session (one tab at a time) and the theme preference blob.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"selfquiz/internal/domain"
	"selfquiz/internal/errors"
	"selfquiz/internal/event"
	"selfquiz/internal/ledger"
	"selfquiz/internal/pack"
	"selfquiz/internal/quiz"
	"selfquiz/internal/stats"
	"selfquiz/internal/store"
)

type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Store        store.Store
	Packs        *pack.Service
	Ledger       *ledger.Service
	Quiz         *quiz.Service
	Stats        *stats.Service
	Redis        Redis
	PubsubPrefix string

	// Now overrides the clock, for tests.
	Now func() time.Time
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	store  store.Store
	packs  *pack.Service
	ledger *ledger.Service
	quiz   *quiz.Service
	stats  *stats.Service

	// mu guards the active session. The core assumes a single driver; the
	// HTTP layer serializes access to uphold that.
	mu      sync.Mutex
	session *quiz.Session

	redis  Redis
	prefix string
	now    func() time.Time
}

func New(c Config) *API {
	a := &API{
		store:  c.Store,
		packs:  c.Packs,
		ledger: c.Ledger,
		quiz:   c.Quiz,
		stats:  c.Stats,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
		now:    c.Now,
	}

	if a.now == nil {
		a.now = time.Now
	}

	a.register(c.Router)

	c.EventBus.Subscribe(domain.EventNameAttemptRecorded, func(ctx context.Context, e event.Event) error {
		return a.PublishAttemptRecorded(ctx, e.(domain.EventAttemptRecorded))
	})
	c.EventBus.Subscribe(domain.EventNameWrongAnswerLogged, func(ctx context.Context, e event.Event) error {
		return a.PublishWrongAnswerLogged(ctx, e.(domain.EventWrongAnswerLogged))
	})

	return a
}

func (a *API) register(r gin.IRouter) {
	g := r.Group("/api")

	g.POST("/packs", a.uploadPack)
	g.GET("/packs", a.listPacks)
	g.GET("/packs/:id", a.getPack)
	g.PATCH("/packs/:id", a.updatePack)
	g.DELETE("/packs/:id", a.removePack)

	g.GET("/wrong-answers", a.listWrongAnswers)
	g.GET("/wrong-answers/stats", a.wrongAnswerStats)
	g.DELETE("/wrong-answers/:id", a.clearWrongAnswer)
	g.DELETE("/wrong-answers", a.clearWrongAnswersByPack)

	g.POST("/quiz", a.startQuiz)
	g.GET("/quiz", a.currentQuestion)
	g.POST("/quiz/answer", a.selectAnswer)
	g.POST("/quiz/next", a.nextQuestion)
	g.POST("/quiz/prev", a.previousQuestion)
	g.POST("/quiz/skip", a.skipQuestion)
	g.POST("/quiz/finish", a.finishQuiz)
	g.GET("/quiz/result", a.lastResult)
	g.DELETE("/quiz", a.quitQuiz)

	g.GET("/stats/overview", a.overview)
	g.GET("/stats/topics", a.topicAccuracy)
	g.GET("/stats/recent", a.recentAttempts)
	g.GET("/history", a.history)

	g.GET("/achievements", a.listAchievements)
	g.POST("/achievements", a.saveAchievement)

	g.GET("/theme", a.getTheme)
	g.PUT("/theme", a.setTheme)

	g.GET("/export", a.exportData)
	g.DELETE("/data", a.clearAll)
}

func abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{
		"code":    e.Code,
		"message": e.Message,
	})
}

// --- packs ---

type uploadPackRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Questions   json.RawMessage `json:"questions" binding:"required"`
}

func (a *API) uploadPack(c *gin.Context) {
	var req uploadPackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	p, err := a.packs.Upload(c.Request.Context(), pack.UploadRequest{
		Name:        req.Name,
		Description: req.Description,
		Raw:         req.Questions,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, p)
}

func (a *API) listPacks(c *gin.Context) {
	packs, err := a.packs.List(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"packs": packs})
}

func (a *API) getPack(c *gin.Context) {
	p, err := a.packs.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

type updatePackRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *API) updatePack(c *gin.Context) {
	var req updatePackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	p, err := a.packs.Update(c.Request.Context(), pack.UpdateRequest{
		ID:          c.Param("id"),
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

func (a *API) removePack(c *gin.Context) {
	if err := a.packs.Remove(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// --- wrong answers ---

func (a *API) listWrongAnswers(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		records []domain.WrongAnswer
		err     error
	)
	if packID := c.Query("pack"); packID != "" {
		records, err = a.ledger.ByPack(ctx, packID)
	} else {
		records, err = a.ledger.All(ctx)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"wrongAnswers": records})
}

func (a *API) wrongAnswerStats(c *gin.Context) {
	stats, err := a.ledger.Stats(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (a *API) clearWrongAnswer(c *gin.Context) {
	if err := a.ledger.ClearByRecordID(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) clearWrongAnswersByPack(c *gin.Context) {
	packID := c.Query("pack")
	if packID == "" {
		abortWithError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("pack query parameter is required")))
		return
	}

	if err := a.ledger.ClearByPack(c.Request.Context(), packID); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// --- quiz session ---

type startQuizRequest struct {
	SourceID      string `json:"sourceId" binding:"required"`
	QuestionCount int    `json:"questionCount"`
	Shuffle       bool   `json:"shuffle"`
	// Boost builds the session from the source pack's wrong-answer records.
	Boost bool `json:"boost"`
}

func (a *API) startQuiz(c *gin.Context) {
	var req startQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	ctx := c.Request.Context()

	start := quiz.StartRequest{
		SourceID:      req.SourceID,
		QuestionCount: req.QuestionCount,
		Shuffle:       req.Shuffle,
	}

	if req.Boost {
		records, err := a.ledger.ByPack(ctx, req.SourceID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		start.Boost = &quiz.Boost{Records: records}
	}

	session, err := a.quiz.Start(ctx, start)
	if err != nil {
		abortWithError(c, err)
		return
	}

	// Starting a new quiz discards any session in flight, like navigating
	// away from an unfinished quiz page.
	a.mu.Lock()
	a.session = session
	view := session.Current()
	a.mu.Unlock()

	// Handoff blob for the quiz page, mirroring what the caller configured.
	if err := store.Save(ctx, a.store, store.KeySessionConfig, req); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

// withSession runs f under the session lock, failing when no quiz is active.
func (a *API) withSession(c *gin.Context, f func(s *quiz.Session) error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil {
		abortWithError(c, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("no active quiz session")))
		return
	}

	if err := f(a.session); err != nil {
		abortWithError(c, err)
	}
}

func (a *API) currentQuestion(c *gin.Context) {
	a.withSession(c, func(s *quiz.Session) error {
		c.JSON(http.StatusOK, s.Current())
		return nil
	})
}

type selectAnswerRequest struct {
	Index *int `json:"index" binding:"required"`
}

func (a *API) selectAnswer(c *gin.Context) {
	var req selectAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	a.withSession(c, func(s *quiz.Session) error {
		result, err := s.SelectAnswer(c.Request.Context(), *req.Index)
		if err != nil {
			return err
		}

		c.JSON(http.StatusOK, result)
		return nil
	})
}

func (a *API) nextQuestion(c *gin.Context) {
	a.withSession(c, func(s *quiz.Session) error {
		if err := s.Advance(); err != nil {
			return err
		}

		c.JSON(http.StatusOK, s.Current())
		return nil
	})
}

func (a *API) previousQuestion(c *gin.Context) {
	a.withSession(c, func(s *quiz.Session) error {
		if err := s.Retreat(); err != nil {
			return err
		}

		c.JSON(http.StatusOK, s.Current())
		return nil
	})
}

func (a *API) skipQuestion(c *gin.Context) {
	a.withSession(c, func(s *quiz.Session) error {
		ready, err := s.Skip()
		if err != nil {
			return err
		}

		c.JSON(http.StatusOK, gin.H{
			"readyToFinish": ready,
			"question":      s.Current(),
		})
		return nil
	})
}

func (a *API) finishQuiz(c *gin.Context) {
	a.withSession(c, func(s *quiz.Session) error {
		ctx := c.Request.Context()

		attempt, err := s.Finish(ctx)
		if err != nil {
			return err
		}

		a.session = nil

		// Handoff blob so the results page can load the outcome after the
		// session is gone.
		if err := store.Save(ctx, a.store, store.KeySessionResult, attempt); err != nil {
			return err
		}

		c.JSON(http.StatusOK, attempt)
		return nil
	})
}

func (a *API) lastResult(c *gin.Context) {
	ctx := c.Request.Context()

	var attempt *domain.Attempt
	if err := store.Load(ctx, a.store, store.KeySessionResult, &attempt); err != nil {
		abortWithError(c, err)
		return
	}

	if attempt == nil {
		abortWithError(c, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no quiz result available")))
		return
	}

	c.JSON(http.StatusOK, attempt)
}

func (a *API) quitQuiz(c *gin.Context) {
	a.mu.Lock()
	a.session = nil
	a.mu.Unlock()

	c.Status(http.StatusNoContent)
}

// --- stats ---

func (a *API) overview(c *gin.Context) {
	o, err := a.stats.Overview(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, o)
}

func (a *API) topicAccuracy(c *gin.Context) {
	topics, err := a.stats.TopicAccuracy(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"topics": topics})
}

const defaultRecentAttempts = 10

func (a *API) recentAttempts(c *gin.Context) {
	n := defaultRecentAttempts
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			abortWithError(c, errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("n must be a positive integer")))
			return
		}
		n = parsed
	}

	attempts, err := a.stats.RecentAttempts(c.Request.Context(), n)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}

func (a *API) history(c *gin.Context) {
	history, err := a.stats.History(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}

// --- achievements ---

func (a *API) listAchievements(c *gin.Context) {
	achievements, err := a.stats.Achievements(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"achievements": achievements})
}

func (a *API) saveAchievement(c *gin.Context) {
	var achievement domain.Achievement
	if err := c.ShouldBindJSON(&achievement); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	if achievement.ID == "" {
		abortWithError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("achievement id is required")))
		return
	}

	saved, err := a.stats.SaveAchievement(c.Request.Context(), achievement)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if !saved {
		c.JSON(http.StatusOK, gin.H{"unlocked": false})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"unlocked": true})
}

// --- theme ---

const defaultTheme = "light"

func (a *API) getTheme(c *gin.Context) {
	theme, ok, err := a.store.Get(c.Request.Context(), store.KeyTheme)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !ok {
		theme = defaultTheme
	}

	c.JSON(http.StatusOK, gin.H{"theme": theme})
}

type setThemeRequest struct {
	Theme string `json:"theme" binding:"required"`
}

func (a *API) setTheme(c *gin.Context) {
	var req setThemeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	if req.Theme != "light" && req.Theme != "dark" {
		abortWithError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("theme must be light or dark")))
		return
	}

	if err := a.store.Set(c.Request.Context(), store.KeyTheme, req.Theme); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"theme": req.Theme})
}

// --- export / reset ---

type exportBundle struct {
	QuizHistory  []domain.Attempt     `json:"quizHistory"`
	Achievements []domain.Achievement `json:"achievements"`
	WrongAnswers []domain.WrongAnswer `json:"wrongAnswers"`
	ExportedAt   time.Time            `json:"exportedAt"`
}

func (a *API) exportData(c *gin.Context) {
	ctx := c.Request.Context()

	history, err := a.stats.History(ctx)
	if err != nil {
		abortWithError(c, err)
		return
	}

	achievements, err := a.stats.Achievements(ctx)
	if err != nil {
		abortWithError(c, err)
		return
	}

	records, err := a.ledger.All(ctx)
	if err != nil {
		abortWithError(c, err)
		return
	}

	now := a.now()
	c.Header("Content-Disposition",
		fmt.Sprintf(`attachment; filename="quiz-data-%s.json"`, now.Format("2006-01-02")))
	c.JSON(http.StatusOK, exportBundle{
		QuizHistory:  history,
		Achievements: achievements,
		WrongAnswers: records,
		ExportedAt:   now,
	})
}

func (a *API) clearAll(c *gin.Context) {
	if err := a.stats.ClearAll(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
