package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"selfquiz/internal/api"
	"selfquiz/internal/event"
	"selfquiz/internal/ledger"
	"selfquiz/internal/pack"
	"selfquiz/internal/quiz"
	"selfquiz/internal/stats"
	"selfquiz/internal/store"
	"selfquiz/internal/telemetry"
)

const (
	// StoreBackendRedis keeps blobs as redis strings.
	StoreBackendRedis = "redis"
	// StoreBackendPostgres keeps blobs in a kv table.
	StoreBackendPostgres = "postgres"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	// Static is the directory with the front-end files, served at /.
	// Empty disables static serving.
	Static struct {
		Dir string
	}

	Store struct {
		// Backend selects where blobs live: "redis" (default) or "postgres".
		Backend string
	}

	Redis struct {
		Store struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			store  redis.UniversalClient
			pubsub redis.UniversalClient
		}

		postgres *pgxpool.Pool

		store store.Store
	}

	service struct {
		packs  *pack.Service
		ledger *ledger.Service
		quiz   *quiz.Service
		stats  *stats.Service
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initStore(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	if s.c.Store.Backend != StoreBackendPostgres {
		s.infra.redis.store, err = connect(s.c.Redis.Store.Addrs, s.c.Redis.Store.Pass)
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}

	return nil
}

func (s *Server) initStore() error {
	if s.c.Store.Backend != StoreBackendPostgres {
		s.infra.store = store.NewRedisStore(s.infra.redis.store, s.c.Redis.Store.Prefix)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s",
		s.c.Postgres.User, s.c.Postgres.Pass, s.c.Postgres.Addr, s.c.Postgres.Name))
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	ps := store.NewPostgresStore(db)
	if err := ps.Migrate(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	s.infra.postgres = db
	s.infra.store = ps
	return nil
}

func (s *Server) initService() {
	s.service.packs = pack.NewService(pack.Config{
		Store: s.infra.store,
	})

	s.service.ledger = ledger.NewService(ledger.Config{
		Store:    s.infra.store,
		EventBus: s.eb,
	})

	s.service.stats = stats.NewService(stats.Config{
		Store: s.infra.store,
	})

	s.service.quiz = quiz.NewService(quiz.Config{
		Packs:    s.service.packs,
		Ledger:   s.service.ledger,
		Stats:    s.service.stats,
		EventBus: s.eb,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	if s.c.Static.Dir != "" {
		e.Static("/app", s.c.Static.Dir)
	}

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Store:        s.infra.store,
		Packs:        s.service.packs,
		Ledger:       s.service.ledger,
		Quiz:         s.service.quiz,
		Stats:        s.service.stats,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	slog.InfoContext(ctx, "server: shutdown completed")
}
