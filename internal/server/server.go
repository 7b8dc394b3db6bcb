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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/localstack-samples/serverless-quiz-app/internal/api"
	"github.com/localstack-samples/serverless-quiz-app/internal/deadletter"
	"github.com/localstack-samples/serverless-quiz-app/internal/event"
	"github.com/localstack-samples/serverless-quiz-app/internal/intake"
	"github.com/localstack-samples/serverless-quiz-app/internal/leaderboard"
	"github.com/localstack-samples/serverless-quiz-app/internal/metrics"
	"github.com/localstack-samples/serverless-quiz-app/internal/notify"
	"github.com/localstack-samples/serverless-quiz-app/internal/queue"
	"github.com/localstack-samples/serverless-quiz-app/internal/quiz"
	"github.com/localstack-samples/serverless-quiz-app/internal/scoring"
	"github.com/localstack-samples/serverless-quiz-app/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}

	Queue struct {
		VisibilitySeconds int
		MaxReceiveCount   int
		Workers           int
	}

	Notify struct {
		SMTP struct {
			Host string
			Port int
			User string
			Pass string
			From string
		}

		Operator       string
		MaxAttempts    int
		BackoffSeconds int
	}
}

type Server struct {
	c Config

	eb      *event.Bus
	metrics *metrics.Metrics

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
	}

	queue struct {
		submissions *queue.Queue
		deadletters *queue.Queue
	}

	service struct {
		quiz        *quiz.Service
		intake      *intake.Service
		store       *scoring.PGStore
		leaderboard *leaderboard.Service
	}

	worker struct {
		scoring []*scoring.Worker
		router  *deadletter.Router

		cancel context.CancelFunc
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()
	s.metrics = metrics.New(prometheus.DefaultRegisterer)

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initQueues()
	s.initService()
	s.initWorkers()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s",
		s.c.Postgres.User, s.c.Postgres.Pass, s.c.Postgres.Addr, s.c.Postgres.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initQueues() {
	s.queue.deadletters = queue.New(queue.Config{
		Redis:  s.infra.redis,
		Prefix: s.c.Redis.Prefix + ":deadletters",
	})

	s.queue.submissions = queue.New(queue.Config{
		Redis:           s.infra.redis,
		Prefix:          s.c.Redis.Prefix + ":submissions",
		Visibility:      time.Duration(s.c.Queue.VisibilitySeconds) * time.Second,
		MaxReceiveCount: s.c.Queue.MaxReceiveCount,
		DeadLetter:      s.queue.deadletters,
	})
}

func (s *Server) initService() {
	s.service.quiz = quiz.NewService(quiz.Config{
		DB: s.infra.postgres,
	})

	s.service.intake = intake.NewService(intake.Config{
		Quizzes: s.service.quiz,
		Queue:   s.queue.submissions,
		Metrics: s.metrics,
	})

	s.service.store = scoring.NewPGStore(scoring.Config{
		DB: s.infra.postgres,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Store:    s.service.store,
		Redis:    s.infra.redis,
		Prefix:   s.c.Redis.Prefix,
	})
}

func (s *Server) initWorkers() {
	n := s.c.Queue.Workers
	if n <= 0 {
		n = 4
	}

	for i := 0; i < n; i++ {
		s.worker.scoring = append(s.worker.scoring, scoring.NewWorker(scoring.WorkerConfig{
			Queue:    s.queue.submissions,
			Quizzes:  s.service.quiz,
			Store:    s.service.store,
			EventBus: s.eb,
			Metrics:  s.metrics,
		}))
	}

	workflow := notify.NewWorkflow(notify.Config{
		Sender: notify.NewSMTPSender(notify.SMTPConfig{
			Host: s.c.Notify.SMTP.Host,
			Port: s.c.Notify.SMTP.Port,
			User: s.c.Notify.SMTP.User,
			Pass: s.c.Notify.SMTP.Pass,
			From: s.c.Notify.SMTP.From,
		}),
		Operator:    s.c.Notify.Operator,
		MaxAttempts: s.c.Notify.MaxAttempts,
		Backoff:     time.Duration(s.c.Notify.BackoffSeconds) * time.Second,
	})

	s.worker.router = deadletter.NewRouter(deadletter.Config{
		Queue:    s.queue.deadletters,
		Workflow: workflow,
		Metrics:  s.metrics,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), telemetry.HTTPLogger())

	api.New(api.Config{
		Router:      e,
		Intake:      s.service.intake,
		Quizzes:     s.service.quiz,
		Submissions: s.service.store,
		Leaderboard: s.service.leaderboard,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.worker.cancel = cancel

	var eg errgroup.Group
	for _, w := range s.worker.scoring {
		w := w
		eg.Go(func() error {
			return w.Run(ctx)
		})
	}

	eg.Go(func() error {
		return s.worker.router.Run(ctx)
	})

	eg.Go(func() error {
		s.reap(ctx)
		return nil
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err := eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

// reap returns expired leases to the pending list and refreshes the depth
// gauges. Workers also requeue expired leases on every receive; this ticker
// keeps redeliveries moving when no worker happens to be polling.
func (s *Server) reap(ctx context.Context) {
	t := time.NewTicker(time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		if _, err := s.queue.submissions.RequeueExpired(ctx); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "server: requeue expired leases failed", "error", err)
		}

		s.gaugeDepth(ctx, "submissions", s.queue.submissions)
		s.gaugeDepth(ctx, "deadletters", s.queue.deadletters)
	}
}

func (s *Server) gaugeDepth(ctx context.Context, name string, q *queue.Queue) {
	pending, leased, err := q.Depth(ctx)
	if err != nil {
		return
	}

	s.metrics.SetQueueDepth(name, "pending", pending)
	s.metrics.SetQueueDepth(name, "leased", leased)
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.worker.cancel != nil {
		s.worker.cancel()
	}

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()
	s.infra.postgres.Close()
	if err := s.infra.redis.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close redis failed", "error", err)
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
