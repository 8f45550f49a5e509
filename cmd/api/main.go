package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voicesurvey/internal/audit"
	"voicesurvey/internal/auth"
	"voicesurvey/internal/callqueue"
	"voicesurvey/internal/config"
	"voicesurvey/internal/engine"
	"voicesurvey/internal/httpapi"
	"voicesurvey/internal/interpret"
	"voicesurvey/internal/speech"
	"voicesurvey/internal/survey"
	"voicesurvey/internal/telephony"
	"voicesurvey/pkg/logger"
	"voicesurvey/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const activeCallsKey = "callqueue:active_calls"

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional env file for local development; real deployments set env directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	surveyRepo := survey.NewPostgresRepo(db)
	attemptRepo := callqueue.NewPostgresRepo(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	// Speech synthesis is optional. Without an API key the turn engine tells
	// the gateway to speak prompts itself.
	var script engine.ScriptPreparer
	if cfg.Speech.ElevenLabsAPIKey != "" {
		files, err := speech.NewDiskFileStore(cfg.Speech.AssetDir)
		if err != nil {
			log.Error("audio asset dir init failed", "dir", cfg.Speech.AssetDir, "err", err)
			os.Exit(1)
		}
		provider := speech.NewElevenLabsClient(cfg.Speech.ElevenLabsAPIKey, cfg.Speech.RequestTimeout)
		script = speech.NewSynthesizer(provider, speech.NewPostgresAssetRepo(db), files, rdb, cfg.App.PublicBaseURL, log)
	}

	gateway := telephony.NewTwilioGateway(
		cfg.Twilio.AccountSID,
		cfg.Twilio.AuthToken,
		cfg.App.PublicBaseURL+telephony.StatusPath,
	)

	limiter := &redisLimiter{
		rdb:   rdb,
		limit: cfg.Queue.MaxConcurrentCalls,
		ttl:   cfg.Queue.StaleAfter,
	}

	queue := callqueue.NewService(
		attemptRepo,
		gateway,
		recipientSource{repo: surveyRepo},
		limiter,
		callqueue.ServiceConfig{
			FromNumber:    cfg.Twilio.FromNumber,
			PublicBaseURL: cfg.App.PublicBaseURL,
		},
		log,
	)

	turnEngine := engine.NewService(attemptRepo, surveyRepo, script, interpret.PatternNameExtractor{}, log)

	handlers := httpapi.Handlers{
		Auth:         authManager,
		Queue:        queue,
		Surveys:      surveyRepo,
		Audit:        auditSvc,
		AllowSeeding: !cfg.IsProduction(),
	}
	webhooks := telephony.WebhookHandler{
		Engine:        turnEngine,
		Queue:         queue,
		PublicBaseURL: cfg.App.PublicBaseURL,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, handlers, webhooks, auth.RequireAccessToken(authManager), cfg.Speech.AssetDir)

	go sweepStaleAttempts(rootCtx, queue, cfg.Queue.SweepInterval, cfg.Queue.StaleAfter, log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// sweepStaleAttempts periodically fails in-progress attempts whose webhook
// callbacks stopped arriving.
func sweepStaleAttempts(ctx context.Context, queue *callqueue.Service, interval, staleAfter time.Duration, log *slog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := queue.SweepStale(ctx, staleAfter); err != nil {
				log.Error("stale attempt sweep failed", "err", err)
			}
		}
	}
}

// redisLimiter bounds concurrent outbound calls across all api processes.
type redisLimiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func (l *redisLimiter) Acquire(ctx context.Context) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, activeCallsKey, l.limit, l.ttl)
}

func (l *redisLimiter) Release(ctx context.Context) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, activeCallsKey)
}

// recipientSource narrows the survey repository to what the call queue needs.
type recipientSource struct {
	repo survey.Repository
}

func (s recipientSource) GetRecipient(ctx context.Context, id string) (callqueue.Recipient, error) {
	rec, err := s.repo.GetRecipient(ctx, id)
	if err != nil {
		return callqueue.Recipient{}, err
	}
	return callqueue.Recipient{ID: rec.ID, Name: rec.Name, Phone: rec.Phone}, nil
}

func (s recipientSource) QuestionCount(ctx context.Context, surveyID string) (int, error) {
	qs, err := s.repo.QuestionsForSurvey(ctx, surveyID)
	if err != nil {
		return 0, err
	}
	return len(qs), nil
}
