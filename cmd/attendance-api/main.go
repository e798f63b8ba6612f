package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/smart-attendance-api/api/swagger"
	"github.com/noah-isme/smart-attendance-api/internal/handler"
	"github.com/noah-isme/smart-attendance-api/internal/middleware"
	"github.com/noah-isme/smart-attendance-api/internal/models"
	"github.com/noah-isme/smart-attendance-api/internal/repository"
	"github.com/noah-isme/smart-attendance-api/internal/service"
	"github.com/noah-isme/smart-attendance-api/pkg/cache"
	"github.com/noah-isme/smart-attendance-api/pkg/config"
	"github.com/noah-isme/smart-attendance-api/pkg/database"
	"github.com/noah-isme/smart-attendance-api/pkg/face"
	"github.com/noah-isme/smart-attendance-api/pkg/jobs"
	"github.com/noah-isme/smart-attendance-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/smart-attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/smart-attendance-api/pkg/middleware/requestid"
	"github.com/noah-isme/smart-attendance-api/pkg/qrtoken"
	"github.com/noah-isme/smart-attendance-api/pkg/storage"
)

// @title Smart Attendance API
// @version 1.0.0
// @description Classroom attendance verified by QR, geofence and face match.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type sessionStore interface {
	Create(ctx context.Context, session *models.Session, now time.Time) ([]string, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindActiveByTeacher(ctx context.Context, teacherID string) (*models.Session, error)
	FindLatestActive(ctx context.Context, now time.Time) (*models.Session, error)
	FindLatestByTeacherSubject(ctx context.Context, teacherID, subject string) (*models.Session, error)
	End(ctx context.Context, id string, status models.SessionStatus, endedAt time.Time) (bool, error)
	ExpireDue(ctx context.Context, now time.Time) ([]string, error)
}

type ledgerStore interface {
	InsertIfAbsent(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, bool, error)
	Find(ctx context.Context, sessionID, studentID string) (*models.AttendanceRecord, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error)
	CountBySession(ctx context.Context, sessionID string) (int, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.AttendanceRecord, error)
}

type attemptBackend interface {
	Get(ctx context.Context, sessionID, studentID string) (*models.VerificationAttempt, error)
	Save(ctx context.Context, attempt *models.VerificationAttempt, ttl time.Duration) error
	DeleteSession(ctx context.Context, sessionID string) error
}

type backends struct {
	sessions sessionStore
	ledger   ledgerStore
	attempts attemptBackend
	cache    service.CacheRepository
	db       *sqlx.DB
	redis    *redis.Client
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openBackends(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to open backends", zap.Error(err))
	}
	defer store.close(logr)

	registry, err := service.LoadSubjectRegistry(cfg.Campus.File, service.RegistryDefaults{
		Classroom: models.GeoFence{
			ClassroomID: cfg.Session.ClassroomID,
			Name:        "Default classroom",
			Center:      models.GeoPoint{Latitude: cfg.Geofence.Latitude, Longitude: cfg.Geofence.Longitude},
			RadiusM:     cfg.Geofence.RadiusM,
		},
		RosterSize: cfg.Session.RosterDefault,
	})
	if err != nil {
		logr.Fatal("failed to load campus file", zap.String("path", cfg.Campus.File), zap.Error(err))
	}

	signer, err := qrtoken.NewSigner(cfg.Session.QRSecret, nil)
	if err != nil {
		logr.Fatal("invalid qr signing config", zap.Error(err))
	}

	blobs, err := storage.NewLocalStorage(cfg.Templates.Dir)
	if err != nil {
		logr.Fatal("failed to open template store", zap.String("dir", cfg.Templates.Dir), zap.Error(err))
	}
	templates := repository.NewTemplateRepository(blobs)

	engine, remote := faceEngine(cfg.Face)
	scorer := face.NewDispatcher(engine, cfg.Face.MaxConcurrency, cfg.Face.Timeout)

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(store.cache, metrics, cfg.Cache.AttendanceTTL, logr, cfg.Cache.Enabled)

	queue := jobs.NewQueue("attendance-events", jobs.QueueConfig{
		Workers:    cfg.Events.Workers,
		BufferSize: cfg.Events.BufferSize,
		MaxRetries: cfg.Events.MaxRetries,
		RetryDelay: cfg.Events.RetryDelay,
		Logger:     logr,
	})
	events := service.NewEventService(queue, store.attempts, cacheSvc, metrics, logr)

	sessions := service.NewSessionService(store.sessions, registry, signer, metrics, validate, logr, service.SessionServiceConfig{TTL: cfg.Session.TTL})
	sessions.SetPublisher(events)
	ledger := service.NewLedgerService(store.ledger, metrics, logr, nil)
	ledger.SetPublisher(events)
	verify := service.NewVerificationService(sessions, store.attempts, templates, scorer, ledger, registry, signer, metrics, logr, service.VerificationConfig{Threshold: cfg.Face.Threshold})
	overrides := service.NewOverrideService(sessions, ledger, registry, metrics, validate, logr, cfg.Override.Grace, nil)
	views := service.NewAttendanceViewService(sessions, ledger, registry, cacheSvc, logr, cfg.Cache.AttendanceTTL)
	auth := service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	checks := map[string]handler.ReadinessCheck{}
	if store.db != nil {
		checks["postgres"] = store.db.PingContext
	}
	if store.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return store.redis.Ping(ctx).Err() }
	}
	if remote != nil {
		checks["face_engine"] = remote.Health
	}

	routes := &handler.Router{
		Auth:         middleware.JWT(auth),
		AuditLogger:  logr,
		Sessions:     handler.NewSessionHandler(sessions, service.NewNotifierService(sessions, verify), verify),
		Verification: handler.NewVerificationHandler(verify),
		Attendance:   handler.NewAttendanceHandler(views, overrides),
		Faces:        handler.NewFaceHandler(service.NewFaceTemplateService(templates, validate, logr)),
		Teachers:     handler.NewTeacherHandler(registry),
		Metrics:      handler.NewMetricsHandler(metrics, checks),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	routes.RegisterProbes(r)
	if cfg.RateLimit.Enabled {
		routes.RateLimit = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst).Middleware()
	}
	routes.Register(r.Group(cfg.APIPrefix))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	queue.Start(ctx)
	var sweeper *service.SessionSweeper
	if cfg.Sweep.Enabled {
		sweeper, err = service.NewSessionSweeper(sessions, cfg.Sweep.Schedule, logr)
		if err != nil {
			logr.Fatal("invalid sweep schedule", zap.String("schedule", cfg.Sweep.Schedule), zap.Error(err))
		}
		sweeper.Start()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.Store.Backend, "face_engine", cfg.Face.Engine)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server shutdown incomplete", zap.Error(err))
	}
	if sweeper != nil {
		sweeper.Stop(shutdownCtx)
	}
	queue.Stop()
}

func openBackends(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*backends, error) {
	b := &backends{}

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := repository.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		b.db = db
		b.sessions = repository.NewSessionRepository(db)
		b.ledger = repository.NewLedgerRepository(db)
	case config.BackendMemory, "":
		logr.Warn("using in-memory session and ledger store; data is lost on restart")
		b.sessions = repository.NewMemorySessionRepository()
		b.ledger = repository.NewMemoryLedgerRepository()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if cfg.Store.AttemptBackend == config.BackendRedis || cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			b.close(logr)
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		b.redis = client
		b.cache = repository.NewCacheRepository(client, "attendance")
	}

	switch cfg.Store.AttemptBackend {
	case config.BackendRedis:
		b.attempts = repository.NewRedisAttemptStore(b.redis)
	case config.BackendMemory, "":
		b.attempts = repository.NewMemoryAttemptStore()
	default:
		b.close(logr)
		return nil, fmt.Errorf("unknown attempt backend %q", cfg.Store.AttemptBackend)
	}
	return b, nil
}

func (b *backends) close(logr *zap.Logger) {
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			logr.Warn("redis close failed", zap.Error(err))
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			logr.Warn("postgres close failed", zap.Error(err))
		}
	}
}

// faceEngine returns the configured engine and, for the remote engine, the
// client so readiness can probe it.
func faceEngine(cfg config.FaceConfig) (face.Engine, *face.RemoteEngine) {
	if cfg.Engine == "remote" {
		remote := face.NewRemoteEngine(cfg.ServiceURL, cfg.ServiceSkip, cfg.Timeout)
		return remote, remote
	}
	return face.NewLocalEngine(), nil
}
