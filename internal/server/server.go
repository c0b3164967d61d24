package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/livequiz/internal/api"
	"github.com/victornm/livequiz/internal/archive"
	"github.com/victornm/livequiz/internal/auth"
	"github.com/victornm/livequiz/internal/content"
	"github.com/victornm/livequiz/internal/database"
	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/presence"
	"github.com/victornm/livequiz/internal/session"
	"github.com/victornm/livequiz/internal/store"
	"github.com/victornm/livequiz/internal/telemetry"
)

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverFile     = "file"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Log struct {
		Level  string
		Format string
	}

	Auth struct {
		JWTSecret string
	}

	Live struct {
		MinParticipants int
		CodeAttempts    int
		PresenceTimeout time.Duration

		Defaults struct {
			QuestionTimeSeconds  int
			SpeedBonusMultiplier float64
			ShowLeaderboard      bool
			// PointsPerQuestion overrides every question's points when positive.
			PointsPerQuestion int
		}
	}

	Store struct {
		Driver string
		// TTL expires sessions kept in Redis. Zero keeps them.
		TTL time.Duration
	}

	Content struct {
		Driver string
		File   string
	}

	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string

		Pubsub struct {
			Enabled bool
			Prefix  string
		}
	}

	Postgres database.Config

	Archive struct {
		S3 struct {
			Bucket          string
			Region          string
			AccessKeyID     string
			SecretAccessKey string
			Prefix          string
		}
	}
}

func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 8081
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.Live.MinParticipants = 1
	c.Live.CodeAttempts = 20
	c.Live.PresenceTimeout = 10 * time.Second
	c.Live.Defaults.QuestionTimeSeconds = session.DefaultSettings.QuestionTimeSeconds
	c.Live.Defaults.SpeedBonusMultiplier = session.DefaultSettings.SpeedBonusMultiplier
	c.Live.Defaults.ShowLeaderboard = session.DefaultSettings.ShowLeaderboard
	c.Store.Driver = DriverMemory
	c.Content.Driver = DriverFile
	c.Content.File = "quizzes.yaml"
	c.Redis.Prefix = "livequiz"
	c.Redis.Pubsub.Prefix = "livequiz"
	c.Archive.S3.Prefix = "results"
	return c
}

type Server struct {
	c   Config
	log *zap.Logger

	eb *event.Bus

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
	}

	service struct {
		session *session.Service
	}

	http *http.Server
	grpc *grpc.Server
}

func Init(c Config) (*Server, error) {
	if c.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("server: auth.jwtSecret is required")
	}

	log, err := telemetry.NewLogger(c.Log.Level, c.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("server: init logger: %w", err)
	}
	zap.ReplaceGlobals(log)

	s := &Server{c: c, log: log}
	s.eb = event.NewBus(event.Config{Logger: log})

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) needsRedis() bool {
	return s.c.Store.Driver == DriverRedis || s.c.Redis.Pubsub.Enabled
}

func (s *Server) needsPostgres() bool {
	return s.c.Store.Driver == DriverPostgres || s.c.Content.Driver == DriverPostgres
}

func (s *Server) initInfra() error {
	if s.needsRedis() {
		if err := s.initRedis(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	if s.needsPostgres() {
		if err := s.initPostgres(); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
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

	if err := telemetry.MonitorRedis(r, s.log); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initPostgres() error {
	ctx := context.Background()

	db, err := database.Connect(ctx, s.c.Postgres.DSN())
	if err != nil {
		return err
	}

	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() error {
	var quizzes content.Store
	switch s.c.Content.Driver {
	case DriverPostgres:
		quizzes = content.NewPostgresStore(s.infra.postgres)
	case DriverFile:
		fs, err := content.NewFileStore(s.c.Content.File)
		if err != nil {
			return err
		}
		quizzes = fs
	default:
		return fmt.Errorf("unknown content driver %q", s.c.Content.Driver)
	}

	var repo store.Repository
	switch s.c.Store.Driver {
	case DriverMemory:
		repo = store.NewMemory()
	case DriverRedis:
		repo = store.NewRedis(store.RedisConfig{
			Client: s.infra.redis,
			Prefix: s.c.Redis.Prefix,
			TTL:    s.c.Store.TTL,
		})
	case DriverPostgres:
		repo = store.NewPostgres(s.infra.postgres)
	default:
		return fmt.Errorf("unknown store driver %q", s.c.Store.Driver)
	}

	// Presence follows the session store so that every instance sees the same heartbeats.
	var tracker presence.Tracker = presence.NewMemory(s.c.Live.PresenceTimeout, nil)
	if s.infra.redis != nil {
		tracker = presence.NewRedis(s.infra.redis, s.c.Redis.Prefix, s.c.Live.PresenceTimeout)
	}

	defaults := domain.Settings{
		QuestionTimeSeconds:  s.c.Live.Defaults.QuestionTimeSeconds,
		SpeedBonusMultiplier: s.c.Live.Defaults.SpeedBonusMultiplier,
		ShowLeaderboard:      s.c.Live.Defaults.ShowLeaderboard,
	}
	if p := s.c.Live.Defaults.PointsPerQuestion; p > 0 {
		defaults.PointsPerQuestionOverride = &p
	}

	s.service.session = session.NewService(session.Config{
		Repo:            repo,
		Content:         content.NewLoader(quizzes),
		EventBus:        s.eb,
		Presence:        tracker,
		Logger:          s.log,
		MinParticipants: s.c.Live.MinParticipants,
		CodeAttempts:    s.c.Live.CodeAttempts,
		Defaults:        &defaults,
	})

	telemetry.NewMetrics(prometheus.DefaultRegisterer).Subscribe(s.eb)

	if s.c.Redis.Pubsub.Enabled {
		api.NewNotifier(api.NotifierConfig{
			Redis:  s.infra.redis,
			Prefix: s.c.Redis.Pubsub.Prefix,
		}).Subscribe(s.eb)
	}

	if c := s.c.Archive.S3; c.Bucket != "" {
		client, err := archive.NewS3Client(context.Background(), archive.S3Config{
			Region:          c.Region,
			AccessKeyID:     c.AccessKeyID,
			SecretAccessKey: c.SecretAccessKey,
		})
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}

		archive.New(archive.Config{
			Client: client,
			Bucket: c.Bucket,
			Prefix: c.Prefix,
			Logger: s.log,
		}).Subscribe(s.eb)
	}

	return nil
}

func (s *Server) initAPI() {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(api.Logger(s.log), gin.Recovery())
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	pprof.Register(e, "/debug/pprof")

	api.New(api.Config{
		Session: s.service.session,
		JWT:     auth.NewJWTService(s.c.Auth.JWTSecret),
		Logger:  s.log,
	}).Register(e)

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor(s.log))
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s.grpc, hs)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

// Start serves HTTP and gRPC until Shutdown or a listener fails.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		return fmt.Errorf("grpc server: listen: %w", err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		s.log.Info(fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		s.log.Info(fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	return eg.Wait()
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		s.log.Error("server: shutdown HTTP failed", zap.Error(err))
	}

	s.eb.Stop()

	if s.infra.redis != nil {
		if err := s.infra.redis.Close(); err != nil {
			s.log.Warn("server: close redis failed", zap.Error(err))
		}
	}
	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}

	s.log.Info("server: shutdown completed")
	_ = s.log.Sync()
}
