package server

import (
	"context"
	"log"
	"time"

	"backend-kwenda/internal/config"
	"backend-kwenda/internal/nav"
	"backend-kwenda/internal/notify"
	"backend-kwenda/internal/sampler"
	"backend-kwenda/internal/speech"
	"backend-kwenda/internal/stream"
	"backend-kwenda/internal/trips"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stream *stream.Hub

	Sampler  *sampler.Sampler
	Source   *sampler.PushSource
	Watches  *trips.WatchRegistry
	Sessions *nav.Sessions
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	tables := tablesFromConfig(cfg)
	hub := stream.NewHub(redisClient)

	var feed trips.ChangeFeed
	if redisClient != nil {
		feed = trips.NewRedisFeed(redisClient)
	}
	store := trips.NewStore(db, tables)
	syncr := trips.NewSynchronizer(store, feed, notify.ForConfig(redisClient), tables, hub.BroadcastTracking)

	source := sampler.NewPushSource()
	smp := sampler.New(source, samplerTuning(cfg))

	planner := nav.NewHTTPPlanner(cfg.RoutingURL, ms(cfg.RoutingTimeoutMS))
	synth := speech.NewHTTPSynthesizer(cfg.SpeechURL, ms(cfg.SpeechTimeoutMS))

	s := &Server{
		App:      app,
		Cfg:      cfg,
		DB:       db,
		Redis:    redisClient,
		Stream:   hub,
		Sampler:  smp,
		Source:   source,
		Watches:  trips.NewWatchRegistry(syncr),
		Sessions: nav.NewSessions(planner, smp, synth, navTuning(cfg)),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	tracking := s.App.Group("/tracking")
	sampler.RegisterRoutes(tracking, sampler.NewIngest(s.Sampler, s.Source))
	trips.RegisterRoutes(tracking, s.Watches)
	nav.RegisterRoutes(s.App.Group("/nav"), s.Sessions)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}

// StartTracking brings the sampling pipeline up in the background. The
// first device fix may arrive well after boot, so the blocking first-fix
// wait happens off the request path.
func (s *Server) StartTracking(ctx context.Context) {
	go func() {
		err := s.Sampler.Start(ctx, sampler.Options{
			Profile:            "courier",
			AdaptiveInterval:   true,
			BatteryOptimized:   true,
			CachingEnabled:     true,
			CompressionEnabled: true,
		})
		if err != nil {
			log.Printf("sampler start: %v", err)
		}
	}()
}

// Shutdown tears everything down: open watches, nav sessions, the
// sampler, then the listener.
func (s *Server) Shutdown() error {
	s.Watches.CloseAll()
	s.Sessions.StopAll()
	s.Sampler.Stop()
	return s.App.Shutdown()
}

func tablesFromConfig(cfg config.Config) trips.Tables {
	if cfg.ProgressTablesJSON == "" {
		return trips.DefaultTables()
	}
	tables, err := trips.TablesFromJSON(cfg.ProgressTablesJSON)
	if err != nil {
		log.Printf("invalid PROGRESS_TABLES_JSON, using defaults: %v", err)
		return trips.DefaultTables()
	}
	return tables
}

func samplerTuning(cfg config.Config) sampler.Tuning {
	return sampler.Tuning{
		BaseInterval:       ms(cfg.SampleBaseIntervalMS),
		MinInterval:        ms(cfg.SampleMinIntervalMS),
		MaxInterval:        ms(cfg.SampleMaxIntervalMS),
		BatteryLowPct:      cfg.BatteryLowPct,
		BatteryCriticalPct: cfg.BatteryCriticalPct,
		BufferCap:          cfg.SampleBufferCap,
		RetryBudget:        cfg.SourceRetryBudget,
		FirstFixTimeout:    ms(cfg.FirstFixTimeoutMS),
	}
}

func navTuning(cfg config.Config) nav.Tuning {
	return nav.Tuning{
		CorridorToleranceM: cfg.CorridorToleranceM,
		ArrivalThresholdM:  cfg.ArrivalThresholdM,
		RecalcMaxRetries:   cfg.RecalcMaxRetries,
		RecalcBackoff:      ms(cfg.RecalcBackoffMS),
		Voice:              cfg.SpeechVoice,
	}
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
