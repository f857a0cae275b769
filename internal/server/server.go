package server

import (
	"time"

	"github.com/dourian/RaceFi-sub000/internal/appclock"
	"github.com/dourian/RaceFi-sub000/internal/auth"
	"github.com/dourian/RaceFi-sub000/internal/challenge"
	"github.com/dourian/RaceFi-sub000/internal/config"
	"github.com/dourian/RaceFi-sub000/internal/conformance"
	"github.com/dourian/RaceFi-sub000/internal/ledger"
	"github.com/dourian/RaceFi-sub000/internal/record"
	"github.com/dourian/RaceFi-sub000/internal/settlement"
	"github.com/dourian/RaceFi-sub000/internal/stream"
	"github.com/dourian/RaceFi-sub000/internal/wallet"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App        *fiber.App
	Cfg        config.Config
	DB         *pgxpool.Pool
	Redis      *redis.Client
	Stream     *stream.Hub
	Clock      *appclock.Clock
	Settlement *settlement.Service
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
		Clock:  appclock.New(),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	var comparer conformance.RouteComparer
	if s.Cfg.CompareURL != "" {
		comparer = conformance.NewRemoteComparer(s.Cfg.CompareURL, time.Duration(s.Cfg.CompareTimeoutMs)*time.Millisecond)
	}
	checker := conformance.NewChecker(conformance.Config{
		ThresholdRatio: s.Cfg.RouteMatchThreshold,
		ProximityM:     s.Cfg.ProximityM,
		MaxSpeedKmh:    s.Cfg.MaxSpeedKmh,
	}, comparer)

	walletClient := wallet.NewClient(s.Cfg.WalletURL, time.Duration(s.Cfg.WalletTimeoutMs)*time.Millisecond)

	challenges := challenge.NewService(s.DB, checker, s.Clock, walletClient)
	ledgerSvc := ledger.NewService(s.DB, s.Clock, s.Stream)
	recorder := record.NewRecorder(challenges, s.Stream)
	s.Settlement = settlement.NewService(s.DB, challenges, ledgerSvc, s.Clock)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB))
	challenge.RegisterRoutes(s.App.Group("/challenges"), challenges, jwtMiddleware)
	record.RegisterRoutes(s.App.Group("/runs"), recorder, jwtMiddleware)
	ledger.RegisterRoutes(s.App.Group("/balance"), ledgerSvc, walletClient, jwtMiddleware)
	settlement.RegisterRoutes(s.App.Group("/settlements"), s.Settlement, jwtMiddleware)
	appclock.RegisterRoutes(s.App.Group("/clock"), s.Clock, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
