package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/domain"
	custommiddleware "storefront/internal/middleware"
	"storefront/internal/notify"
	"storefront/internal/payment"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/stats"
	"storefront/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     database.Service
	redis  *redis.Client
}

// NewServer wires repositories, services and handlers onto one router.
// redisClient may be nil, in which case rate limiting is off and order
// notifications are only logged.
func NewServer(cfg *config.Config, logger *zap.Logger, db database.Service, redisClient *redis.Client) *Server {
	s := &Server{
		config: cfg,
		logger: logger,
		db:     db,
		redis:  redisClient,
	}

	router := chi.NewRouter()
	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.Server.Env == "development"))

	router.Get("/health", s.health)

	store := repository.NewStore(db.DB())
	repos := store.Repositories()
	aggregator := stats.NewAggregator(time.Now)

	var dispatcher notify.Dispatcher = notify.NewLogDispatcher(logger)
	if redisClient != nil {
		dispatcher = notify.NewRedisDispatcher(redisClient, cfg.Redis.NotifyQueue)
	}

	userService := service.NewUserService(store, repos, service.NewTokenConfig(cfg.JWT))
	customerService := service.NewCustomerService(store, repos, time.Now)
	catalogService := service.NewCatalogService(repos, cfg.Store.PageSize, time.Now)
	cartService := service.NewCartService(store, repos, time.Now)
	gateway := payment.NewSandbox(cfg.Payment.DeclineRefs...)
	throttle := domain.NewThrottle(cfg.Store.PurchaseWait)
	checkoutService := service.NewCheckoutService(service.CheckoutDeps{
		Tx:            store,
		Repos:         repos,
		Gateway:       gateway,
		Dispatcher:    dispatcher,
		Aggregator:    aggregator,
		Throttle:      throttle,
		Currency:      cfg.Store.Currency,
		Logger:        logger.Named("checkout"),
		SettleTimeout: cfg.Store.SettleTimeout,
	})
	walletService := service.NewWalletService(repos, gateway, throttle, logger.Named("wallet"), time.Now)
	orderService := service.NewOrderService(store, repos, time.Now)
	reportService := service.NewReportService(store, repos, aggregator, time.Now)

	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)

	router.Group(func(r chi.Router) {
		if redisClient != nil && cfg.RateLimit.Enabled {
			r.Use(custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
				RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
				Window:            cfg.RateLimit.Window,
				KeyPrefix:         "storefront:ratelimit",
			}, logger))
		}

		transport.NewUserHandler(userService, logger).RegisterRoutes(r, authMiddleware)
		transport.NewGuestHandler(customerService, userService, logger).RegisterRoutes(r)
		transport.NewCatalogHandler(catalogService, logger).RegisterRoutes(r)
		transport.NewCartHandler(cartService, customerService, logger).RegisterRoutes(r, authMiddleware)
		transport.NewCheckoutHandler(checkoutService, customerService, logger).RegisterRoutes(r, authMiddleware)
		transport.NewOrderHandler(orderService, customerService, logger).RegisterRoutes(r, authMiddleware)
		transport.NewWalletHandler(walletService, customerService, logger).RegisterRoutes(r, authMiddleware)
		transport.NewAdminHandler(reportService, orderService, catalogService, logger).RegisterRoutes(r, authMiddleware)
	})

	s.Server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]interface{}{"status": "ok"}

	dbHealth := s.db.Health()
	body["database"] = dbHealth
	if dbHealth["status"] != "up" {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}

	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			body["redis"] = "down"
		} else {
			body["redis"] = "up"
		}
	}

	custommiddleware.RespondWithJSON(w, status, body)
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	_ = s.logger.Sync()
	return nil
}
