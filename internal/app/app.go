// Package app wires stores and services from Config for the binaries.
package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-jewelry-orders/internal/auth"
	"github.com/imrishuroy/go-jewelry-orders/internal/aws"
	"github.com/imrishuroy/go-jewelry-orders/internal/config"
	"github.com/imrishuroy/go-jewelry-orders/internal/events"
	"github.com/imrishuroy/go-jewelry-orders/internal/handlers"
	"github.com/imrishuroy/go-jewelry-orders/internal/idempotency"
	"github.com/imrishuroy/go-jewelry-orders/internal/orders"
	"github.com/imrishuroy/go-jewelry-orders/internal/rates"
	"github.com/imrishuroy/go-jewelry-orders/internal/users"
)

// App holds the wired services.
type App struct {
	Users       *users.Store
	Rates       *rates.Service
	Orders      *orders.Service
	Idempotency *idempotency.Store
	Verifier    *auth.Verifier

	closers []func() error
}

// New builds every service over clients. The Redis cache, the rate feed
// and event publishing are enabled only when configured; a Redis that
// cannot be reached is logged and skipped.
func New(ctx context.Context, cfg *config.Config, clients *aws.AWSClients, log *zap.Logger) *App {
	a := &App{}

	var emitter *events.Emitter
	if cfg.QueueURL != "" {
		emitter = events.NewEmitter(aws.NewPublisher(clients.SQS, cfg.QueueURL), log)
	} else {
		log.Info("ORDERS_QUEUE_URL not set, events disabled")
	}

	rateCfg := rates.ServiceConfig{StoreTimeout: cfg.StoreTimeout}
	if emitter != nil {
		rateCfg.Events = emitter
	}
	if cfg.RedisAddr != "" {
		rdb, err := rates.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn("redis unavailable, rate cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			rateCfg.Cache = rates.NewRedisCache(rdb, cfg.RateCacheTTL)
			a.closers = append(a.closers, rdb.Close)
		}
	}
	if cfg.RateFeedURL != "" {
		rateCfg.Feed = rates.NewHTTPFeed(cfg.RateFeedURL, cfg.RateFeedAPIKey, cfg.RateFeedTimeout)
	}

	a.Users = users.NewStore(clients.DynamoDB, cfg.UsersTable)
	a.Rates = rates.NewService(rates.NewStore(clients.DynamoDB, cfg.RatesTable), rateCfg, log)
	a.Idempotency = idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)

	orderCfg := orders.Config{
		Rates:       a.Rates,
		Users:       a.Users,
		Idempotency: a.Idempotency,
		Charges: orders.ChargePolicy{
			TaxRate:           cfg.TaxRate,
			ShippingFee:       cfg.ShippingFee,
			FreeShippingAbove: cfg.FreeShippingAbove,
		},
		AllowAnyTransition: !cfg.EnforceTransitions,
		StoreTimeout:       cfg.StoreTimeout,
	}
	if emitter != nil {
		orderCfg.Events = emitter
	}
	a.Orders = orders.NewService(orders.NewStore(clients.DynamoDB, orders.Tables{
		Orders:      cfg.OrdersTable,
		Numbers:     cfg.OrderNumbersTable,
		Idempotency: cfg.IdempotencyTable,
	}), orderCfg, log)

	a.Verifier = auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	return a
}

// Deps returns the HTTP dependencies.
func (a *App) Deps(log *zap.Logger) handlers.Deps {
	return handlers.Deps{
		Orders:      a.Orders,
		Rates:       a.Rates,
		Idempotency: a.Idempotency,
		Verifier:    a.Verifier,
		Users:       a.Users,
		Log:         log,
	}
}

// Close releases connections opened by New.
func (a *App) Close() {
	for _, c := range a.closers {
		_ = c()
	}
}
