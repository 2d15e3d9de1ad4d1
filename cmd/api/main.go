package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-jewelry-orders/internal/app"
	"github.com/imrishuroy/go-jewelry-orders/internal/aws"
	"github.com/imrishuroy/go-jewelry-orders/internal/config"
	"github.com/imrishuroy/go-jewelry-orders/internal/handlers"
	"github.com/imrishuroy/go-jewelry-orders/internal/logger"
)

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id"},
		ExposeHeaders: []string{"Location", "Idempotent-Replayed"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

func setupRouter(a *app.App, cfg *config.Config, log *zap.Logger) *gin.Engine {
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	return handlers.NewRouter(a.Deps(log), cors.New(corsConfig(cfg.CORSOrigins)))
}

// serveLocal runs the HTTP server until SIGINT/SIGTERM, then drains it.
func serveLocal(r http.Handler, addr string, log *zap.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	go func() {
		log.Info("running local server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown", zap.Error(err))
	}
	log.Info("api shutdown complete")
}

func main() {
	_ = godotenv.Load()
	if err := logger.Init(os.Getenv("APP_ENV") == "development"); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.L()

	config.Require(log, "JWT_SECRET")
	cfg := config.Load(log)

	ctx := context.Background()
	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		log.Fatal("failed to init aws clients", zap.Error(err))
	}

	a := app.New(ctx, cfg, clients, log)
	defer a.Close()

	r := setupRouter(a, cfg, log)

	// RUN_LOCAL=true serves HTTP directly for development.
	if cfg.RunLocal {
		serveLocal(r, cfg.HTTPAddr, log)
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req lambdaevents.APIGatewayProxyRequest) (lambdaevents.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
