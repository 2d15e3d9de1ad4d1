package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-jewelry-orders/internal/app"
	"github.com/imrishuroy/go-jewelry-orders/internal/aws"
	"github.com/imrishuroy/go-jewelry-orders/internal/config"
	"github.com/imrishuroy/go-jewelry-orders/internal/dynamotest"
)

func TestCorsConfig(t *testing.T) {
	if c := corsConfig([]string{"*"}); !c.AllowAllOrigins || len(c.AllowOrigins) != 0 {
		t.Fatalf("wildcard: %+v", c)
	}
	c := corsConfig([]string{"https://shop.example"})
	if c.AllowAllOrigins || len(c.AllowOrigins) != 1 {
		t.Fatalf("explicit origins: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestSetupRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		AppEnv:         "development",
		RatesTable:     "rates",
		StoreTimeout:   time.Second,
		IdempotencyTTL: time.Hour,
		JWTSecret:      "secret",
		CORSOrigins:    []string{"https://shop.example"},
	}
	clients := &aws.AWSClients{DynamoDB: dynamotest.New().CreateTable("rates", "rate_id")}
	r := setupRouter(app.New(t.Context(), cfg, clients, zap.NewNop()), cfg, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://shop.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://shop.example" {
		t.Fatalf("Allow-Origin = %q", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rates/current", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("rates/current = %d: %s", w.Code, w.Body.String())
	}
}
