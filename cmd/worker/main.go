package main

import (
	"context"
	"os"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-jewelry-orders/internal/aws"
	"github.com/imrishuroy/go-jewelry-orders/internal/config"
	"github.com/imrishuroy/go-jewelry-orders/internal/logger"
)

func main() {
	_ = godotenv.Load()
	if err := logger.Init(os.Getenv("APP_ENV") == "development"); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.L()

	cfg := config.Load(log)
	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatal("failed to init aws clients", zap.Error(err))
	}
	p := NewProcessor(aws.NewMetricsEmitter(clients.CloudWatch, cfg.MetricsNamespace), log)

	// If RUN_LOCAL=true, process a single event from LOCAL_SQS_BODY and exit.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"type":"order.created","orderId":"local-order-1","total":1000}`
		}
		ev := lambdaevents.SQSEvent{Records: []lambdaevents.SQSMessage{{MessageId: "local-1", Body: body}}}
		resp, err := p.Handle(context.Background(), ev)
		if err != nil || len(resp.BatchItemFailures) > 0 {
			log.Fatal("local handler failed", zap.Error(err), zap.Int("failures", len(resp.BatchItemFailures)))
		}
		return
	}

	lambda.Start(p.Handle)
}
