package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/progRizvi/MarketMate/internal/aws"
	"github.com/progRizvi/MarketMate/internal/config"
	"github.com/progRizvi/MarketMate/internal/dispatch"
	"github.com/progRizvi/MarketMate/internal/handlers"
	"github.com/progRizvi/MarketMate/internal/idempotency"
	"github.com/progRizvi/MarketMate/internal/jobs"
	"github.com/progRizvi/MarketMate/internal/orders"
	"github.com/progRizvi/MarketMate/internal/payments"
)

func setupRouter(engine *orders.Engine, dispatcher *dispatch.Dispatcher, ingestor *payments.Ingestor, queue *jobs.Queue) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterOrderRoutes(r, engine, dispatcher)
	handlers.RegisterWebhookRoutes(r, ingestor)
	handlers.RegisterJobAdminRoutes(r, queue)
	handlers.RegisterMediaRoutes(r, queue)

	return r
}

func main() {
	cfg := config.Load()

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	metrics := aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace)

	idemStore := idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL, cfg.IdempotencyLease)
	orderStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable)
	engine := orders.NewEngine(orderStore, idemStore)

	wake := aws.NewPublisher(clients.SQS, cfg.JobsQueueURL)
	queue := jobs.NewQueue(clients.DynamoDB, cfg.JobsTable, wake, jobs.RetryPolicy{
		MaxAttempts: cfg.JobMaxAttempts,
		BaseBackoff: cfg.JobBaseBackoff,
		MaxBackoff:  cfg.JobMaxBackoff,
	}, cfg.JobLease, metrics)

	var stream *aws.Publisher
	if cfg.EventStreamQueueURL != "" {
		stream = aws.NewPublisher(clients.SQS, cfg.EventStreamQueueURL)
	}
	dispatcher := dispatch.NewDispatcher(queue, stream)

	eventStore := payments.NewStore(clients.DynamoDB, cfg.PaymentEventsTable)
	ingestor := payments.NewIngestor(cfg.PaymentProvider, cfg.WebhookSecret, cfg.WebhookTolerance,
		eventStore, idemStore, engine, dispatcher, metrics)

	r := setupRouter(engine, dispatcher, ingestor, queue)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		log.Printf("running local server on %s", cfg.HTTPAddr)
		if err := r.Run(cfg.HTTPAddr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
