// Command workflowserver starts the REST control surface on top of an
// in-memory execution store, or a Redis-backed one when REDIS_URL is set.
package main

import (
	"context"
	"log"
	"os"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/praneethchandra/workflowforge/agent"
	"github.com/praneethchandra/workflowforge/core"
	"github.com/praneethchandra/workflowforge/server"
	"github.com/praneethchandra/workflowforge/store"
	"github.com/praneethchandra/workflowforge/telemetry"
)

func main() {
	logger := core.NewProductionLogger("workflowserver", true, false)
	factory := agent.NewFactory(logger)

	tp, err := telemetry.NewTracerProviderFromEnv(context.Background(), "workflowserver")
	if err != nil {
		// Resilient startup: run without exported traces rather than refuse.
		logger.Warn("failed to initialize trace exporter, traces will not be exported", map[string]interface{}{"error": err.Error()})
		tp = telemetry.NewTracerProvider()
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("tracer provider shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	meterProvider := sdkmetric.NewMeterProvider()
	otel.SetMeterProvider(meterProvider)
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			logger.Warn("meter provider shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}()
	metrics := telemetry.NewOTelMetrics(meterProvider.Meter("workflowforge"))

	execStore := buildStore(logger)
	srv := server.New(logger, factory, execStore)
	srv.SetMetrics(metrics)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logger.Info("starting workflowserver", map[string]interface{}{"port": port})
	if err := srv.Router().Run(":" + port); err != nil {
		log.Fatalf("workflowserver: %v", err)
	}
}

func buildStore(logger core.Logger) store.ExecutionStore {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return store.NewMemoryStore()
	}

	opt, err := store.ParseRedisURL(redisURL)
	if err != nil {
		logger.Warn("invalid REDIS_URL, falling back to in-memory store", map[string]interface{}{"error": err.Error()})
		return store.NewMemoryStore()
	}
	client := redis.NewClient(opt)
	return store.NewRedisExecutionStore(client, store.WithLogger(logger))
}
