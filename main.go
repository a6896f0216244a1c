// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/AleutianAI/AleutianChat/config"
	"github.com/AleutianAI/AleutianChat/graph"
	"github.com/AleutianAI/AleutianChat/handlers"
	"github.com/AleutianAI/AleutianChat/llm"
	"github.com/AleutianAI/AleutianChat/observability"
	"github.com/AleutianAI/AleutianChat/profile"
	"github.com/AleutianAI/AleutianChat/routes"
	"github.com/AleutianAI/AleutianChat/sessioncache"
	"github.com/AleutianAI/AleutianChat/supabase"
	"github.com/AleutianAI/AleutianChat/tools"
)

// sweepInterval is how often the session cache evicts expired entries.
const sweepInterval = time.Minute

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "aleutian-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("aleutianchat-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	// Local development reads .env; in containers the variables come from
	// the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	metrics := observability.InitMetrics()

	// --- LLM backends ---
	ctx := context.Background()
	openaiClient, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey)
	if err != nil {
		log.Fatalf("Failed to initialize the OpenAI client: %v", err)
	}
	geminiClient, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		log.Fatalf("Failed to initialize the Gemini client: %v", err)
	}
	registry := llm.NewRegistry(openaiClient, geminiClient)

	// --- Session cache with background sweep ---
	cache := sessioncache.New[supabase.Session](cfg.SessionTTL, nil)
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go cache.Run(sweepCtx, sweepInterval)

	// --- Hosted backend ---
	factory := supabase.NewFactory(cfg.SupabaseURL, cfg.SupabaseAnonKey)
	factory.OnConflict(func(conversationID int64) {
		metrics.RecordSaveConflict()
	})

	// Dev singleton for the character chat endpoint.
	devSession, _, err := factory.SignIn(ctx, cfg.SupabaseDevEmail, cfg.SupabaseDevPassword)
	if err != nil {
		log.Fatalf("Failed to sign in the dev account: %v", err)
	}
	slog.Info("Dev account signed in", "userId", devSession.UserID())

	// --- Profile cache ---
	profileCache, err := profile.Open(profile.Config{
		Path:   cfg.ProfileCachePath,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("Failed to open the profile cache: %v", err)
	}
	defer profileCache.Close()

	// --- Optional web search tool ---
	var search *tools.TavilyClient
	if cfg.TavilyAPIKey != "" {
		search, err = tools.NewTavilyClient(cfg.TavilyAPIKey)
		if err != nil {
			log.Fatalf("Failed to initialize the web search client: %v", err)
		}
	} else {
		slog.Info("TAVILY_API_KEY not set, web search tool disabled")
	}

	// --- Graph retrieval helper ---
	var graphStore *graph.Store
	graphStore, err = graph.NewStore(ctx, cfg.Neo4jURI, "neo4j", cfg.Neo4jAuth, openaiClient)
	if err != nil {
		log.Fatalf("Failed to connect to the graph database: %v", err)
	}
	defer graphStore.Close(ctx)
	graphStore.UseAnswerer(openaiClient, "gpt-4o")

	router := gin.Default()
	router.Use(otelgin.Middleware("aleutianchat-service"))

	var graphDep handlers.GraphStore = graphStore
	routes.SetupRoutes(router, routes.Deps{
		AuthBackend: factory,
		Cache:       cache,
		Registry:    registry,
		Graph:       graphDep,
		CharChat: handlers.CharChatDeps{
			DevSession:   devSession,
			Registry:     registry,
			ProfileCache: profileCache,
			Search:       search,
			Metrics:      metrics,
		},
		Metrics: metrics,
	})

	slog.Info("Starting the chat server", "port", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
