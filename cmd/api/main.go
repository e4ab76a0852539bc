package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/trialmesh/aster/config"
	"github.com/trialmesh/aster/internal/database"
	aliasrepo "github.com/trialmesh/aster/internal/repositories/alias"
	candidaterepo "github.com/trialmesh/aster/internal/repositories/candidate"
	companyrepo "github.com/trialmesh/aster/internal/repositories/company"
	decisionrepo "github.com/trialmesh/aster/internal/repositories/decision"
	reviewrepo "github.com/trialmesh/aster/internal/repositories/review"
	rulerepo "github.com/trialmesh/aster/internal/repositories/rule"
	"github.com/trialmesh/aster/pkg/kafka"
	"github.com/trialmesh/aster/pkg/middleware"
	"github.com/trialmesh/aster/pkg/models"
	"github.com/trialmesh/aster/pkg/resolution"
	"github.com/trialmesh/aster/pkg/resolver"
	companiesroute "github.com/trialmesh/aster/pkg/routes/companies"
	"github.com/trialmesh/aster/pkg/routes/health"
	resolveroute "github.com/trialmesh/aster/pkg/routes/resolve"
	reviewroute "github.com/trialmesh/aster/pkg/routes/review"
	rulesroute "github.com/trialmesh/aster/pkg/routes/rules"
	runsroute "github.com/trialmesh/aster/pkg/routes/runs"
	"github.com/trialmesh/aster/pkg/scoring"
	"github.com/trialmesh/aster/pkg/tracing"
)

const version = "1.0.0"

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file loaded:", err)
	}

	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := tracing.Setup(ctx, tracing.Config{
			ServiceName: cfg.AppName,
			Endpoint:    cfg.TracingEndpoint,
			Insecure:    cfg.TracingInsecure,
			Timeout:     10 * time.Second,
		})
		if err != nil {
			logger.WithError(err).Error("Failed to set up tracing")
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Tracer shutdown failed")
			}
		}()
	}

	db, err := database.Connect(ctx, database.Config{
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		UserName:        cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	driver, err := migratepg.WithInstance(db.Unsafe().DB, &migratepg.Config{})
	if err != nil {
		logger.WithError(err).Error("Failed to create migration driver")
		os.Exit(1)
	}
	migrations := database.NewMigrationService(logger, database.MigrationConfig{
		FolderPath: cfg.MigrationFolderPath,
		Version:    uint(cfg.MigrationVersion),
		Force:      cfg.MigrationForce,
	})
	if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
		logger.WithError(err).Error("Failed to apply migrations")
		os.Exit(1)
	}

	// A partial or malformed artifact must never score traffic.
	artifact, err := scoring.LoadArtifact(cfg.CalibrationArtifactPath)
	if err != nil {
		logger.WithError(err).Error("Failed to load calibration artifact")
		os.Exit(1)
	}
	scorer := scoring.NewScorer(artifact)
	logger.WithFields(map[string]any{"version": artifact.Version}).Info("Calibration artifact loaded")

	companies := companyrepo.NewRepository(db, logger)
	aliases := aliasrepo.NewRepository(db, logger)
	rules := rulerepo.NewRepository(db, logger)
	candidates := candidaterepo.NewRepository(db, logger)
	decisions := decisionrepo.NewRepository(db, logger)
	reviews := reviewrepo.NewRepository(db, logger)

	deterministic := resolver.NewDeterministic(aliases, companies, logger).
		WithExactAliasTypes(exactAliasTypes(cfg.ExactAliasTypes, logger))
	service := resolution.NewService(
		deterministic, candidates, decisions, reviews, rules, aliases, scorer,
		resolution.Options{
			CandidateK:             cfg.CandidateK,
			CandidateMinSimilarity: cfg.CandidateMinSimilarity,
			BatchWorkerCount:       cfg.BatchWorkerCount,
			RecordTimeout:          cfg.RecordTimeout,
			PromotionVisibility:    cfg.PromotionVisibility,
			ProbabilisticEnabled:   cfg.ProbabilisticEnabled,
		},
		logger,
	)

	var producer *kafka.Producer
	var consumer *kafka.Consumer
	if cfg.KafkaEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaDecisionTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeoutMs) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()

		consumer = kafka.NewConsumer(cfg, logger, func(ctx context.Context, msg *kafka.IncomingMessage) error {
			dec, err := service.Resolve(ctx, *msg.Request)
			if err != nil {
				return err
			}
			return producer.PublishDecision(ctx, &kafka.DecisionEvent{
				RunID:       msg.Request.RunID,
				ExternalKey: msg.Request.ExternalKey,
				SponsorText: msg.Request.SponsorText,
				Decision:    dec,
			})
		})
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start Kafka consumer")
			os.Exit(1)
		}
		defer func() {
			if err := consumer.Stop(); err != nil {
				logger.WithError(err).Warn("Kafka consumer shutdown failed")
			}
		}()
	}

	validate := validator.New()

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = time.Duration(cfg.HTTPServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HTTPServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HTTPServerIdleTimeoutSeconds) * time.Second
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	checker := health.NewChecker(db.Unsafe(), consumerChecker(consumer), version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	resolveroute.NewHandler(service, producer, validate, logger).Register(api.Group("/resolve"))
	reviewroute.NewHandler(reviews, decisions, validate, logger).Register(api.Group("/review"))
	rulesroute.NewHandler(rules, validate).Register(api.Group("/rules"))
	companiesroute.NewHandler(companies, aliases, validate).Register(api.Group("/companies"))
	runsroute.NewHandler(decisions).Register(api.Group("/runs"))

	go func() {
		checker.SetReady(true)
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.WithFields(map[string]any{"addr": addr}).Info("HTTP server starting")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	checker.SetReady(false)
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown failed")
	}
}

// exactAliasTypes converts the configured names, dropping unknown ones. An
// empty result keeps the resolver default.
func exactAliasTypes(names []string, logger ectologger.Logger) []models.AliasType {
	var types []models.AliasType
	for _, name := range names {
		t := models.AliasType(name)
		if !models.ValidAliasType(t) {
			logger.WithFields(map[string]any{"alias_type": name}).Warn("Ignoring unknown exact alias type")
			continue
		}
		types = append(types, t)
	}
	return types
}

// consumerChecker avoids handing the health checker a typed nil
func consumerChecker(c *kafka.Consumer) health.KafkaChecker {
	if c == nil {
		return nil
	}
	return c
}

func newLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		b, err := json.Marshal(msg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to marshal log message:", err)
			return
		}
		fmt.Fprintln(os.Stdout, string(b))
	})
}
