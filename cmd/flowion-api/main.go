package main

import (
	"context"
	"os"
	"time"

	"github.com/flowion-ai/flowion/pkg/cmd"
	"github.com/flowion-ai/flowion/pkg/log"
	"github.com/flowion-ai/flowion/pkg/otelhelper"
	"github.com/flowion-ai/flowion/pkg/protocol"
	"github.com/flowion-ai/flowion/pkg/queue"
	"github.com/flowion-ai/flowion/pkg/schedule"
	"github.com/flowion-ai/flowion/pkg/workflow"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPort     = 9091
	shutdownTimeout = 30 * time.Second
)

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "flowion-api",
		Usage:                 "Create, manage, and run workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "plugins-path",
				Usage:    "Path to the directory containing node plugins",
				Value:    "./plugins",
				Required: false,
				Sources:  cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.IntFlag{
				Name:    "max-concurrent-runs",
				Usage:   "Maximum number of executions running at once (0 uses the engine default)",
				Value:   0,
				Sources: cli.EnvVars("MAX_CONCURRENT_RUNS"),
			},
			&cli.BoolFlag{
				Name:    "enable-scheduler",
				Usage:   "Start cron runs for published workflows with a schedule",
				Sources: cli.EnvVars("ENABLE_SCHEDULER"),
			},
			&cli.BoolFlag{
				Name:    "enable-queue",
				Usage:   "Consume run requests from the Redis run queue",
				Sources: cli.EnvVars("ENABLE_QUEUE"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address for the run queue",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "run-queue",
				Usage:   "Redis list name for queued run requests",
				Value:   queue.DefaultQueue,
				Sources: cli.EnvVars("RUN_QUEUE"),
			},
			&cli.BoolFlag{
				Name:    "enable-tracing",
				Usage:   "Export execution spans via OTLP",
				Sources: cli.EnvVars("ENABLE_TRACING"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Flowion API")

			registry := cmd.NewRegistry(logger, command.String("plugins-path"))
			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			var tracer trace.Tracer

			if command.Bool("enable-tracing") {
				var err error

				tracer, err = otelhelper.NewTracer(ctx, "flowion-api")
				if err != nil {
					logger.ErrorContext(ctx, "Failed to initialize tracer", "error", err)

					return err
				}
			}

			engine := workflow.NewEngine(logger, persistence, registry, eventBus, workflow.EngineConfig{
				MaxConcurrentRuns: command.Int("max-concurrent-runs"),
				Tracer:            tracer,
			})
			registry.RegisterDefaultNodes(protocol.Dependencies{Snapshotter: engine})

			defer func() {
				closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()

				if err := engine.Close(closeCtx); err != nil {
					logger.ErrorContext(ctx, "Failed to drain executions", "error", err)
				}
			}()

			if command.Bool("enable-scheduler") {
				scheduler := schedule.NewScheduler(logger, persistence.WorkflowRepository(), engine)
				if err := scheduler.Start(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to start scheduler", "error", err)

					return err
				}

				defer func() {
					stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
					defer cancel()

					if err := scheduler.Stop(stopCtx); err != nil {
						logger.ErrorContext(ctx, "Failed to stop scheduler", "error", err)
					}
				}()
			}

			if command.Bool("enable-queue") {
				consumer := queue.NewConsumer(logger, queue.Config{
					Addr:  command.String("redis-addr"),
					Queue: command.String("run-queue"),
				}, engine)

				if err := consumer.Start(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to start run queue consumer", "error", err)

					return err
				}

				defer func() {
					stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
					defer cancel()

					if err := consumer.Stop(stopCtx); err != nil {
						logger.ErrorContext(ctx, "Failed to stop run queue consumer", "error", err)
					}
				}()
			}

			api := NewAPI(
				logger,
				persistence,
				registry,
				engine,
			)

			err := api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
