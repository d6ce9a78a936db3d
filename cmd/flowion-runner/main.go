// Package main provides a foreground workflow runner for development and
// scripted runs: it executes one published workflow to completion and
// prints the execution output.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/flowion-ai/flowion/pkg/cmd"
	"github.com/flowion-ai/flowion/pkg/log"
	"github.com/flowion-ai/flowion/pkg/models"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	command := &cli.Command{
		Name:                  "flowion-runner",
		EnableShellCompletion: true,
		Usage:                 "Run one published workflow to completion",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "workflow-id",
				Aliases:  []string{"w"},
				Usage:    "ID of the published workflow to run",
				Required: true,
				Sources:  cli.EnvVars("WORKFLOW_ID"),
			},
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "JSON object passed to the workflow as input",
				Value:   "{}",
			},
			&cli.StringFlag{
				Name:    "runner-id",
				Aliases: []string{"id"},
				Usage:   "Custom runner ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("RUNNER_ID"),
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
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Maximum time to wait for the run to finish",
				Value: defaultRunTimeout,
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

			runnerID := command.String("runner-id")
			if runnerID == "" {
				runnerID = "runner-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("flowion-runner").With("runner_id", runnerID)

			input := make(map[string]any)
			if err := json.Unmarshal([]byte(command.String("input")), &input); err != nil {
				return fmt.Errorf("invalid input JSON: %w", err)
			}

			registry := cmd.NewRegistry(logger, command.String("plugins-path"))

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			runner := NewRunner(
				runnerID,
				persistence,
				eventBus,
				logger,
				registry,
			)

			defer func() {
				closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
				defer cancel()

				if err := runner.Close(closeCtx); err != nil {
					logger.ErrorContext(ctx, "Failed to drain executions", "error", err)
				}
			}()

			execution, err := runner.Run(ctx, command.String("workflow-id"), input, command.Duration("timeout"))
			if err != nil {
				return err
			}

			output, err := json.MarshalIndent(execution.Output, "", "  ")
			if err != nil {
				return err
			}

			fmt.Fprintln(os.Stdout, string(output))

			if execution.Status != models.ExecutionStatusCompleted {
				return fmt.Errorf("execution %s finished %s: %s", execution.ID, execution.Status, execution.ErrorMessage)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
