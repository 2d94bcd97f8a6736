package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bantzhq/bantz/internal/config"
	"github.com/bantzhq/bantz/internal/runtime"
	"github.com/bantzhq/bantz/pkg/models"
)

const defaultConfigPath = "bantz.yaml"

// buildServeCmd creates the "serve" command that runs the assistant as
// a console session: stdin lines become turns, fired reminders print
// as they happen.
func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant console session",
		Long: `Run the Bantz runtime with the reminder scheduler and read turns
from stdin. Each line is processed as one turn; replies and fired
reminders are written to stdout.

A production deployment embeds the runtime as a library and injects
its own planner and finalizer models; serve wires the built-in
development planner.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	r, err := runtime.New(cfg, runtime.Options{Router: devRouter{}})
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	r.Start(ctx)

	r.Bus().Subscribe(string(models.EventBantzMessage), func(_ context.Context, event models.Event) {
		if message, ok := event.Data["message"].(string); ok {
			fmt.Println(message)
		}
	})

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			output := r.HandleTurn(ctx, "console", line)
			fmt.Println(output.Reply)
		}
	}
}

// devRouter is the built-in fallback planner for console sessions
// without a wired model. It never plans tools; every input routes to
// chat with a canned Turkish reply.
type devRouter struct{}

func (devRouter) Plan(_ context.Context, userText, _ string) (*models.PlannerDecision, error) {
	return &models.PlannerDecision{
		Route:          "chat",
		Intent:         "smalltalk",
		Confidence:     0.5,
		AssistantReply: "Sizi duydum efendim: " + userText,
	}, nil
}
