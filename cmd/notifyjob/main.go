// Command notifyjob runs one scheduled job once, for hosts where an external
// scheduler such as cron drives the pipeline, and prints its summary as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/samims/notifier/internal/app"
	"github.com/samims/notifier/internal/config"
	"github.com/samims/notifier/internal/logger"
	"github.com/samims/notifier/internal/model"
	"github.com/samims/notifier/pkg/tracing"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run returns the process exit code. Arguments are validated before any
// connection is opened.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("notifyjob", flag.ContinueOnError)
	fs.SetOutput(stderr)
	usage := fmt.Sprintf("usage: notifyjob -job <%s> [-limit N]", strings.Join(model.JobNames, "|"))
	job := fs.String("job", "", "job to run: "+strings.Join(model.JobNames, ", "))
	limit := fs.Int("limit", 0, "batch size, 0 uses the configured default")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if !slices.Contains(model.JobNames, *job) {
		fmt.Fprintln(stderr, usage)
		return exitUsage
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return exitError
	}
	l := logger.NewLogger()
	slog.SetDefault(l)

	shutdownTracing, err := tracing.Setup(ctx, tracing.NewConfig(cfg.App.ServiceName+"-job", cfg.Tracing.Endpoint), l)
	if err != nil {
		l.Error("failed to initialize tracing", "error", err)
		return exitError
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			l.Error("failed to flush traces", "error", err)
		}
	}()

	a, err := app.New(ctx, cfg, l)
	if err != nil {
		l.Error("failed to initialize service", "error", err)
		return exitError
	}
	defer func() {
		if err := a.Close(); err != nil {
			l.Error("failed to close resources", "error", err)
		}
	}()

	summary, runErr := a.Runner.Run(ctx, *job, *limit)
	if err := json.NewEncoder(stdout).Encode(summary); err != nil {
		l.Error("failed to write summary", "error", err)
	}
	if runErr != nil {
		l.Error("job failed", "job", *job, "error", runErr)
		return exitError
	}
	return exitOK
}
