package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/moniteur/ctmon/ctlog"
	"github.com/moniteur/ctmon/monitor"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	app := &cli.App{
		Name:  "ctmon",
		Usage: "connect to Certificate Transparency logs and stream certificate updates",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "domains-only",
				Usage: "output only domain names",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "format output as JSON",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "display debug logging",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "YAML config file with the log list and polling parameters",
			},
			&cli.StringSliceFlag{
				Name:  "log-uri",
				Usage: "CT log base URL to watch (repeatable, replaces the built-in list)",
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "tree head poll interval",
			},
			&cli.Uint64Flag{
				Name:  "batch-size",
				Usage: "maximum entries per get-entries request",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := buildLogger(c.Bool("verbose"))
	defer logger.Sync()

	cfg := monitor.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = monitor.LoadConfig(path); err != nil {
			return err
		}
	}
	if uris := c.StringSlice("log-uri"); len(uris) > 0 {
		cfg.Logs = make([]ctlog.Log, 0, len(uris))
		for _, u := range uris {
			cfg.Logs = append(cfg.Logs, ctlog.Log{URL: u})
		}
	}
	if d := c.Duration("poll-interval"); d > 0 {
		cfg.PollInterval = d
	}
	if n := c.Uint64("batch-size"); n > 0 {
		cfg.BatchSize = n
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := monitor.New(cfg, printer(c.Bool("domains-only"), c.Bool("json")), logger)
	if err := m.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")
	m.Stop()
	return nil
}

// printer picks the stdout format for entries. Stdout carries data only;
// diagnostics go through the logger on stderr.
func printer(domainsOnly, asJSON bool) monitor.Callback {
	switch {
	case domainsOnly && asJSON:
		return func(e *ctlog.Entry) {
			line, err := json.Marshal(e.Domains)
			if err != nil {
				return
			}
			fmt.Fprintf(os.Stdout, "%s\n", line)
		}
	case domainsOnly:
		return func(e *ctlog.Entry) {
			for _, d := range e.Domains {
				fmt.Fprintln(os.Stdout, d)
			}
		}
	case asJSON:
		return func(e *ctlog.Entry) {
			line, err := json.Marshal(e)
			if err != nil {
				return
			}
			fmt.Fprintf(os.Stdout, "%s\n", line)
		}
	default:
		return func(e *ctlog.Entry) {
			fmt.Fprintf(os.Stdout, "[%s] %s - [%s]\n",
				e.Time().Format(time.RFC3339), e.Source.URL, strings.Join(e.Domains, ", "))
		}
	}
}

func buildLogger(verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
