// Package main is the CLI entry point for version-sentinel.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/version-sentinel/version-sentinel/internal/agent"
	"github.com/version-sentinel/version-sentinel/internal/config"
)

// Build-time variables set via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	app := &cli.Command{
		Name:    "version-sentinel",
		Usage:   "Detect new releases of a client and purge its caches when they go stale",
		Version: version,
		Commands: []*cli.Command{
			runCommand(),
			checkCommand(),
			purgeCommand(),
			versionCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to YAML configuration file",
			Sources: cli.EnvVars("VS_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (trace, debug, info, warn, error, fatal, panic)",
			Sources: cli.EnvVars("VS_LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "origin",
			Usage:   "Origin the metadata document is served from (e.g. https://app.example.com)",
			Sources: cli.EnvVars("VS_POLL_ORIGIN"),
		},
		&cli.StringFlag{
			Name:    "base-path",
			Usage:   "Path prefix of the metadata document",
			Sources: cli.EnvVars("VS_POLL_BASE_PATH"),
		},
		&cli.StringFlag{
			Name:    "storage-key",
			Usage:   "Key the last known version is stored under",
			Sources: cli.EnvVars("VS_POLL_STORAGE_KEY"),
		},
	}
}

func runCommand() *cli.Command {
	flags := append(commonFlags(),
		&cli.StringFlag{
			Name:    "server-listen-address",
			Usage:   "HTTP listen address (e.g. :8080)",
			Sources: cli.EnvVars("VS_LISTEN_ADDRESS"),
		},
		&cli.BoolFlag{
			Name:    "auto",
			Usage:   "Purge and reload as soon as a new version is published",
			Sources: cli.EnvVars("VS_POLL_AUTO"),
		},
		&cli.IntFlag{
			Name:    "duration-ms",
			Usage:   "Polling interval in milliseconds",
			Sources: cli.EnvVars("VS_POLL_DURATION_MS"),
		},
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Poll for new versions until interrupted",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, closer := agent.NewLogger(cfg.Log)
			defer closer.Close()
			log := logger.WithField("app", "version-sentinel")

			log.WithFields(logrus.Fields{
				"version": version,
				"commit":  commit,
			}).Info("starting version-sentinel")

			a, err := agent.New(cfg, agent.Options{Version: version}, log)
			if err != nil {
				return fmt.Errorf("initializing agent: %w", err)
			}

			// --- OS signal handling for graceful shutdown ---
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.Run(ctx)
		},
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Check once and print whether the recorded version is the latest",
		Flags: append(commonFlags(), &cli.DurationFlag{
			Name:  "timeout",
			Usage: "Give up after this long",
			Value: 30 * time.Second,
		}),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, closer := agent.NewLogger(cfg.Log)
			defer closer.Close()

			a, err := agent.New(cfg, agent.Options{Version: version}, logger.WithField("app", "version-sentinel"))
			if err != nil {
				return fmt.Errorf("initializing agent: %w", err)
			}

			ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
			defer cancel()

			result, err := a.CheckOnce(ctx)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, result)
		},
	}
}

func purgeCommand() *cli.Command {
	return &cli.Command{
		Name:      "purge",
		Usage:     "Delete caches, record a version and reload the client",
		ArgsUsage: "[version]",
		Flags:     commonFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, closer := agent.NewLogger(cfg.Log)
			defer closer.Close()

			a, err := agent.New(cfg, agent.Options{Version: version}, logger.WithField("app", "version-sentinel"))
			if err != nil {
				return fmt.Errorf("initializing agent: %w", err)
			}
			return a.Purge(ctx, cmd.Args().First())
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(_ context.Context, _ *cli.Command) error {
			fmt.Printf("version-sentinel %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}

// loadConfig reads the configuration file (or starts from defaults and the
// environment), then applies command-line overrides and validates.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	var cfg *config.Config
	if path := cmd.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
		cfg = loaded
	} else {
		cfg = &config.Config{}
		config.ApplyDefaults(cfg)
		config.ApplyEnvOverrides(cfg)
	}

	// --- CLI overrides ---
	if v := cmd.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := cmd.String("origin"); v != "" {
		cfg.Poll.Origin = v
	}
	if v := cmd.String("base-path"); v != "" {
		cfg.Poll.BasePath = v
	}
	if v := cmd.String("storage-key"); v != "" {
		cfg.Poll.StorageKey = v
	}
	if cmd.IsSet("server-listen-address") {
		cfg.Server.ListenAddress = cmd.String("server-listen-address")
	}
	if cmd.IsSet("auto") {
		cfg.Poll.Auto = cmd.Bool("auto")
	}
	if cmd.IsSet("duration-ms") {
		cfg.Poll.DurationMS = int(cmd.Int("duration-ms"))
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
