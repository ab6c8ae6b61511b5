package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"seminarcal/internal/config"
	appLog "seminarcal/internal/log"
	"seminarcal/internal/pipeline"
	"seminarcal/internal/scheduler"
)

type flagConfig struct {
	configPath  string
	daemon      bool
	dryRun      bool
	verbose     bool
	writeConfig bool
}

func main() {
	flags := parseFlags()
	if flags.verbose {
		appLog.SetLevel(appLog.LevelDebug)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// Bootstrap path: materialize the effective config (defaults, file and
	// env merged) so a first-time setup has a file to edit.
	if flags.writeConfig {
		if err := config.Save(flags.configPath, conf); err != nil {
			appLog.Error("failed to write config", err, "config_path", flags.configPath)
			os.Exit(1)
		}
		appLog.Info("config written", "config_path", flags.configPath)
		return
	}

	if err := conf.Validate(!flags.dryRun); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"url", conf.Source.URL,
		"fetch_mode", conf.Source.FetchMode,
		"timezone", conf.Timezone,
		"state_file", conf.StateFile,
		"recipients", len(conf.Mail.To),
		"daemon", flags.daemon,
		"dry_run", flags.dryRun,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	deps := pipeline.New(conf)

	if flags.daemon {
		sched, err := scheduler.New(conf, deps)
		if err != nil {
			appLog.Error("failed to init scheduler", err)
			os.Exit(1)
		}
		if err := sched.Start(ctx); err != nil {
			appLog.Error("scheduler failed", err)
			os.Exit(1)
		}
		return
	}

	sum, err := pipeline.Run(ctx, conf, deps, flags.dryRun)
	if err != nil {
		appLog.Error("run failed", err, "stage", pipeline.StageOf(err))
		os.Exit(1)
	}
	appLog.Info("done",
		"parsed", sum.Parsed,
		"skipped_rows", sum.SkippedRows,
		"selected", sum.Selected,
		"sent", sum.Sent,
		"committed", sum.Committed,
	)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.BoolVar(&cfg.daemon, "daemon", false, "Run on the configured cron schedule instead of once")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "Build the notification but do not send or commit state")
	flag.BoolVar(&cfg.verbose, "verbose", false, "Enable debug logging")
	flag.BoolVar(&cfg.writeConfig, "write-config", false, "Write the effective config to the config path and exit")

	flag.Parse()

	return cfg
}
