// Package main provides the ting executable: measures the round-trip
// latency between two Tor relays by ratioing the RTTs of three
// client-built circuits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/iowaguy/ting-go/pkg/autoconfig"
	"github.com/iowaguy/ting-go/pkg/circuit"
	"github.com/iowaguy/ting-go/pkg/config"
	"github.com/iowaguy/ting-go/pkg/echoserver"
	"github.com/iowaguy/ting-go/pkg/lifecycle"
	"github.com/iowaguy/ting-go/pkg/logger"
	"github.com/iowaguy/ting-go/pkg/measure"
	"github.com/iowaguy/ting-go/pkg/queue"
	"github.com/iowaguy/ting-go/pkg/results"
	"github.com/iowaguy/ting-go/pkg/tingclient"
	"github.com/iowaguy/ting-go/pkg/tingerr"
	"github.com/iowaguy/ting-go/pkg/tingtype"
	"github.com/iowaguy/ting-go/pkg/torctl"
)

var (
	version   = "0.1.0-dev"
	buildTime = "unknown"
)

func main() {
	relay1 := flag.String("relay1", "", "fingerprint of the first target relay (positional args also accepted)")
	relay2 := flag.String("relay2", "", "fingerprint of the second target relay")
	outputFile := flag.String("output-file", "", "override ResultsDirectory: the directory the daily JSON-lines result files are written to")
	destPort := flag.Int("dest-port", 0, "override the echo responder's destination port (0 = use config)")
	numSamples := flag.Int("num-samples", 0, "override NumSamples (0 = use config)")
	numRepeats := flag.Int("num-repeats", 0, "override NumRepeats (0 = use config)")
	configFile := flag.String("config-file", "./tingrc", "path to the tingrc configuration file")
	inputFile := flag.String("input-file", "", "override InputFile: path to a file of whitespace-separated relay pairs, one per line")
	logLevel := flag.String("log-level", "INFO", "CRITICAL, ERROR, WARNING, INFO, or DEBUG")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ting version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	log := logger.New(level, os.Stdout)
	ctx := logger.WithContext(context.Background(), log)

	cfg := config.DefaultConfig()
	if _, err := os.Stat(*configFile); err == nil {
		if err := config.LoadFromFile(*configFile, cfg); err != nil {
			log.Error("failed to load config file", "error", err)
			os.Exit(1)
		}
	}

	args := flag.Args()
	if len(args) >= 2 {
		*relay1, *relay2 = args[0], args[1]
	}

	if *destPort != 0 {
		cfg.DestinationPort = *destPort
	}
	if *numSamples != 0 {
		cfg.NumSamples = *numSamples
	}
	if *numRepeats != 0 {
		cfg.NumRepeats = *numRepeats
	}
	if *inputFile != "" {
		cfg.InputFile = *inputFile
	}
	if *outputFile != "" {
		cfg.ResultsDirectory = *outputFile
	}

	resolveResultsDirectory(cfg, log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	q, err := buildQueue(cfg, *relay1, *relay2)
	if err != nil {
		log.Error("failed to build job queue", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, q, log); err != nil {
		log.Error("ting exited with error", "error", err)
		os.Exit(1)
	}

	log.Info("shutdown complete")
}

// buildQueue seeds the job queue from a single CLI pair or an input
// file, matching the CLI contract's two non-random seeding modes.
func buildQueue(cfg *config.Config, relay1, relay2 string) (*queue.Queue, error) {
	if relay1 != "" && relay2 != "" {
		return queue.FromPair(tingtype.RelayPair{
			R1: tingtype.Fingerprint(relay1),
			R2: tingtype.Fingerprint(relay2),
		}), nil
	}
	if cfg.InputFile != "" {
		pairs, err := queue.ParsePairsFile(cfg.InputFile)
		if err != nil {
			return nil, err
		}
		return queue.FromPairs(pairs, cfg.NumRepeats), nil
	}
	return nil, tingerr.New(tingerr.KindConfig, "no relay pair given and no InputFile configured")
}

// resolveResultsDirectory replaces the hardcoded default ResultsDirectory
// with a platform-appropriate data directory the first time a run sees
// it unchanged by tingrc or --output-file, creating it (and clearing out
// any stale temp files left by a prior run) along the way. A config that
// already customizes ResultsDirectory is left untouched.
func resolveResultsDirectory(cfg *config.Config, log *logger.Logger) {
	if cfg.ResultsDirectory != config.DefaultConfig().ResultsDirectory {
		return
	}

	dataDir, err := autoconfig.GetDefaultDataDir()
	if err != nil {
		log.Warn("failed to resolve default data directory, using ./results", "error", err)
		return
	}
	if err := autoconfig.EnsureDataDir(dataDir); err != nil {
		log.Warn("failed to create data directory, using ./results", "error", err)
		return
	}
	if err := autoconfig.CleanupTempFiles(dataDir); err != nil {
		log.Debug("failed to clean up stale temp files", "error", err)
	}

	resultsDir, err := autoconfig.EnsureSubDir(dataDir, "results")
	if err != nil {
		log.Warn("failed to create results subdirectory, using ./results", "error", err)
		return
	}
	cfg.ResultsDirectory = resultsDir
}

// run owns the scoped acquisition of every session-level resource: the
// echo responder, the Tor controller session, and the result sink. Each
// is released in reverse acquisition order before run returns, on every
// exit path including SIGINT.
func run(ctx context.Context, cfg *config.Config, q *queue.Queue, log *logger.Logger) error {
	dest := tingtype.Endpoint{Host: cfg.DestinationAddr, Port: uint16(cfg.DestinationPort)}
	echo := echoserver.New(dest, log)
	if err := echo.Listen(); err != nil {
		if !echoserver.IsAddrInUse(err) {
			return err
		}
		log.Warn("configured destination port in use, auto-selecting one instead", "port", cfg.DestinationPort)
		auto, aerr := echoserver.ListenOnFreePort(cfg.DestinationAddr, log)
		if aerr != nil {
			return aerr
		}
		echo = auto
	}
	stopEcho := echo.ServeBackground()
	defer stopEcho()

	controllerAddr := fmt.Sprintf("127.0.0.1:%d", cfg.ControllerPort)
	controller, err := torctl.Dial(ctx, controllerAddr, log)
	if err != nil {
		return err
	}
	defer controller.Close()

	if err := controller.Authenticate(ctx); err != nil {
		return err
	}
	if err := controller.SetConf(ctx, "__DisablePredictedCircuits", "1"); err != nil {
		return err
	}
	if err := controller.SetConf(ctx, "__LeaveStreamsUnattached", "1"); err != nil {
		return err
	}

	sink, err := results.NewSink(cfg.ResultsDirectory)
	if err != nil {
		return err
	}

	circCfg := circuit.Config{
		MaxBuildAttempts: cfg.MaxCircuitBuildAttempts,
		SocksPort:        cfg.SocksPort,
		SocksTimeout:     cfg.SocksTimeout,
	}
	client := tingclient.New(controller, cfg.W, cfg.Z, echo.Endpoint(), circCfg, log)

	driver := measure.New(client, q, sink, cfg.NumSamples, log, notifyOperator(log))

	return lifecycle.Run(ctx, log, lifecycle.DefaultGracePeriod, func(taskCtx context.Context) error {
		return driver.Run(taskCtx)
	})
}

// notifyOperator logs a warning when five consecutive pairs have
// failed. Wiring an outbound channel (email, pager) is left to an
// embedder; this repository's scope stops at the log line.
func notifyOperator(log *logger.Logger) measure.Notifier {
	return func(consecutiveFailures int) {
		log.Warn("consecutive pair failures crossed notification threshold", "count", consecutiveFailures)
	}
}
