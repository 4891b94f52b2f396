package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xcoin/miner/config"
	"github.com/xcoin/miner/logging"
	"github.com/xcoin/miner/miner"
)

// Miner binary version.
// It should be passed during the build with '-ldflags "-X main.version="'.
var version = "unknown"

// errNotFound is returned when the deadline passed without a qualifying nonce.
var errNotFound = errors.New("no nonce found before the deadline")

// minerMain is the true entry point for the miner. This function is required
// since defers created in the top-level scope of a main method aren't executed
// if os.Exit() is called.
func minerMain() error {
	var err error
	// Start with a default Config with sane settings
	cfg := config.DefaultConfig()
	// Pre-parse the command line to check for an alternative Config file
	cfg, err = config.ParseFlags(cfg)
	if err != nil {
		return err
	}
	// Load configuration file overwriting defaults with any specified options
	cfg, err = config.ReadConfigFile(cfg)
	if err != nil {
		return err
	}

	cfg, err = config.SetupConfig(cfg)
	if err != nil {
		return err
	}
	// Finally, parse the remaining command line options again to ensure
	// they take precedence.
	cfg, err = config.ParseFlags(cfg)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	// Initialize logging
	logLevel := zap.InfoLevel
	if cfg.DebugLog {
		logLevel = zap.DebugLevel
	}
	logger := logging.New(
		logLevel,
		filepath.Join(cfg.LogDir, "miner.log"),
		cfg.JSONLog,
		logging.WithRotation(cfg.MaxLogFiles, cfg.MaxLogFileSize),
	)
	defer func() { _ = logger.Sync() }()
	ctx := logging.NewContext(context.Background(), logger)

	logger.Info("starting miner", zap.String("version", version), zap.Object("search", cfg.Search))

	// Disable go default unbounded memory profiler.
	runtime.MemProfileRate = 0

	if cfg.CPUProfile != "" {
		f, err := os.Create(cfg.CPUProfile)
		if err != nil {
			logger.With(zap.Error(err)).Error("could not create CPU profile")
		} else {
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				logger.With(zap.Error(err)).Error("could not start CPU profile")
			}
			defer pprof.StopCPUProfile()
		}
	}

	if cfg.MetricsPort != nil {
		addr := net.JoinHostPort("", strconv.Itoa(int(*cfg.MetricsPort)))
		logger.Info("serving metrics", zap.String("address", addr))
		srv := &http.Server{
			Addr:              addr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	m, err := miner.New(
		miner.WithWorkers(cfg.Search.Threads),
		miner.WithCheckInterval(cfg.Search.CheckInterval),
		miner.WithReportInterval(cfg.Search.ReportInterval),
	)
	if err != nil {
		return err
	}

	sol, err := m.Search(ctx, miner.Request{
		Message:    cfg.Search.Payload(),
		Difficulty: cfg.Search.Difficulty.Int,
		Preferred:  cfg.Search.Accel,
		Deadline:   cfg.Search.DeadlineAt(time.Now()),
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if sol == nil {
		return errNotFound
	}

	fmt.Printf("digest:  %x\n", sol.Digest)
	fmt.Printf("nonce:   %d\n", sol.Nonce)
	fmt.Printf("elapsed: %f\n", sol.Elapsed.Seconds())
	fmt.Printf("workers: %d\n", sol.Workers)
	fmt.Printf("tier:    %s\n", sol.Tier)
	return nil
}

func main() {
	// Call the "real" main in a nested manner so the defers will properly
	// be executed in the case of a graceful shutdown.
	if err := minerMain(); err != nil {
		// If it's the flag utility error don't print it,
		// because it was already printed.
		var flagsErr *flags.Error
		switch {
		case errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp:
			os.Exit(0)
		case errors.As(err, &flagsErr):
		default:
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
		if errors.Is(err, errNotFound) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
