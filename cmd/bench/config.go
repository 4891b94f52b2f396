package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/xcoin/miner/accel"
)

const (
	defaultDuration   = 2 * time.Second
	defaultMessageLen = 80
	defaultCPU        = false
)

// config defines the configuration options for bench.
type config struct {
	Duration   time.Duration `short:"d" long:"duration"    description:"how long to hash on each tier"`
	MessageLen int           `short:"m" long:"message-len" description:"length of the random message prefix in bytes"`
	Tiers      []accel.Tier  `short:"t" long:"tier"        description:"tier to measure, may be repeated (default: every supported tier)"`
	CPU        bool          `short:"c" long:"cpu"         description:"whether to enable CPU profiling"`
}

// loadConfig initializes and parses the config using command line options.
func loadConfig() (*config, error) {
	// Default config.
	cfg := config{
		Duration:   defaultDuration,
		MessageLen: defaultMessageLen,
		CPU:        defaultCPU,
	}

	// Parse command line options.
	if _, err := flags.Parse(&cfg); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		} else {
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return nil, err
	}

	return &cfg, nil
}

func (c *config) validate() error {
	if c.MessageLen < 0 {
		return fmt.Errorf("message length must not be negative, got %d", c.MessageLen)
	}
	return nil
}
