// Package config loads the miner's options from the command line and an
// optional ini file.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jessevdk/go-flags"
	"go.uber.org/zap/zapcore"

	"github.com/xcoin/miner/accel"
	"github.com/xcoin/miner/miner"
	"github.com/xcoin/miner/shared"
)

const (
	defaultLogDirname     = "logs"
	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10

	defaultTimeout        = 30 * time.Second
	defaultReportInterval = 5 * time.Second

	// Latest accepted --deadline, in unix seconds.
	maxDeadline = 1 << 40
)

var errMessageConflict = errors.New("--message and --message-hex are mutually exclusive")

// Config defines the configuration options for the miner.
type Config struct {
	MinerDir       string  `long:"minerdir"       description:"The base directory for the miner's logs and profiles"`
	ConfigFile     string  `long:"configfile"     description:"Path to configuration file"                              short:"c"`
	LogDir         string  `long:"logdir"         description:"Directory to log output"`
	DebugLog       bool    `long:"debuglog"       description:"Enable debug logs"`
	JSONLog        bool    `long:"jsonlog"        description:"Whether to log in JSON format"`
	MaxLogFiles    int     `long:"maxlogfiles"    description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int     `long:"maxlogfilesize" description:"Maximum logfile size in MB"`
	MetricsPort    *uint16 `long:"metrics-port"   description:"The port to expose metrics"`
	CPUProfile     string  `long:"cpuprofile"     description:"Write CPU profile to the specified file"`

	Search SearchConfig `group:"Search"`
}

type SearchConfig struct {
	Message        string        `long:"message"         description:"Message the nonce is appended to"`
	MessageHex     HexBytes      `long:"message-hex"     description:"Message as hex, instead of --message"`
	Difficulty     Difficulty    `long:"difficulty"      description:"Difficulty as decimal, 0x-prefixed hex or a power such as 1e30"`
	Accel          accel.Tier    `long:"accel"           description:"Preferred acceleration tier (avx512, sha, avx2, avx, sse, none)"`
	Timeout        time.Duration `long:"timeout"         description:"Give up after this long"`
	Deadline       float64       `long:"deadline"        description:"Give up at this unix time in seconds, overrides --timeout"`
	Threads        int           `long:"threads"         description:"Number of workers (0 for one per hardware thread)"`
	CheckInterval  uint64        `long:"check-interval"  description:"Hashes between cancellation checks in each worker"`
	ReportInterval time.Duration `long:"report-interval" description:"How often to log the hash rate (0 to disable)"`
}

// Payload is the message bytes to search over.
func (c *SearchConfig) Payload() []byte {
	if len(c.MessageHex) > 0 {
		return c.MessageHex
	}
	return []byte(c.Message)
}

// DeadlineAt is the absolute deadline of a search started at now.
func (c *SearchConfig) DeadlineAt(now time.Time) time.Time {
	if c.Deadline > 0 {
		return miner.DeadlineFromUnix(c.Deadline)
	}
	return now.Add(c.Timeout)
}

// implement zap.ObjectMarshaler interface.
func (c SearchConfig) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("message-len", len(c.Payload()))
	enc.AddString("difficulty", c.Difficulty.String())
	enc.AddString("accel", c.Accel.String())
	if c.Deadline > 0 {
		enc.AddFloat64("deadline", c.Deadline)
	} else {
		enc.AddDuration("timeout", c.Timeout)
	}
	enc.AddInt("threads", c.Threads)
	enc.AddUint64("check-interval", c.CheckInterval)
	return nil
}

// Difficulty is a flag value holding an arbitrary precision difficulty.
type Difficulty struct {
	*big.Int
}

// UnmarshalFlag implements flags.Unmarshaler.
func (d *Difficulty) UnmarshalFlag(value string) error {
	v, err := shared.ParseDifficulty(value)
	if err != nil {
		return err
	}
	d.Int = v
	return nil
}

// MarshalFlag implements flags.Marshaler.
func (d Difficulty) MarshalFlag() (string, error) {
	return d.String(), nil
}

func (d Difficulty) String() string {
	if d.Int == nil {
		return ""
	}
	return d.Int.String()
}

type HexBytes []byte

// UnmarshalFlag implements flags.Unmarshaler.
func (h *HexBytes) UnmarshalFlag(value string) error {
	value = strings.TrimPrefix(strings.TrimPrefix(value, "0x"), "0X")
	b, err := hex.DecodeString(value)
	if err != nil {
		return fmt.Errorf("invalid hex message: %w", err)
	}
	*h = b
	return nil
}

// MarshalFlag implements flags.Marshaler.
func (h HexBytes) MarshalFlag() (string, error) {
	return hex.EncodeToString(h), nil
}

// DefaultConfig returns a config with default hardcoded values.
func DefaultConfig() *Config {
	minerDir := "./miner"
	cacheDir, err := os.UserCacheDir()
	if err == nil {
		minerDir = filepath.Join(cacheDir, "miner")
	}

	return &Config{
		MinerDir:       minerDir,
		LogDir:         filepath.Join(minerDir, defaultLogDirname),
		MaxLogFiles:    defaultMaxLogFiles,
		MaxLogFileSize: defaultMaxLogFileSize,
		Search: SearchConfig{
			Accel:          accel.AVX512,
			Timeout:        defaultTimeout,
			CheckInterval:  miner.DefaultCheckInterval,
			ReportInterval: defaultReportInterval,
		},
	}
}

// ParseFlags reads values from command line arguments.
func ParseFlags(preCfg *Config) (*Config, error) {
	if _, err := flags.Parse(preCfg); err != nil {
		return nil, err
	}
	return preCfg, nil
}

// ReadConfigFile reads config from an ini file.
// It uses the provided `cfg` as a base config and overrides it with the values
// from the config file.
func ReadConfigFile(cfg *Config) (*Config, error) {
	if cfg.ConfigFile == "" {
		return cfg, nil
	}
	if err := flags.IniParse(cfg.ConfigFile, cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from %v: %w", cfg.ConfigFile, err)
	}

	return cfg, nil
}

// SetupConfig expands paths and creates the log directory.
func SetupConfig(cfg *Config) (*Config, error) {
	// Files that live under a non-default miner directory follow it.
	defaultCfg := DefaultConfig()
	if cfg.MinerDir != defaultCfg.MinerDir && cfg.LogDir == defaultCfg.LogDir {
		cfg.LogDir = filepath.Join(cfg.MinerDir, defaultLogDirname)
	}

	cfg.MinerDir = cleanAndExpandPath(cfg.MinerDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.CPUProfile = cleanAndExpandPath(cfg.CPUProfile)

	if err := os.MkdirAll(cfg.LogDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create %v: %w", cfg.LogDir, err)
	}
	return cfg, nil
}

// Validate reports every problem with cfg at once.
func Validate(cfg *Config) error {
	var result *multierror.Error
	s := &cfg.Search

	if s.Message != "" && len(s.MessageHex) > 0 {
		result = multierror.Append(result, errMessageConflict)
	}
	if s.Difficulty.Int == nil {
		result = multierror.Append(result, fmt.Errorf("%w: --difficulty is required", shared.ErrInvalidDifficulty))
	} else if s.Difficulty.Sign() <= 0 {
		result = multierror.Append(result, fmt.Errorf("%w: must be positive, got %v", shared.ErrInvalidDifficulty, s.Difficulty))
	}
	if s.Deadline < 0 || s.Deadline > maxDeadline || math.IsNaN(s.Deadline) {
		result = multierror.Append(result, fmt.Errorf("deadline must be a unix time between 0 and %d, got %v", maxDeadline, s.Deadline))
	}
	if s.Timeout < 0 {
		result = multierror.Append(result, fmt.Errorf("timeout must not be negative, got %v", s.Timeout))
	}
	if s.Threads < 0 {
		result = multierror.Append(result, fmt.Errorf("threads must not be negative, got %d", s.Threads))
	}
	if s.CheckInterval == 0 {
		result = multierror.Append(result, errors.New("check interval must be positive"))
	}
	if cfg.MaxLogFiles < 0 {
		result = multierror.Append(result, fmt.Errorf("maxlogfiles must not be negative, got %d", cfg.MaxLogFiles))
	}
	if cfg.MaxLogFileSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("maxlogfilesize must be positive, got %d", cfg.MaxLogFileSize))
	}
	return result.ErrorOrNil()
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		user, err := user.Current()
		if err == nil {
			homeDir = user.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
