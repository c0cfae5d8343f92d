// Package config loads the .boundcheck.yaml project file.
//
// Every field has a default (see Default); the file only needs the keys it changes.
// Command line flags are applied on top of the loaded file by the caller.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lhaig/boundcheck/internal/host"
	"github.com/lhaig/boundcheck/internal/manager"
	"github.com/lhaig/boundcheck/internal/verify"
)

// FileName is the name of the project configuration file
const FileName = ".boundcheck.yaml"

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete project configuration
type Config struct {
	Verify    VerifyConfig    `yaml:"verify"`
	Solver    SolverConfig    `yaml:"solver"`
	Manager   ManagerConfig   `yaml:"manager"`
	Worker    WorkerConfig    `yaml:"worker"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// VerifyConfig bounds the exploration of each class
type VerifyConfig struct {
	MaxDepth          int `yaml:"max_depth" validate:"gte=0,lte=8"`
	MaxCallDepth      int `yaml:"max_call_depth" validate:"gte=0,lte=32"`
	MaxLoopUnroll     int `yaml:"max_loop_unroll" validate:"gte=0,lte=64"`
	MaxReferenceDepth int `yaml:"max_reference_depth" validate:"gte=0,lte=8"`
}

// SolverConfig locates z3. An empty path searches PATH.
type SolverConfig struct {
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// ManagerConfig controls scheduling in the model manager
type ManagerConfig struct {
	Mode          string        `yaml:"mode" validate:"oneof=automatic manual"`
	QueueSize     int           `yaml:"queue_size" validate:"gt=0"`
	BatchSize     int           `yaml:"batch_size" validate:"gt=0"`
	VerifyTimeout time.Duration `yaml:"verify_timeout" validate:"gt=0"`
}

// WorkerConfig selects out-of-process verification. When Enabled is false classes are
// verified inside the calling process.
type WorkerConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Path          string        `yaml:"path" validate:"required_if=Enabled true"`
	Capacity      int           `yaml:"capacity" validate:"gte=4096,multiple4"`
	StartTimeout  time.Duration `yaml:"start_timeout" validate:"gt=0"`
	PollInterval  time.Duration `yaml:"poll_interval" validate:"gt=0"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" validate:"gt=0"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace" validate:"gte=0"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// TelemetryConfig selects exporters. MetricsAddr, when set, serves /metrics.
type TelemetryConfig struct {
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=prometheus stdout none"`
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=stdout none"`
	MetricsAddr    string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

// Default returns the configuration used when no file is present
func Default() Config {
	bounds := verify.DefaultConfig()
	return Config{
		Verify: VerifyConfig{
			MaxDepth:          bounds.MaxDepth,
			MaxCallDepth:      bounds.MaxCallDepth,
			MaxLoopUnroll:     bounds.MaxLoopUnroll,
			MaxReferenceDepth: bounds.MaxReferenceDepth,
		},
		Solver: SolverConfig{
			Timeout: 30 * time.Second,
		},
		Manager: ManagerConfig{
			Mode:          manager.Automatic.String(),
			QueueSize:     256,
			BatchSize:     8,
			VerifyTimeout: 5 * time.Minute,
		},
		Worker: WorkerConfig{
			Path:          "boundcheck-worker",
			Capacity:      1 << 20,
			StartTimeout:  10 * time.Second,
			PollInterval:  10 * time.Millisecond,
			IdleTimeout:   2 * time.Minute,
			ShutdownGrace: 5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			MetricExporter: "none",
			TraceExporter:  "none",
		},
	}
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("multiple4", func(fl validator.FieldLevel) bool {
		return fl.Field().Int()%4 == 0
	})
}

// Validate checks every field against its constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Load reads the file at path on top of the defaults and validates the result
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads YAML from r on top of the defaults. Unknown keys are an error.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Find returns the nearest FileName in dir or one of its parents, or "" when there
// is none
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Bounds returns the verifier bounds
func (v VerifyConfig) Bounds() verify.Config {
	return verify.Config{
		MaxDepth:          v.MaxDepth,
		MaxCallDepth:      v.MaxCallDepth,
		MaxLoopUnroll:     v.MaxLoopUnroll,
		MaxReferenceDepth: v.MaxReferenceDepth,
	}
}

// ParseMode converts a configured mode name
func ParseMode(s string) (manager.Mode, error) {
	switch s {
	case "automatic", "":
		return manager.Automatic, nil
	case "manual":
		return manager.Manual, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalid, s)
	}
}

// Options returns the model manager options
func (m ManagerConfig) Options(logger *zap.Logger) (manager.Options, error) {
	mode, err := ParseMode(m.Mode)
	if err != nil {
		return manager.Options{}, err
	}
	return manager.Options{
		Mode:      mode,
		QueueSize: m.QueueSize,
		BatchSize: m.BatchSize,
		Logger:    logger,
	}, nil
}

// HostOptions returns the worker client options. Channel files are created in dir.
func (w WorkerConfig) HostOptions(dir string, args []string, logger *zap.Logger) host.Options {
	return host.Options{
		WorkerPath:    w.Path,
		WorkerArgs:    args,
		Dir:           dir,
		Capacity:      w.Capacity,
		StartTimeout:  w.StartTimeout,
		PollInterval:  w.PollInterval,
		IdleTimeout:   w.IdleTimeout,
		ShutdownGrace: w.ShutdownGrace,
		Logger:        logger,
	}
}
