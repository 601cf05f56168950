package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-windowagg/flow"
	"github.com/goliatone/go-windowagg/gateway"
	"github.com/goliatone/go-windowagg/runner"
)

// Config holds everything an editor session needs besides its inputs.
type Config struct {
	Editor     EditorConfig     `json:"editor" yaml:"editor"`
	Validation ValidationConfig `json:"validation" yaml:"validation"`
	Gateway    GatewayConfig    `json:"gateway" yaml:"gateway"`
	Retry      RetryConfig      `json:"retry" yaml:"retry"`
	Store      StoreConfig      `json:"store" yaml:"store"`
	Log        LogConfig        `json:"log" yaml:"log"`
}

type EditorConfig struct {
	DefaultParallelism    int    `json:"default_parallelism" yaml:"default_parallelism"`
	TransformStreamPrefix string `json:"transform_stream_prefix" yaml:"transform_stream_prefix"`
	NotifierStreamPrefix  string `json:"notifier_stream_prefix" yaml:"notifier_stream_prefix"`
	RuleName              string `json:"rule_name" yaml:"rule_name"`
	RuleDescription       string `json:"rule_description" yaml:"rule_description"`
}

type ValidationConfig struct {
	// Concurrency bounds concurrent expression checks; 0 means unbounded.
	Concurrency int `json:"concurrency" yaml:"concurrency"`
	CacheSize   int `json:"cache_size" yaml:"cache_size"`
}

type GatewayConfig struct {
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	TopologyID string        `json:"topology_id" yaml:"topology_id"`
	VersionID  string        `json:"version_id" yaml:"version_id"`
	NodeType   string        `json:"node_type" yaml:"node_type"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
}

type RetryConfig struct {
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`
	Base       time.Duration `json:"base" yaml:"base"`
	Factor     float64       `json:"factor" yaml:"factor"`
	Max        time.Duration `json:"max" yaml:"max"`
}

type StoreConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Editor: EditorConfig{
			DefaultParallelism:    1,
			TransformStreamPrefix: "window_transform_stream_",
			NotifierStreamPrefix:  "window_notifier_stream_",
			RuleName:              "window_auto_generated",
			RuleDescription:       "window description auto generated",
		},
		Validation: ValidationConfig{CacheSize: 256},
		Gateway: GatewayConfig{
			BaseURL:  "http://localhost:8080",
			NodeType: "processors",
			Timeout:  30 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries: 2,
			Base:       100 * time.Millisecond,
			Factor:     2,
			Max:        2 * time.Second,
		},
		Store: StoreConfig{DSN: "file::memory:?cache=shared"},
		Log:   LogConfig{Level: "info", Format: "console"},
	}
}

// Parse reads YAML or JSON over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Defaults()
	// yaml can handle JSON too, so a single attempt is fine
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, errors.CategoryBadInput, "failed to parse config").
			WithTextCode("CONFIG_PARSE_FAILED")
	}
	return cfg, cfg.Validate()
}

// Load reads the config file at path. An empty path yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Defaults()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Defaults(), errors.Wrap(err, errors.CategoryBadInput, fmt.Sprintf("failed to read config %s", path)).
			WithTextCode("CONFIG_READ_FAILED")
	}
	return Parse(data)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var problems []string
	if c.Editor.DefaultParallelism < 1 {
		problems = append(problems, "editor.default_parallelism must be at least 1")
	}
	if strings.TrimSpace(c.Editor.TransformStreamPrefix) == "" || strings.TrimSpace(c.Editor.NotifierStreamPrefix) == "" {
		problems = append(problems, "editor stream prefixes are required")
	}
	if c.Editor.TransformStreamPrefix == c.Editor.NotifierStreamPrefix {
		problems = append(problems, "editor stream prefixes must differ")
	}
	if c.Validation.Concurrency < 0 {
		problems = append(problems, "validation.concurrency must not be negative")
	}
	if c.Retry.MaxRetries < 0 {
		problems = append(problems, "retry.max_retries must not be negative")
	}
	if c.Retry.Factor < 1 && c.Retry.Base > 0 {
		problems = append(problems, "retry.factor must be at least 1")
	}
	if c.Gateway.Timeout < 0 {
		problems = append(problems, "gateway.timeout must not be negative")
	}
	if _, ok := flow.ParseLevel(c.Log.Level); !ok && c.Log.Level != "" {
		problems = append(problems, fmt.Sprintf("log.level %q is unknown", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not json or console", c.Log.Format))
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(problems, "; "), errors.CategoryValidation).
		WithTextCode("CONFIG_INVALID").
		WithMetadata(map[string]any{"problems": problems})
}

// RunnerOptions turns the retry settings into runner options. Missing
// entities are never retried.
func (r RetryConfig) RunnerOptions() []runner.Option {
	var strategy runner.RetryStrategy = runner.NoDelayStrategy{}
	if r.Base > 0 {
		strategy = runner.ExponentialBackoffStrategy{
			Base:   r.Base,
			Factor: r.Factor,
			Max:    r.Max,
		}
	}
	return []runner.Option{
		runner.WithMaxRetries(r.MaxRetries),
		runner.WithRetryStrategy(runner.PermanentCodes{
			Strategy: strategy,
			Codes:    []string{gateway.ErrCodeNotFound},
		}),
	}
}

// Logger builds the configured go-logger backed logger.
func (l LogConfig) Logger(out io.Writer) flow.Logger {
	return flow.NewGlogLogger(out, l.Level, l.Format)
}
