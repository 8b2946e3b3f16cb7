// Package config loads the pipeline configuration file: a run section with
// deployment settings and one section per stage.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"go-ml-pipeline/internal/artifacts"
	"go-ml-pipeline/internal/env"
	"go-ml-pipeline/internal/model"
)

// Error aggregates configuration issues
type Error struct {
	Issues []string
}

func (e *Error) Error() string {
	if len(e.Issues) == 0 {
		return "config validation failed"
	}
	return "config validation failed: " + strings.Join(e.Issues, "; ")
}

func (e *Error) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Issues = append(e.Issues, issue)
}

func (e *Error) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}

// RunConfig holds deployment settings shared by every stage
type RunConfig struct {
	Name         string                 `yaml:"name"`
	ArtifactsDir string                 `yaml:"artifacts_dir"`
	LogsDir      string                 `yaml:"logs_dir"`
	LogLevel     string                 `yaml:"log_level"`
	LogStdout    bool                   `yaml:"log_stdout"`
	Database     string                 `yaml:"database"` // sqlite file path or postgres:// DSN; empty disables run tracking
	ObjectStore  *artifacts.MinIOConfig `yaml:"object_store,omitempty"`
	DataDir      string                 `yaml:"data_dir"` // root for file paths in configs submitted over HTTP
}

// Config is the whole configuration file
type Config struct {
	Run                RunConfig `yaml:"run"`
	model.StagesConfig `yaml:",inline"`
}

// Default returns the values applied before the file is decoded
func Default() Config {
	return Config{
		Run: RunConfig{
			Name:         "default",
			ArtifactsDir: "artifacts",
			LogsDir:      "logs",
			LogLevel:     "info",
			DataDir:      "data",
		},
		StagesConfig: model.DefaultStagesConfig(),
	}
}

// Load reads and validates a config file and applies PIPELINE_* environment
// overrides. Relative source and data paths stay relative to the working
// directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown keys
// are rejected. The environment is not consulted, so a config submitted by a
// client keeps exactly the values it carries.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadRun returns the run section for a server process. An empty path starts
// from the defaults. Stage sections in the file are decoded but not validated.
func LoadRun(path string) (RunConfig, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return RunConfig{}, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = decode(data); err != nil {
			return RunConfig{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	run := cfg.Run
	if err := run.applyEnv(); err != nil {
		return RunConfig{}, err
	}
	issues := &Error{}
	run.validate(issues)
	if err := issues.OrNil(); err != nil {
		return RunConfig{}, err
	}
	return run, nil
}

func decode(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Ingestion.Source = env.String("PIPELINE_SOURCE", c.Ingestion.Source)
	return c.Run.applyEnv()
}

func (r *RunConfig) applyEnv() error {
	r.Name = env.String("PIPELINE_NAME", r.Name)
	r.ArtifactsDir = env.String("PIPELINE_ARTIFACTS_DIR", r.ArtifactsDir)
	r.LogsDir = env.String("PIPELINE_LOGS_DIR", r.LogsDir)
	r.LogLevel = env.String("PIPELINE_LOG_LEVEL", r.LogLevel)
	r.Database = env.String("PIPELINE_DATABASE_URL", r.Database)
	r.DataDir = env.String("PIPELINE_DATA_DIR", r.DataDir)

	logStdout, err := env.Bool("PIPELINE_LOG_STDOUT", r.LogStdout)
	if err != nil {
		return err
	}
	r.LogStdout = logStdout

	if endpoint := env.String("PIPELINE_MINIO_ENDPOINT", ""); endpoint != "" || r.ObjectStore != nil {
		store := artifacts.MinIOConfig{Region: "us-east-1", Bucket: "artifacts"}
		if r.ObjectStore != nil {
			store = *r.ObjectStore
		}
		useSSL, err := env.Bool("PIPELINE_MINIO_USE_SSL", store.UseSSL)
		if err != nil {
			return err
		}
		store.Endpoint = env.String("PIPELINE_MINIO_ENDPOINT", store.Endpoint)
		store.AccessKey = env.String("PIPELINE_MINIO_ACCESS_KEY", store.AccessKey)
		store.SecretKey = env.String("PIPELINE_MINIO_SECRET_KEY", store.SecretKey)
		store.Region = env.String("PIPELINE_MINIO_REGION", store.Region)
		store.Bucket = env.String("PIPELINE_MINIO_BUCKET", store.Bucket)
		store.UseSSL = useSSL
		r.ObjectStore = &store
	}
	return nil
}

// Validate checks the run section and every stage section
func (c Config) Validate() error {
	issues := &Error{}
	c.Run.validate(issues)
	for _, stage := range model.StageOrder {
		section, _ := c.For(stage)
		if err := section.Validate(); err != nil {
			issues.Add(err.Error())
		}
	}
	return issues.OrNil()
}

func (r RunConfig) validate(issues *Error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		issues.Add("run.name is required")
	} else if filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		issues.Add(fmt.Sprintf("run.name %q must be a plain directory name", name))
	}
	if r.ObjectStore == nil && strings.TrimSpace(r.ArtifactsDir) == "" {
		issues.Add("run.artifacts_dir is required without an object store")
	}
	if strings.TrimSpace(r.LogsDir) == "" {
		issues.Add("run.logs_dir is required")
	}
	switch strings.ToLower(r.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		issues.Add(fmt.Sprintf("run.log_level %q unsupported (debug, info, warn, error)", r.LogLevel))
	}
	if r.ObjectStore != nil {
		if err := r.ObjectStore.Validate(); err != nil {
			issues.Add("run.object_store: " + err.Error())
		}
	}
}
