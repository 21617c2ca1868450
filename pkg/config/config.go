package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sailthru/relay-mesos/pkg/task"
)

// ErrMissingMaster is returned when no mesos master URI is configured.
var ErrMissingMaster = errors.New("mesos_master is required")

// Config is the full configuration surface of a relay-mesos run. Timeouts
// and delays are expressed in seconds, matching the flag and file surface.
type Config struct {
	// Mesos connection and framework identity
	MesosMaster        string  `yaml:"mesos_master"`
	FrameworkName      string  `yaml:"mesos_framework_name"`
	FrameworkPrincipal string  `yaml:"mesos_framework_principal"`
	FrameworkRole      string  `yaml:"mesos_framework_role"`
	Checkpoint         bool    `yaml:"mesos_checkpoint"`
	FailoverTimeout    float64 `yaml:"failover_timeout"`

	// Worker lifecycle
	InitTimeout float64 `yaml:"init_timeout"`
	Delay       float64 `yaml:"delay"`
	MaxFailures int     `yaml:"max_failures"`

	// What to launch
	Warmer           string                 `yaml:"warmer"`
	Cooler           string                 `yaml:"cooler"`
	TaskResources    map[string]interface{} `yaml:"mesos_task_resources"`
	Environment      []task.EnvVar          `yaml:"mesos_environment"`
	URIs             []string               `yaml:"uris"`
	DockerImage      string                 `yaml:"docker_image"`
	DockerNetwork    string                 `yaml:"docker_network"`
	ForcePullImage   bool                   `yaml:"force_pull_image"`
	Volumes          []task.Volume          `yaml:"volumes"`
	DockerParameters map[string]string      `yaml:"docker_parameters"`

	// Controller inputs
	Target        float64 `yaml:"target"`
	MetricCommand string  `yaml:"metric_command"`
	Gain          float64 `yaml:"gain"`

	// Ambient
	DataDir     string `yaml:"data_dir"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogJSON     bool   `yaml:"log_json"`
}

// Default returns a config populated with the documented defaults.
func Default() *Config {
	return &Config{
		FrameworkName:   "framework",
		FailoverTimeout: 14400,
		InitTimeout:     20,
		Delay:           1,
		MaxFailures:     -1,
		DockerNetwork:   "BRIDGE",
		Gain:            1,
		DataDir:         ".",
		LogLevel:        "info",
	}
}

// LoadFile overlays the YAML file at path onto the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the hard requirements. A missing master is fatal;
// everything else has a workable default.
func (c *Config) Validate() error {
	if c.MesosMaster == "" {
		return ErrMissingMaster
	}
	if _, err := c.Requirement(); err != nil {
		return err
	}
	return nil
}

// Requirement parses the configured task resources into their kind tables.
func (c *Config) Requirement() (*task.Requirement, error) {
	return task.ParseRequirement(c.TaskResources)
}

// Template assembles the immutable per-run task template.
func (c *Config) Template() (*task.Template, error) {
	req, err := c.Requirement()
	if err != nil {
		return nil, err
	}
	return &task.Template{
		FrameworkName: c.FrameworkName,
		Resources:     req,
		URIs:          c.URIs,
		Environment:   c.Environment,
		DockerImage:   c.DockerImage,
		DockerNetwork: c.DockerNetwork,
		ForcePull:     c.ForcePullImage,
		Volumes:       c.Volumes,
		DockerParams:  c.DockerParameters,
	}, nil
}

// IdentityKey is the KV store key holding the persisted framework id.
func (c *Config) IdentityKey() string {
	return "relay_mesos.framework." + c.FrameworkName
}

// RegisteredName is the framework name shown in the mesos UI.
func (c *Config) RegisteredName() string {
	return "Relay.Mesos: " + c.FrameworkName
}

func (c *Config) InitTimeoutDuration() time.Duration {
	return time.Duration(c.InitTimeout * float64(time.Second))
}

func (c *Config) DelayDuration() time.Duration {
	return time.Duration(c.Delay * float64(time.Second))
}
