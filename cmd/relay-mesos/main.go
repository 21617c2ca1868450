package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sailthru/relay-mesos/pkg/config"
	"github.com/sailthru/relay-mesos/pkg/controller"
	"github.com/sailthru/relay-mesos/pkg/coordinator"
	"github.com/sailthru/relay-mesos/pkg/kv"
	"github.com/sailthru/relay-mesos/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "relay-mesos",
	Short: "Relay-Mesos - autoscale a bash command on a Mesos cluster",
	Long: `Relay-Mesos registers as a Mesos framework and launches warmer or
cooler tasks to drive a metric toward its target. A feedback controller
decides how many tasks to run; resource offers decide where they run.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"relay-mesos version %s\nCommit: %s\n", Version, Commit,
	))
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.String("config", "", "path to a YAML config file")
	flags.String("master", "", "mesos master URI (required)")
	flags.String("framework-name", "", "framework name shown in the UI and task names")
	flags.String("principal", "", "framework principal")
	flags.String("role", "", "framework role")
	flags.Bool("checkpoint", false, "enable framework checkpointing")
	flags.Float64("failover-timeout", 0, "master-side failover grace window in seconds")
	flags.Float64("init-timeout", 0, "worker ready-signal wait bound in seconds")
	flags.Float64("delay", 0, "controller tick interval in seconds")
	flags.String("warmer", "", "bash command expected to raise the metric")
	flags.String("cooler", "", "bash command expected to lower the metric")
	flags.Float64("cpus", 0, "cpus each task consumes")
	flags.Float64("mem", 0, "memory in MB each task consumes")
	flags.String("docker-image", "", "docker image to run tasks in")
	flags.Int("max-failures", 0, "stop after this many net task failures (-1 disables)")
	flags.Float64("target", 0, "constant target value for the controller")
	flags.String("metric-command", "", "shell command printing the current metric value")
	flags.Float64("gain", 0, "proportional gain of the default controller")
	flags.String("data-dir", "", "directory for the local framework identity store")
	flags.String("metrics-addr", "", "address for the /metrics listener (empty disables)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.Bool("log-json", false, "emit JSON logs")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the framework against a Mesos master",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.LogLevel),
			JSONOutput: cfg.LogJSON,
		})

		store, err := kv.NewBoltStore(filepath.Join(cfg.DataDir, "relay-mesos.db"))
		if err != nil {
			return err
		}
		defer store.Close()

		coord := coordinator.New(cfg, store)
		err = coord.Run(metricSource(cfg), controller.Constant(cfg.Target))
		if err != nil {
			log.Errorf("framework terminated", err)
			os.Exit(1)
		}
		return nil
	},
}

// loadConfig overlays command-line flags onto the config file (or the
// defaults when no file is given).
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	cfg := config.Default()
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	setString := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	setFloat := func(name string, dst *float64) {
		if flags.Changed(name) {
			*dst, _ = flags.GetFloat64(name)
		}
	}
	setBool := func(name string, dst *bool) {
		if flags.Changed(name) {
			*dst, _ = flags.GetBool(name)
		}
	}

	setString("master", &cfg.MesosMaster)
	setString("framework-name", &cfg.FrameworkName)
	setString("principal", &cfg.FrameworkPrincipal)
	setString("role", &cfg.FrameworkRole)
	setBool("checkpoint", &cfg.Checkpoint)
	setFloat("failover-timeout", &cfg.FailoverTimeout)
	setFloat("init-timeout", &cfg.InitTimeout)
	setFloat("delay", &cfg.Delay)
	setString("warmer", &cfg.Warmer)
	setString("cooler", &cfg.Cooler)
	setString("docker-image", &cfg.DockerImage)
	setFloat("target", &cfg.Target)
	setString("metric-command", &cfg.MetricCommand)
	setFloat("gain", &cfg.Gain)
	setString("data-dir", &cfg.DataDir)
	setString("metrics-addr", &cfg.MetricsAddr)
	setString("log-level", &cfg.LogLevel)
	setBool("log-json", &cfg.LogJSON)
	if flags.Changed("max-failures") {
		cfg.MaxFailures, _ = flags.GetInt("max-failures")
	}
	if flags.Changed("cpus") || flags.Changed("mem") {
		if cfg.TaskResources == nil {
			cfg.TaskResources = make(map[string]interface{})
		}
		if flags.Changed("cpus") {
			cfg.TaskResources["cpus"], _ = flags.GetFloat64("cpus")
		}
		if flags.Changed("mem") {
			cfg.TaskResources["mem"], _ = flags.GetFloat64("mem")
		}
	}
	return cfg, nil
}

// metricSource builds the controller's metric input. With no
// metric-command configured the source fails every pull, which the loop
// logs and skips; the framework still serves as a manual scaler via the
// warmer/cooler commands.
func metricSource(cfg *config.Config) controller.Source {
	if cfg.MetricCommand == "" {
		return controller.SourceFunc(func() (float64, error) {
			return 0, errors.New("no metric_command configured")
		})
	}
	return controller.SourceFunc(func() (float64, error) {
		out, err := exec.Command("sh", "-c", cfg.MetricCommand).Output()
		if err != nil {
			return 0, fmt.Errorf("metric command failed: %w", err)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
		if err != nil {
			return 0, fmt.Errorf("metric command output is not a number: %w", err)
		}
		return value, nil
	})
}
