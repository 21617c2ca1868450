package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sailthru/relay-mesos/pkg/task"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "framework", cfg.FrameworkName)
	assert.Equal(t, float64(14400), cfg.FailoverTimeout)
	assert.Equal(t, float64(20), cfg.InitTimeout)
	assert.Equal(t, float64(1), cfg.Delay)
	assert.Equal(t, -1, cfg.MaxFailures)
	assert.Equal(t, "BRIDGE", cfg.DockerNetwork)
}

func TestValidateRequiresMaster(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	assert.True(t, errors.Is(err, ErrMissingMaster), "got %v", err)

	cfg.MesosMaster = "zk://localhost:2181/mesos"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownResource(t *testing.T) {
	cfg := Default()
	cfg.MesosMaster = "127.0.0.1:5050"
	cfg.TaskResources = map[string]interface{}{"quantum_flux": 1}

	err := cfg.Validate()
	assert.True(t, errors.Is(err, task.ErrUnknownResourceKey), "got %v", err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yml")
	content := `
mesos_master: "10.0.0.1:5050"
mesos_framework_name: "scaler"
mesos_checkpoint: true
warmer: "echo W"
cooler: "echo C"
delay: 0.5
max_failures: 5
mesos_task_resources:
  cpus: 0.5
  mem: 256
mesos_environment:
  - name: MODE
    value: auto
volumes:
  - host_path: /data
    container_path: /mnt
    mode: rw
docker_image: busybox
docker_network: HOST
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1:5050", cfg.MesosMaster)
	assert.Equal(t, "scaler", cfg.FrameworkName)
	assert.True(t, cfg.Checkpoint)
	assert.Equal(t, 0.5, cfg.Delay)
	assert.Equal(t, 5, cfg.MaxFailures)
	assert.Equal(t, float64(20), cfg.InitTimeout, "unset fields keep defaults")

	tpl, err := cfg.Template()
	require.NoError(t, err)
	assert.Equal(t, "busybox", tpl.DockerImage)
	assert.Equal(t, "HOST", tpl.DockerNetwork)
	require.Len(t, tpl.Environment, 1)
	assert.Equal(t, "MODE", tpl.Environment[0].Name)
	require.Len(t, tpl.Volumes, 1)
	assert.Equal(t, "/mnt", tpl.Volumes[0].ContainerPath)

	req, err := cfg.Requirement()
	require.NoError(t, err)
	assert.Equal(t, 0.5, req.Scalars["cpus"])
	assert.Equal(t, float64(256), req.Scalars["mem"])
}

func TestIdentityKeyAndRegisteredName(t *testing.T) {
	cfg := Default()
	cfg.FrameworkName = "demo"
	assert.Equal(t, "relay_mesos.framework.demo", cfg.IdentityKey())
	assert.Equal(t, "Relay.Mesos: demo", cfg.RegisteredName())
}

func TestDurations(t *testing.T) {
	cfg := Default()
	cfg.Delay = 0.25
	assert.Equal(t, "250ms", cfg.DelayDuration().String())
	assert.Equal(t, "20s", cfg.InitTimeoutDuration().String())
}
