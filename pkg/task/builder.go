package task

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/golang/protobuf/proto"
	mesos "github.com/mesos/mesos-go/api/v0/mesosproto"
)

var (
	// ErrUndefinedEnvVar is returned when a {VAR} pattern in a command
	// names a variable absent from the process environment.
	ErrUndefinedEnvVar = errors.New("undefined environment variable in command")

	// ErrBadDockerNetwork is returned for a network mode outside
	// HOST, BRIDGE and NONE.
	ErrBadDockerNetwork = errors.New("invalid docker network mode")

	// ErrBadVolumeMode is returned for a volume mode outside RO and RW.
	ErrBadVolumeMode = errors.New("invalid volume mode")
)

var envPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// EnvVar is a single environment variable attached to a launched task.
type EnvVar struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// Volume maps a host path into a task's container.
type Volume struct {
	HostPath      string `yaml:"host_path"`
	ContainerPath string `yaml:"container_path"`
	Mode          string `yaml:"mode"`
}

// Template carries the per-framework-run task settings. It is immutable
// once the coordinator has started.
type Template struct {
	FrameworkName string
	Resources     *Requirement
	URIs          []string
	Environment   []EnvVar
	DockerImage   string
	DockerNetwork string
	ForcePull     bool
	Volumes       []Volume
	DockerParams  map[string]string
}

// NewID composes a task id from a per-offer sequence index, the offer id
// and a 63-bit random component. Unique within a framework instance; no
// cross-instance guarantee.
func NewID(seq int, offerID string) string {
	return fmt.Sprintf("%d.%s.%d", seq, offerID, rand.Int63())
}

// Build constructs the mesos TaskInfo for one task launch. Pure given its
// inputs apart from reading the process environment for {VAR} substitution.
func Build(taskID string, offer *mesos.Offer, command string, tpl *Template) (*mesos.TaskInfo, error) {
	cmd, err := interpolate(command, os.LookupEnv)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("relay.mesos task: %s", taskID)
	if tpl.FrameworkName != "" {
		name = fmt.Sprintf("relay.mesos task: %s: %s", tpl.FrameworkName, taskID)
	}

	resources, err := tpl.Resources.Materialize()
	if err != nil {
		return nil, err
	}

	info := &mesos.TaskInfo{
		Name:      proto.String(name),
		TaskId:    &mesos.TaskID{Value: proto.String(taskID)},
		SlaveId:   offer.GetSlaveId(),
		Resources: resources,
		Command:   commandInfo(cmd, tpl),
	}

	if tpl.DockerImage != "" {
		container, err := containerInfo(tpl)
		if err != nil {
			return nil, err
		}
		info.Container = container
	}
	return info, nil
}

func commandInfo(cmd string, tpl *Template) *mesos.CommandInfo {
	info := &mesos.CommandInfo{Value: proto.String(cmd)}

	for _, uri := range tpl.URIs {
		info.Uris = append(info.Uris, &mesos.CommandInfo_URI{Value: proto.String(uri)})
	}
	if len(tpl.Environment) > 0 {
		env := &mesos.Environment{}
		for _, v := range tpl.Environment {
			env.Variables = append(env.Variables, &mesos.Environment_Variable{
				Name:  proto.String(v.Name),
				Value: proto.String(v.Value),
			})
		}
		info.Environment = env
	}
	return info
}

func containerInfo(tpl *Template) (*mesos.ContainerInfo, error) {
	network, err := dockerNetwork(tpl.DockerNetwork)
	if err != nil {
		return nil, err
	}

	docker := &mesos.ContainerInfo_DockerInfo{
		Image:          proto.String(tpl.DockerImage),
		Network:        network,
		ForcePullImage: proto.Bool(tpl.ForcePull),
	}
	for _, key := range sortedKeys(tpl.DockerParams) {
		docker.Parameters = append(docker.Parameters, &mesos.Parameter{
			Key:   proto.String(key),
			Value: proto.String(tpl.DockerParams[key]),
		})
	}

	container := &mesos.ContainerInfo{
		Type:   mesos.ContainerInfo_DOCKER.Enum(),
		Docker: docker,
	}
	for _, vol := range tpl.Volumes {
		mode, err := volumeMode(vol.Mode)
		if err != nil {
			return nil, err
		}
		container.Volumes = append(container.Volumes, &mesos.Volume{
			HostPath:      proto.String(vol.HostPath),
			ContainerPath: proto.String(vol.ContainerPath),
			Mode:          mode,
		})
	}
	return container, nil
}

func dockerNetwork(mode string) (*mesos.ContainerInfo_DockerInfo_Network, error) {
	switch strings.ToUpper(mode) {
	case "", "BRIDGE":
		return mesos.ContainerInfo_DockerInfo_BRIDGE.Enum(), nil
	case "HOST":
		return mesos.ContainerInfo_DockerInfo_HOST.Enum(), nil
	case "NONE":
		return mesos.ContainerInfo_DockerInfo_NONE.Enum(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadDockerNetwork, mode)
	}
}

func volumeMode(mode string) (*mesos.Volume_Mode, error) {
	switch strings.ToUpper(mode) {
	case "RO":
		return mesos.Volume_RO.Enum(), nil
	case "RW":
		return mesos.Volume_RW.Enum(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadVolumeMode, mode)
	}
}

// interpolate resolves {VAR} patterns against lookup. A pattern naming an
// unset variable is an error; stray braces without a valid name pass
// through untouched.
func interpolate(s string, lookup func(string) (string, bool)) (string, error) {
	var missing []string
	out := envPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[1 : len(match)-1]
		value, ok := lookup(name)
		if !ok {
			missing = append(missing, name)
			return match
		}
		return value
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("%w: %s", ErrUndefinedEnvVar, strings.Join(missing, ", "))
	}
	return out, nil
}
