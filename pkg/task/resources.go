package task

import (
	"errors"
	"fmt"
	"sort"

	"github.com/golang/protobuf/proto"
	mesos "github.com/mesos/mesos-go/api/v0/mesosproto"
	"github.com/mesos/mesos-go/api/v0/mesosutil"
)

// ErrUnknownResourceKey is returned when a requirement names a resource
// outside the known scalar/range/set tables.
var ErrUnknownResourceKey = errors.New("unknown resource key in task resources")

// Kind classifies a resource name within a requirement.
type Kind int

const (
	KindUnknown Kind = iota
	KindScalar
	KindRange
	KindSet
)

// Resource kind tables. Scalars carry the type caster applied when the
// value is materialized into a mesos resource.
var (
	scalarKeys = map[string]func(float64) float64{
		"cpus": func(v float64) float64 { return v },
		"mem":  func(v float64) float64 { return float64(int64(v)) },
		"disk": func(v float64) float64 { return float64(int64(v)) },
	}
	rangeKeys = map[string]bool{"ports": true}
	setKeys   = map[string]bool{"disks": true}
)

// PortRange is an inclusive (begin, end) interval.
type PortRange struct {
	Begin uint64 `yaml:"begin"`
	End   uint64 `yaml:"end"`
}

// Requirement describes what a single task consumes, partitioned by
// resource kind.
type Requirement struct {
	Scalars map[string]float64
	Ranges  map[string][]PortRange
	Sets    map[string][]string
}

// ParseRequirement builds a Requirement from the loosely typed mapping a
// config file provides. Scalar values must be numbers, range values lists
// of two-element [begin, end] lists, set values lists of strings. Any key
// outside the known kind tables is a hard error.
func ParseRequirement(raw map[string]interface{}) (*Requirement, error) {
	req := &Requirement{
		Scalars: make(map[string]float64),
		Ranges:  make(map[string][]PortRange),
		Sets:    make(map[string][]string),
	}
	for key, value := range raw {
		switch {
		case scalarKeys[key] != nil:
			v, err := toFloat(value)
			if err != nil {
				return nil, fmt.Errorf("resource %q: %w", key, err)
			}
			req.Scalars[key] = v
		case rangeKeys[key]:
			ranges, err := toRanges(value)
			if err != nil {
				return nil, fmt.Errorf("resource %q: %w", key, err)
			}
			req.Ranges[key] = ranges
		case setKeys[key]:
			items, err := toStrings(value)
			if err != nil {
				return nil, fmt.Errorf("resource %q: %w", key, err)
			}
			req.Sets[key] = items
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownResourceKey, key)
		}
	}
	return req, nil
}

// KindOf reports which kind table a resource name belongs to within this
// requirement, or KindUnknown if the requirement does not mention it.
func (r *Requirement) KindOf(name string) Kind {
	if _, ok := r.Scalars[name]; ok {
		return KindScalar
	}
	if _, ok := r.Ranges[name]; ok {
		return KindRange
	}
	if _, ok := r.Sets[name]; ok {
		return KindSet
	}
	return KindUnknown
}

// Empty reports whether the requirement names no resources at all.
func (r *Requirement) Empty() bool {
	return len(r.Scalars) == 0 && len(r.Ranges) == 0 && len(r.Sets) == 0
}

// Materialize renders the requirement as mesos protocol resources, applying
// each scalar's type caster. Output order is deterministic.
func (r *Requirement) Materialize() ([]*mesos.Resource, error) {
	var resources []*mesos.Resource

	for _, name := range sortedKeys(r.Scalars) {
		cast := scalarKeys[name]
		resources = append(resources, mesosutil.NewScalarResource(name, cast(r.Scalars[name])))
	}
	for _, name := range sortedKeys(r.Ranges) {
		var ranges []*mesos.Value_Range
		for _, pr := range r.Ranges[name] {
			ranges = append(ranges, mesosutil.NewValueRange(pr.Begin, pr.End))
		}
		resources = append(resources, mesosutil.NewRangesResource(name, ranges))
	}
	for _, name := range sortedKeys(r.Sets) {
		resources = append(resources, &mesos.Resource{
			Name: proto.String(name),
			Type: mesos.Value_SET.Enum(),
			Set:  &mesos.Value_Set{Item: r.Sets[name]},
		})
	}
	return resources, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func toRanges(v interface{}) ([]PortRange, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a list of [begin, end] pairs, got %T", v)
	}
	var ranges []PortRange
	for _, item := range list {
		pair, ok := item.([]interface{})
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("expected a [begin, end] pair, got %v", item)
		}
		begin, err := toFloat(pair[0])
		if err != nil {
			return nil, err
		}
		end, err := toFloat(pair[1])
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, PortRange{Begin: uint64(begin), End: uint64(end)})
	}
	return ranges, nil
}

func toStrings(v interface{}) ([]string, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a list of strings, got %T", v)
	}
	var items []string
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", item)
		}
		items = append(items, s)
	}
	return items, nil
}
