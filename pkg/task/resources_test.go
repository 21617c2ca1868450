package task

import (
	"errors"
	"testing"

	mesos "github.com/mesos/mesos-go/api/v0/mesosproto"
)

func TestParseRequirementUnknownKey(t *testing.T) {
	_, err := ParseRequirement(map[string]interface{}{"bogus": 1.0})
	if !errors.Is(err, ErrUnknownResourceKey) {
		t.Errorf("ParseRequirement() error = %v, want ErrUnknownResourceKey", err)
	}
}

func TestParseRequirementKinds(t *testing.T) {
	req, err := ParseRequirement(map[string]interface{}{
		"cpus":  0.5,
		"mem":   128,
		"ports": []interface{}{[]interface{}{20, 34}, []interface{}{35, 35}},
		"disks": []interface{}{"sda1"},
	})
	if err != nil {
		t.Fatalf("ParseRequirement() error: %v", err)
	}

	if req.KindOf("cpus") != KindScalar || req.KindOf("mem") != KindScalar {
		t.Error("cpus and mem should be scalars")
	}
	if req.KindOf("ports") != KindRange {
		t.Error("ports should be a range")
	}
	if req.KindOf("disks") != KindSet {
		t.Error("disks should be a set")
	}
	if req.KindOf("gpus") != KindUnknown {
		t.Error("gpus should be unknown")
	}
	if req.Empty() {
		t.Error("Empty() = true for a populated requirement")
	}
}

func TestMaterializeCastsAndOrders(t *testing.T) {
	req, err := ParseRequirement(map[string]interface{}{
		"cpus":  1.5,
		"mem":   128.9, // cast to int
		"ports": []interface{}{[]interface{}{20, 34}},
		"disks": []interface{}{"sda1", "sdb1"},
	})
	if err != nil {
		t.Fatalf("ParseRequirement() error: %v", err)
	}

	resources, err := req.Materialize()
	if err != nil {
		t.Fatalf("Materialize() error: %v", err)
	}
	if len(resources) != 4 {
		t.Fatalf("Materialize() produced %d resources, want 4", len(resources))
	}

	byName := map[string]*mesos.Resource{}
	for _, r := range resources {
		byName[r.GetName()] = r
	}

	if got := byName["cpus"].GetScalar().GetValue(); got != 1.5 {
		t.Errorf("cpus = %v, want 1.5", got)
	}
	if got := byName["mem"].GetScalar().GetValue(); got != 128 {
		t.Errorf("mem = %v, want 128 (int cast)", got)
	}
	if byName["ports"].GetType() != mesos.Value_RANGES {
		t.Error("ports should materialize as RANGES")
	}
	ranges := byName["ports"].GetRanges().GetRange()
	if len(ranges) != 1 || ranges[0].GetBegin() != 20 || ranges[0].GetEnd() != 34 {
		t.Errorf("ports ranges = %v, want [20,34]", ranges)
	}
	if byName["disks"].GetType() != mesos.Value_SET {
		t.Error("disks should materialize as SET")
	}
	if items := byName["disks"].GetSet().GetItem(); len(items) != 2 {
		t.Errorf("disks items = %v, want 2 entries", items)
	}
}

func TestMaterializeEmpty(t *testing.T) {
	req, err := ParseRequirement(nil)
	if err != nil {
		t.Fatalf("ParseRequirement(nil) error: %v", err)
	}
	if !req.Empty() {
		t.Error("Empty() = false for nil input")
	}
	resources, err := req.Materialize()
	if err != nil {
		t.Fatalf("Materialize() error: %v", err)
	}
	if len(resources) != 0 {
		t.Errorf("Materialize() = %v, want none", resources)
	}
}
