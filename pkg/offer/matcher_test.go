package offer

import (
	"errors"
	"testing"

	"github.com/golang/protobuf/proto"
	mesos "github.com/mesos/mesos-go/api/v0/mesosproto"
	"github.com/mesos/mesos-go/api/v0/mesosutil"

	"github.com/sailthru/relay-mesos/pkg/task"
)

func makeOffer(id string, resources ...*mesos.Resource) *mesos.Offer {
	return &mesos.Offer{
		Id:        &mesos.OfferID{Value: proto.String(id)},
		SlaveId:   &mesos.SlaveID{Value: proto.String("slave-" + id)},
		Hostname:  proto.String("host-" + id),
		Resources: resources,
	}
}

func requirement(t *testing.T, raw map[string]interface{}) *task.Requirement {
	t.Helper()
	req, err := task.ParseRequirement(raw)
	if err != nil {
		t.Fatalf("ParseRequirement() error: %v", err)
	}
	return req
}

func TestTasksPerOffer(t *testing.T) {
	tests := []struct {
		name  string
		offer *mesos.Offer
		req   map[string]interface{}
		want  int
	}{
		{
			name: "exact fit",
			offer: makeOffer("o1",
				mesosutil.NewScalarResource("cpus", 1),
				mesosutil.NewScalarResource("mem", 128),
			),
			req:  map[string]interface{}{"cpus": 1.0, "mem": 128},
			want: 1,
		},
		{
			name: "narrowest resource wins",
			offer: makeOffer("o2",
				mesosutil.NewScalarResource("cpus", 4),
				mesosutil.NewScalarResource("mem", 384),
			),
			req:  map[string]interface{}{"cpus": 1.0, "mem": 128},
			want: 3,
		},
		{
			name: "one scalar short zeroes the offer",
			offer: makeOffer("o3",
				mesosutil.NewScalarResource("cpus", 10),
				mesosutil.NewScalarResource("mem", 64),
			),
			req:  map[string]interface{}{"cpus": 1.0, "mem": 128},
			want: 0,
		},
		{
			name: "no relevant resources",
			offer: makeOffer("o4",
				mesosutil.NewScalarResource("gpus", 2),
			),
			req:  map[string]interface{}{"cpus": 1.0},
			want: 0,
		},
		{
			name:  "empty offer",
			offer: makeOffer("o5"),
			req:   map[string]interface{}{"cpus": 1.0},
			want:  0,
		},
		{
			name: "fractional cpus",
			offer: makeOffer("o6",
				mesosutil.NewScalarResource("cpus", 1),
			),
			req:  map[string]interface{}{"cpus": 0.4},
			want: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TasksPerOffer(tt.offer, requirement(t, tt.req))
			if err != nil {
				t.Fatalf("TasksPerOffer() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("TasksPerOffer() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTasksPerOfferMultipleTasks(t *testing.T) {
	// cpus 4 / 1 = 4, mem 512 / 128 = 4
	o := makeOffer("o",
		mesosutil.NewScalarResource("cpus", 4),
		mesosutil.NewScalarResource("mem", 512),
	)
	got, err := TasksPerOffer(o, requirement(t, map[string]interface{}{"cpus": 1.0, "mem": 128}))
	if err != nil {
		t.Fatalf("TasksPerOffer() error: %v", err)
	}
	if got != 4 {
		t.Errorf("TasksPerOffer() = %d, want 4", got)
	}
}

func TestTasksPerOfferRangeUnsupported(t *testing.T) {
	o := makeOffer("o",
		mesosutil.NewRangesResource("ports", []*mesos.Value_Range{mesosutil.NewValueRange(30000, 31000)}),
	)
	req := requirement(t, map[string]interface{}{
		"ports": []interface{}{[]interface{}{20, 34}},
	})
	_, err := TasksPerOffer(o, req)
	if !errors.Is(err, ErrUnsupportedResource) {
		t.Errorf("TasksPerOffer() error = %v, want ErrUnsupportedResource", err)
	}
}

func TestFilterPartitionsOffers(t *testing.T) {
	req := requirement(t, map[string]interface{}{"cpus": 1.0, "mem": 128})
	offers := []*mesos.Offer{
		makeOffer("usable",
			mesosutil.NewScalarResource("cpus", 2),
			mesosutil.NewScalarResource("mem", 256),
		),
		makeOffer("short-mem",
			mesosutil.NewScalarResource("cpus", 2),
			mesosutil.NewScalarResource("mem", 64),
		),
		makeOffer("irrelevant",
			mesosutil.NewScalarResource("gpus", 1),
		),
	}

	usable, declinable, err := Filter(offers, req)
	if err != nil {
		t.Fatalf("Filter() error: %v", err)
	}
	if len(usable) != 1 || usable[0].Offer.GetId().GetValue() != "usable" {
		t.Errorf("Filter() usable = %v, want the one fitting offer", usable)
	}
	if usable[0].Tasks != 2 {
		t.Errorf("Filter() capacity = %d, want 2", usable[0].Tasks)
	}
	if len(declinable) != 2 {
		t.Errorf("Filter() declinable = %d offers, want 2", len(declinable))
	}
	if Total(usable) != 2 {
		t.Errorf("Total() = %d, want 2", Total(usable))
	}
}
