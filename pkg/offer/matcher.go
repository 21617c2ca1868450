package offer

import (
	"errors"
	"fmt"
	"math"

	mesos "github.com/mesos/mesos-go/api/v0/mesosproto"

	"github.com/sailthru/relay-mesos/pkg/task"
)

var (
	// ErrUnsupportedResource is returned when an offer carries a range or
	// set resource the requirement asks for. Matching those kinds is not
	// implemented; the requirement should not name them until it is.
	ErrUnsupportedResource = errors.New("range and set resource matching is not supported")

	// ErrUnknownResourceKind is returned for an offer resource whose kind
	// the matcher does not recognize.
	ErrUnknownResourceKind = errors.New("unrecognized resource kind in offer")
)

// Capacity pairs an offer with the number of identical tasks it can host.
type Capacity struct {
	Offer *mesos.Offer
	Tasks int
}

// TasksPerOffer decides how many identical copies of req fit in offer.
//
// Only resources the requirement names are considered. A scalar that falls
// short of the requirement zeroes the whole offer. An offer carrying none
// of the required resources fits zero tasks.
func TasksPerOffer(offer *mesos.Offer, req *task.Requirement) (int, error) {
	capacity := math.MaxInt
	narrowed := false

	for _, res := range offer.GetResources() {
		name := res.GetName()
		switch req.KindOf(name) {
		case task.KindUnknown:
			continue
		case task.KindScalar:
			oval := res.GetScalar().GetValue()
			reqval := req.Scalars[name]
			if reqval > oval {
				return 0, nil
			}
			narrowed = true
			if reqval > 0 {
				if fit := int(oval / reqval); fit < capacity {
					capacity = fit
				}
			}
		case task.KindRange, task.KindSet:
			return 0, fmt.Errorf("%w: %q", ErrUnsupportedResource, name)
		default:
			return 0, fmt.Errorf("%w: %q", ErrUnknownResourceKind, name)
		}
	}

	if !narrowed {
		return 0, nil
	}
	return capacity, nil
}

// Filter partitions offers into those that can host at least one task and
// those to decline outright.
func Filter(offers []*mesos.Offer, req *task.Requirement) (usable []Capacity, declinable []*mesos.Offer, err error) {
	for _, o := range offers {
		n, err := TasksPerOffer(o, req)
		if err != nil {
			return nil, nil, err
		}
		if n == 0 {
			declinable = append(declinable, o)
			continue
		}
		usable = append(usable, Capacity{Offer: o, Tasks: n})
	}
	return usable, declinable, nil
}

// Total sums the task capacity of a usable batch.
func Total(usable []Capacity) int {
	total := 0
	for _, c := range usable {
		total += c.Tasks
	}
	return total
}
