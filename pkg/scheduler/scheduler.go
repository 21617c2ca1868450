package scheduler

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang/protobuf/proto"
	mesos "github.com/mesos/mesos-go/api/v0/mesosproto"
	sched "github.com/mesos/mesos-go/api/v0/scheduler"
	"github.com/rs/zerolog"

	"github.com/sailthru/relay-mesos/pkg/config"
	"github.com/sailthru/relay-mesos/pkg/delta"
	"github.com/sailthru/relay-mesos/pkg/events"
	"github.com/sailthru/relay-mesos/pkg/log"
	"github.com/sailthru/relay-mesos/pkg/metrics"
	"github.com/sailthru/relay-mesos/pkg/offer"
	"github.com/sailthru/relay-mesos/pkg/task"
)

// ErrMaxFailures is the fatal error raised when the failure counter
// reaches the configured threshold.
var ErrMaxFailures = errors.New("max allowable number of task failures reached")

// defaultFilters keeps declined offers away only briefly so the next
// controller tick sees fresh capacity.
var defaultFilters = &mesos.Filters{RefuseSeconds: proto.Float64(1)}

// State tracks where the agent is in its registration lifecycle.
type State int

const (
	StateInit State = iota
	StateRegistered
	StateReregistered
	StateStopped
)

// Scheduler is the framework's callback target against the mesos master.
// It reads task demand from the shared delta cell on each offer batch and
// turns it into launches; it never blocks on the controller.
type Scheduler struct {
	cfg    *config.Config
	tpl    *task.Template
	req    *task.Requirement
	delta  *delta.Delta
	errCh  chan<- error
	broker *events.Broker
	logger zerolog.Logger

	mu          sync.Mutex
	state       State
	failures    int
	inflight    map[string]bool
	frameworkID string

	readyOnce sync.Once
	ready     chan struct{}
}

// New builds a scheduler agent. The error channel is the write end handed
// out by the coordinator; every uncaught callback error is forwarded there.
func New(cfg *config.Config, d *delta.Delta, errCh chan<- error, broker *events.Broker) (*Scheduler, error) {
	tpl, err := cfg.Template()
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		cfg:      cfg,
		tpl:      tpl,
		req:      tpl.Resources,
		delta:    d,
		errCh:    errCh,
		broker:   broker,
		logger:   log.WithComponent("scheduler"),
		inflight: make(map[string]bool),
		ready:    make(chan struct{}),
	}, nil
}

// Ready is closed once the framework has registered with a master.
func (s *Scheduler) Ready() <-chan struct{} { return s.ready }

// FrameworkID returns the id assigned at registration, or "" before it.
func (s *Scheduler) FrameworkID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameworkID
}

// State returns the agent's lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Failures returns the current failure counter value.
func (s *Scheduler) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// guard wraps a callback body: any error is forwarded to the coordinator's
// exception channel, any panic is forwarded as an error and re-raised.
func (s *Scheduler) guard(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.forward(fmt.Errorf("panic in %s: %v", name, r))
			panic(r)
		}
	}()
	if err := fn(); err != nil {
		s.forward(fmt.Errorf("%s: %w", name, err))
	}
}

func (s *Scheduler) forward(err error) {
	s.logger.Error().Err(err).Msg("scheduler callback failed")
	select {
	case s.errCh <- err:
	default:
	}
}

// Registered signals framework readiness so the coordinator may start the
// controller loop.
func (s *Scheduler) Registered(_ sched.SchedulerDriver, frameworkID *mesos.FrameworkID, masterInfo *mesos.MasterInfo) {
	s.guard("registered", func() error {
		s.mu.Lock()
		s.state = StateRegistered
		s.frameworkID = frameworkID.GetValue()
		s.mu.Unlock()

		s.readyOnce.Do(func() { close(s.ready) })

		s.logger.Info().
			Str("framework_id", frameworkID.GetValue()).
			Str("master_hostname", masterInfo.GetHostname()).
			Str("master_id", masterInfo.GetId()).
			Uint32("master_port", masterInfo.GetPort()).
			Msg("registered with master")
		s.broker.Publish(events.New(events.EventFrameworkRegistered, "registered with master",
			map[string]string{"framework_id": frameworkID.GetValue()}))
		return nil
	})
}

// Reregistered is informational; the agent keeps serving offers.
func (s *Scheduler) Reregistered(_ sched.SchedulerDriver, masterInfo *mesos.MasterInfo) {
	s.guard("reregistered", func() error {
		s.mu.Lock()
		if s.state != StateStopped {
			s.state = StateReregistered
		}
		s.mu.Unlock()

		s.logger.Info().
			Str("master_hostname", masterInfo.GetHostname()).
			Str("master_id", masterInfo.GetId()).
			Msg("re-registered with master")
		s.broker.Publish(events.New(events.EventFrameworkReregistered, "re-registered with master", nil))
		return nil
	})
}

// Disconnected is transient; the driver reconnects on its own.
func (s *Scheduler) Disconnected(sched.SchedulerDriver) {
	s.logger.Warn().Msg("disconnected from master")
}

// ResourceOffers is the hot path: match, consume demand, launch, decline.
func (s *Scheduler) ResourceOffers(driver sched.SchedulerDriver, offers []*mesos.Offer) {
	s.guard("resourceOffers", func() error {
		return s.handleOffers(driver, offers)
	})
}

func (s *Scheduler) handleOffers(driver sched.SchedulerDriver, offers []*mesos.Offer) error {
	metrics.OffersReceived.Add(float64(len(offers)))
	s.logger.Debug().Int("num_offers", len(offers)).Msg("got resource offers")

	usable, declinable, err := offer.Filter(offers, s.req)
	if err != nil {
		return err
	}
	for _, o := range declinable {
		s.decline(driver, o, "unusable")
	}
	if len(usable) == 0 {
		s.logger.Debug().Msg("no offer had enough relevant resources")
		return nil
	}

	total := offer.Total(usable)
	take := s.delta.Consume(total, s.cfg.Warmer != "", s.cfg.Cooler != "")
	if take == 0 {
		s.logger.Debug().Msg("no demand from controller")
		for _, c := range usable {
			s.decline(driver, c.Offer, "no_demand")
		}
		return nil
	}

	command, kind := s.cfg.Warmer, "warmer"
	remaining := take
	if take < 0 {
		command, kind = s.cfg.Cooler, "cooler"
		remaining = -take
	}

	residual, _ := s.delta.Value()
	metrics.DesiredDelta.Set(float64(residual))

	for _, c := range usable {
		if remaining == 0 {
			s.decline(driver, c.Offer, "surplus")
			continue
		}
		n := c.Tasks
		if remaining < n {
			n = remaining
		}
		if err := s.launch(driver, c.Offer, command, kind, n); err != nil {
			return err
		}
		remaining -= n
	}

	// Ask for fresh offers so the next tick is not starved by our own
	// short decline filters.
	driver.ReviveOffers()
	return nil
}

// launch builds n tasks against one offer and submits them in a single
// batched call. LaunchTasks is issued at most once per offer.
func (s *Scheduler) launch(driver sched.SchedulerDriver, o *mesos.Offer, command, kind string, n int) error {
	tasks := make([]*mesos.TaskInfo, 0, n)
	for seq := 0; seq < n; seq++ {
		tid := task.NewID(seq, o.GetId().GetValue())
		info, err := task.Build(tid, o, command, s.tpl)
		if err != nil {
			return err
		}
		tasks = append(tasks, info)

		s.mu.Lock()
		s.inflight[tid] = true
		s.mu.Unlock()

		s.logger.Debug().
			Str("task_id", tid).
			Str("offer_host", o.GetHostname()).
			Str("kind", kind).
			Msg("accepting offer to start a task")
	}

	if _, err := driver.LaunchTasks([]*mesos.OfferID{o.GetId()}, tasks, defaultFilters); err != nil {
		return fmt.Errorf("launchTasks: %w", err)
	}
	metrics.TasksLaunched.WithLabelValues(kind).Add(float64(n))
	s.broker.Publish(events.New(events.EventTaskLaunched,
		fmt.Sprintf("launched %d %s task(s)", n, kind),
		map[string]string{"offer_id": o.GetId().GetValue(), "hostname": o.GetHostname()}))
	return nil
}

func (s *Scheduler) decline(driver sched.SchedulerDriver, o *mesos.Offer, reason string) {
	driver.DeclineOffer(o.GetId(), defaultFilters)
	metrics.OffersDeclined.WithLabelValues(reason).Inc()
	s.broker.Publish(events.New(events.EventOfferDeclined, reason,
		map[string]string{"offer_id": o.GetId().GetValue()}))
}

// StatusUpdate maintains the failure counter and trips the driver when the
// configured threshold is reached.
func (s *Scheduler) StatusUpdate(driver sched.SchedulerDriver, update *mesos.TaskStatus) {
	s.guard("statusUpdate", func() error {
		state := update.GetState()
		tid := update.GetTaskId().GetValue()

		metrics.StatusUpdates.WithLabelValues(state.String()).Inc()
		s.logger.Debug().
			Str("task_id", tid).
			Str("state", state.String()).
			Str("message", update.GetMessage()).
			Msg("task status update")

		s.mu.Lock()
		switch state {
		case mesos.TaskState_TASK_FAILED, mesos.TaskState_TASK_LOST:
			s.failures++
		case mesos.TaskState_TASK_FINISHED, mesos.TaskState_TASK_STARTING:
			if s.failures > 0 {
				s.failures--
			}
		}
		failures := s.failures
		if terminal(state) {
			delete(s.inflight, tid)
		}
		s.mu.Unlock()

		metrics.FailureCounter.Set(float64(failures))

		switch state {
		case mesos.TaskState_TASK_FAILED, mesos.TaskState_TASK_LOST:
			s.broker.Publish(events.New(events.EventTaskFailed, state.String(),
				map[string]string{"task_id": tid}))
		case mesos.TaskState_TASK_FINISHED:
			s.broker.Publish(events.New(events.EventTaskFinished, state.String(),
				map[string]string{"task_id": tid}))
		}

		if s.cfg.MaxFailures >= 0 && failures >= s.cfg.MaxFailures {
			s.mu.Lock()
			s.state = StateStopped
			s.mu.Unlock()

			s.logger.Error().
				Int("failures", failures).
				Int("max_failures", s.cfg.MaxFailures).
				Msg("max allowable number of failures reached")
			s.broker.Publish(events.New(events.EventFailuresTripped,
				fmt.Sprintf("%d failures", failures), nil))
			driver.Stop(false)
			return fmt.Errorf("%w: %d", ErrMaxFailures, failures)
		}
		return nil
	})
}

// OfferRescinded needs no bookkeeping: offers are consumed synchronously
// within ResourceOffers.
func (s *Scheduler) OfferRescinded(_ sched.SchedulerDriver, id *mesos.OfferID) {
	s.logger.Info().Str("offer_id", id.GetValue()).Msg("offer rescinded")
	s.broker.Publish(events.New(events.EventOfferRescinded, "offer rescinded",
		map[string]string{"offer_id": id.GetValue()}))
}

// FrameworkMessage is ignored; the controller loop reissues demand.
func (s *Scheduler) FrameworkMessage(_ sched.SchedulerDriver, executorID *mesos.ExecutorID, slaveID *mesos.SlaveID, message string) {
	s.logger.Debug().
		Str("executor_id", executorID.GetValue()).
		Str("slave_id", slaveID.GetValue()).
		Str("message", message).
		Msg("framework message ignored")
}

// SlaveLost is transient: in-flight tasks surface as TASK_LOST updates.
func (s *Scheduler) SlaveLost(_ sched.SchedulerDriver, slaveID *mesos.SlaveID) {
	s.logger.Warn().Str("slave_id", slaveID.GetValue()).Msg("slave lost")
}

// ExecutorLost is transient for the same reason.
func (s *Scheduler) ExecutorLost(_ sched.SchedulerDriver, executorID *mesos.ExecutorID, slaveID *mesos.SlaveID, status int) {
	s.logger.Warn().
		Str("executor_id", executorID.GetValue()).
		Str("slave_id", slaveID.GetValue()).
		Int("status", status).
		Msg("executor lost")
}

// Error receives unrecoverable driver errors; forward them so the
// coordinator tears the process down.
func (s *Scheduler) Error(_ sched.SchedulerDriver, message string) {
	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	s.forward(fmt.Errorf("driver error: %s", message))
}

func terminal(state mesos.TaskState) bool {
	switch state {
	case mesos.TaskState_TASK_FINISHED,
		mesos.TaskState_TASK_FAILED,
		mesos.TaskState_TASK_KILLED,
		mesos.TaskState_TASK_LOST,
		mesos.TaskState_TASK_ERROR:
		return true
	}
	return false
}
