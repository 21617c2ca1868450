package coordinator

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/protobuf/proto"
	mesos "github.com/mesos/mesos-go/api/v0/mesosproto"
	sched "github.com/mesos/mesos-go/api/v0/scheduler"
	"github.com/rs/zerolog"

	"github.com/sailthru/relay-mesos/pkg/config"
	"github.com/sailthru/relay-mesos/pkg/controller"
	"github.com/sailthru/relay-mesos/pkg/delta"
	"github.com/sailthru/relay-mesos/pkg/events"
	"github.com/sailthru/relay-mesos/pkg/kv"
	"github.com/sailthru/relay-mesos/pkg/log"
	"github.com/sailthru/relay-mesos/pkg/metrics"
	"github.com/sailthru/relay-mesos/pkg/scheduler"
)

var (
	// ErrInitTimeout is returned when a worker misses its ready signal
	// within init_timeout.
	ErrInitTimeout = errors.New("worker did not become ready within init_timeout")

	// ErrWorkerDied is returned when either worker exits unexpectedly.
	ErrWorkerDied = errors.New("worker died")

	// ErrSignaled is returned when SIGTERM or SIGINT tears the process down.
	ErrSignaled = errors.New("terminated by signal")
)

// supervisionCap bounds the supervision poll interval.
const supervisionCap = 5 * time.Second

// Coordinator owns the process lifecycle: it wires the scheduler agent and
// the controller loop to the shared delta cell, supervises both, persists
// framework identity for failover, and converts failures into exit status.
type Coordinator struct {
	cfg    *config.Config
	store  kv.Store
	logger zerolog.Logger
}

// New builds a coordinator over a validated config and an open KV store.
func New(cfg *config.Config, store kv.Store) *Coordinator {
	return &Coordinator{
		cfg:    cfg,
		store:  store,
		logger: log.WithComponent("coordinator"),
	}
}

type driverResult struct {
	status mesos.Status
	err    error
}

// Run blocks until shutdown. A nil return means a clean driver stop (exit
// 0); any error is fatal (exit 1).
func (c *Coordinator) Run(metricSrc, targetSrc controller.Source) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	if req, _ := c.cfg.Requirement(); req.Empty() {
		c.logger.Warn().Msg("mesos_task_resources is empty; tasks will request no resources")
	}

	cell := delta.New()
	errCh := make(chan error, 8)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	go c.mirrorEvents(broker.Subscribe())

	if c.cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(c.cfg.MetricsAddr); err != nil {
				c.logger.Warn().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	hadIdentity, identity, err := c.loadIdentity()
	if err != nil {
		return err
	}

	agent, err := scheduler.New(c.cfg, cell, errCh, broker)
	if err != nil {
		return err
	}

	driver, err := sched.NewMesosSchedulerDriver(sched.DriverConfig{
		Scheduler: agent,
		Framework: c.frameworkInfo(identity),
		Master:    c.cfg.MesosMaster,
	})
	if err != nil {
		return fmt.Errorf("failed to create scheduler driver: %w", err)
	}

	driverDone := make(chan driverResult, 1)
	go func() {
		status, err := driver.Run()
		driverDone <- driverResult{status: status, err: err}
	}()

	if err := c.awaitReady(agent.Ready(), driverDone, errCh); err != nil {
		// Roll back the persisted identity so the next start registers
		// fresh instead of waiting out a dead failover window.
		if delErr := c.store.Delete(c.cfg.IdentityKey()); delErr != nil {
			c.logger.Warn().Err(delErr).Msg("failed to roll back framework identity")
		}
		driver.Stop(false)
		return fmt.Errorf("scheduler agent: %w", err)
	}

	if err := c.persistIdentity(hadIdentity, agent.FrameworkID()); err != nil {
		driver.Stop(true)
		return err
	}

	loop := controller.NewLoop(
		metricSrc, targetSrc,
		controller.Proportional{Gain: c.cfg.Gain},
		c.cfg.DelayDuration(),
		c.writeDemand(cell), c.writeDemand(cell),
	)
	loop.Start()
	defer loop.Stop()

	if err := c.awaitReady(loop.Ready(), driverDone, errCh); err != nil {
		driver.Stop(true)
		return fmt.Errorf("controller loop: %w", err)
	}

	c.logger.Info().
		Str("framework_id", agent.FrameworkID()).
		Str("master", c.cfg.MesosMaster).
		Msg("framework running")

	return c.supervise(driver, loop, cell, driverDone, errCh)
}

// writeDemand is the controller-write adapter: both the warmer and cooler
// callbacks write the signed count into the same cell, latest stamp wins.
// The controller encodes direction in the sign of n.
func (c *Coordinator) writeDemand(cell *delta.Delta) controller.Callback {
	return func(n int) {
		if cell.Store(n, time.Now()) {
			metrics.DesiredDelta.Set(float64(n))
			c.logger.Debug().Int("count", n).Msg("controller demand updated")
		}
	}
}

// awaitReady waits on a worker's ready signal, bounded by init_timeout.
// Worker death or a forwarded error during the wait is fatal immediately.
func (c *Coordinator) awaitReady(ready <-chan struct{}, driverDone <-chan driverResult, errCh <-chan error) error {
	timer := time.NewTimer(c.cfg.InitTimeoutDuration())
	defer timer.Stop()

	select {
	case <-ready:
		return nil
	case err := <-errCh:
		return err
	case res := <-driverDone:
		return fmt.Errorf("%w: driver exited with status %s: %v", ErrWorkerDied, res.status, res.err)
	case <-timer.C:
		return ErrInitTimeout
	}
}

// supervise polls both workers and the exception channel until shutdown.
func (c *Coordinator) supervise(driver sched.SchedulerDriver, loop *controller.Loop, cell *delta.Delta, driverDone <-chan driverResult, errCh <-chan error) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	interval := supervisionCap
	if d := c.cfg.DelayDuration(); d < interval {
		interval = d
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case err := <-errCh:
			c.logger.Error().Err(err).Msg("worker reported a fatal error, shutting down")
			loop.Stop()
			driver.Stop(true)
			return err

		case res := <-driverDone:
			loop.Stop()
			// A forwarded error explains a driver stop (e.g. the
			// max-failures trip); prefer it over the bare status.
			select {
			case err := <-errCh:
				return err
			default:
			}
			if res.err != nil {
				return fmt.Errorf("%w: driver: %v", ErrWorkerDied, res.err)
			}
			if res.status != mesos.Status_DRIVER_STOPPED {
				return fmt.Errorf("%w: driver exited with status %s", ErrWorkerDied, res.status)
			}
			c.logger.Info().Msg("driver stopped cleanly")
			if err := c.store.Delete(c.cfg.IdentityKey()); err != nil {
				c.logger.Warn().Err(err).Msg("failed to delete framework identity")
			}
			return nil

		case <-loop.Done():
			c.logger.Error().Msg("controller loop died, shutting down")
			driver.Stop(true)
			return fmt.Errorf("%w: controller loop", ErrWorkerDied)

		case sig := <-sigCh:
			c.logger.Info().Str("signal", sig.String()).Msg("signal received, shutting down")
			loop.Stop()
			driver.Stop(false)
			if err := c.store.Delete(c.cfg.IdentityKey()); err != nil {
				c.logger.Warn().Err(err).Msg("failed to delete framework identity")
			}
			return fmt.Errorf("%w: %s", ErrSignaled, sig)

		case <-ticker.C:
			// Outstanding demand: hint the master to re-offer sooner.
			if n, _ := cell.Value(); n != 0 {
				driver.ReviveOffers()
			}
		}
	}
}

// loadIdentity reads the persisted framework id, if any, so the master can
// resume checkpoints from a previous run.
func (c *Coordinator) loadIdentity() (bool, string, error) {
	key := c.cfg.IdentityKey()
	found, err := c.store.Exists(key)
	if err != nil {
		return false, "", fmt.Errorf("failed to check framework identity: %w", err)
	}
	if !found {
		return false, "", nil
	}
	id, err := c.store.Get(key)
	if err != nil {
		return false, "", fmt.Errorf("failed to read framework identity: %w", err)
	}
	c.logger.Info().Str("framework_id", id).Msg("recovering persisted framework identity")
	return true, id, nil
}

// persistIdentity records the registered framework id: created on first
// registration, rewritten on recovery. Losing this write would silently
// lose failover capability, so it is fatal.
func (c *Coordinator) persistIdentity(hadIdentity bool, id string) error {
	key := c.cfg.IdentityKey()
	var err error
	if hadIdentity {
		err = c.store.Set(key, id)
	} else {
		err = c.store.Create(key, id)
	}
	if err != nil {
		return fmt.Errorf("failed to persist framework identity: %w", err)
	}
	return nil
}

func (c *Coordinator) frameworkInfo(identity string) *mesos.FrameworkInfo {
	info := &mesos.FrameworkInfo{
		User:            proto.String(""), // inherit from the coordinator process
		Name:            proto.String(c.cfg.RegisteredName()),
		Checkpoint:      proto.Bool(c.cfg.Checkpoint),
		FailoverTimeout: proto.Float64(c.cfg.FailoverTimeout),
	}
	if c.cfg.FrameworkPrincipal != "" {
		info.Principal = proto.String(c.cfg.FrameworkPrincipal)
	}
	if c.cfg.FrameworkRole != "" {
		info.Role = proto.String(c.cfg.FrameworkRole)
	}
	if identity != "" {
		info.Id = &mesos.FrameworkID{Value: proto.String(identity)}
	}
	return info
}

// mirrorEvents copies broker events into the debug log.
func (c *Coordinator) mirrorEvents(sub events.Subscriber) {
	for event := range sub {
		c.logger.Debug().
			Str("event", string(event.Type)).
			Str("message", event.Message).
			Fields(toFields(event.Metadata)).
			Msg("event")
	}
}

func toFields(metadata map[string]string) map[string]interface{} {
	fields := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		fields[k] = v
	}
	return fields
}
