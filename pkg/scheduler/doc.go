/*
Package scheduler implements the mesos framework callbacks for relay-mesos.

The agent is driven entirely by the mesos driver's threads. On each offer
batch it declines unusable offers, atomically consumes the controller's
current demand from the shared delta cell, launches warmer or cooler tasks
up to the batch's capacity, declines the surplus, and asks the driver to
revive offers. Every offer in a batch is either launched against exactly
once or declined exactly once.

The agent also owns failure accounting: TASK_FAILED and TASK_LOST raise a
counter, TASK_FINISHED and TASK_STARTING lower it (floor zero). Reaching
max_failures stops the driver and raises a fatal error; max_failures of -1
disables the trip entirely.

Every callback body runs inside a guard that forwards uncaught errors to
the coordinator's exception channel, so a crashed callback can never leave
the coordinator unaware.
*/
package scheduler
