/*
Package delta implements the shared demand register between the controller
loop and the mesos scheduler.

The register is a single (count, stamp) pair under a mutex. Writers race by
stamp: the write with the newest stamp wins, so a slow controller tick can
never clobber a fresher one. The scheduler consumes demand atomically,
writing back the unserved residual with the sign preserved.

This is deliberately not a channel. The semantics are "latest intent wins",
not "every message delivered" - if the controller asks for 10 tasks and then
changes its mind to -4 before any offer arrives, only the -4 matters.
*/
package delta
