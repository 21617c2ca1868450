/*
Package coordinator owns the top-level lifecycle of a relay-mesos run.

It allocates the shared delta cell and the exception channel, starts the
scheduler agent (via the mesos driver) and the controller loop as
supervised workers, persists the framework identity for failover, and runs
the supervision loop: any forwarded error, dead worker or signal tears
both workers down and the process exits non-zero. Only a clean driver stop
exits zero, deleting the persisted identity on the way out.

The two workers never talk to each other directly. The controller loop
writes its latest demand into the delta cell through the write adapter;
the scheduler agent consumes it on the next offer batch.
*/
package coordinator
