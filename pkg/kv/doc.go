/*
Package kv provides the small key-value store behind framework identity
persistence.

The coordinator writes the registered framework id under
relay_mesos.framework.<name> so a restarted coordinator inside the master's
failover-timeout window can re-register under the same identity. The
default implementation is a local BoltDB file; the Store interface keeps
the coordinator ignorant of the backing store.
*/
package kv
