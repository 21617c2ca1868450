/*
Package task builds mesos TaskInfo messages for warmer and cooler launches.

The package owns two concerns: the resource requirement table (which
resource names are scalars, ranges or sets, and how each is cast when
rendered into the mesos protocol) and the task descriptor itself (command
with environment interpolation, URIs, env vars, optional docker container
spec with volumes and parameters).

Task ids are composed from a per-offer sequence index, the offer id and a
63-bit random component; they are unique within one framework instance.
*/
package task
