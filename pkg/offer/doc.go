/*
Package offer matches mesos resource offers against a task's resource
requirement.

The matcher is a pure function: given one offer and one requirement it
returns how many identical tasks the offer can host. Filter applies it to
a whole batch, splitting the offers the scheduler can use from the ones it
should decline immediately.
*/
package offer
