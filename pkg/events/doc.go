/*
Package events distributes framework lifecycle events (registrations, task
launches, declines, failure trips) to in-process subscribers.

The broker fans events out over buffered channels and drops events for
subscribers that fall behind, so a slow consumer can never stall the
scheduler's callback path.
*/
package events
