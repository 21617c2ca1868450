/*
Package controller runs the periodic feedback loop that turns the error
between a metric and its target into task demand.

The loop is deliberately thin: it pulls one metric value and one target
value per tick, asks a pluggable Strategy for a signed task count, and
hands the count to the warmer or cooler callback. What those callbacks do
with the count (in practice: write it into the shared delta cell) is the
coordinator's business, not the loop's.

The default Proportional strategy multiplies the error by a gain. Anything
smarter - PID terms, sampling, history - plugs in behind the Strategy
interface.
*/
package controller
