/*
Package log provides structured logging for relay-mesos using zerolog.

A single global logger is configured once at process start via Init, then
consumed through package-level helpers or per-component child loggers:

	log.Init(log.Config{Level: log.DebugLevel, JSONOutput: true})
	logger := log.WithComponent("scheduler")
	logger.Info().Int("offers", len(offers)).Msg("got resource offers")

Console output (the default) is meant for interactive runs; JSON output is
meant for shipping to a log collector.
*/
package log
