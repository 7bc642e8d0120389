/*
Package log provides structured logging for the router using zerolog.

The package wraps zerolog to give the logging components (registry,
breaker, routers, discovery, HTTP gateway) a component-scoped child
logger instead of passing loggers by hand through every
call. Logs are JSON in production, human-readable console output in
development, both carrying a timestamp on every line.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	regLog := log.WithComponent("registry")
	regLog.Info().Str("worker", w.URL).Msg("worker added")

	workerLog := log.WithWorker(w.URL)
	workerLog.Warn().Int("consecutive_fails", n).Msg("health probe failed")

	reqLog := log.WithRequestID(reqID)
	reqLog.Debug().Msg("dispatching to decode worker")

Init must run once at startup, before any component derives a child
logger from the global instance.
*/
package log
