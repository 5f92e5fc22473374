// Package app wires the data engine together and manages its lifecycle.
//
// # Initialization Flow
//
// New builds every component from a *config.Config:
//
//  1. OpenTelemetry providers and business metrics
//  2. WebSocket hub, registered with the Prometheus registry
//  3. Rule store (memory, file, sqlite, postgres or redis)
//  4. Event publisher (none, log or kafka) fanned out to the hub
//  5. Upload store and the background job queue
//  6. Ingestion adapter, engine service and health service
//  7. chi router and the HTTP server
//
// Nothing listens until Start. NewApplication loads the configuration and
// logger first, then calls New.
//
// # Usage
//
//	a, err := app.NewApplication()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := a.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Graceful Shutdown
//
// Run waits for SIGINT or SIGTERM. Stop drains HTTP requests, waits for
// running jobs, closes the hub, the publisher and the rule store, and
// flushes telemetry. Errors are returned to the caller; the package never
// calls os.Exit.
package app
