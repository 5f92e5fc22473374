// Package services implements the business logic layer of the data engine.
// It sits between the HTTP handlers and the core packages (profiler,
// normalizer, aggregator, rule registry, ingestion adapter) and owns the
// cross-cutting work those packages leave out: dataset storage, rule
// persistence, event publishing, background jobs and metrics.
//
// # Available Services
//
//   - EngineService: datasets, normalization, aggregation, flags, rules, uploads
//   - HealthService: liveness, readiness and version reporting
//
// # Error Handling
//
// Services return the sentinel errors declared in errors.go, the typed
// errors of the core packages, or *errors.AppError for infrastructure
// failures. Handlers translate them to HTTP problem details.
//
// # Testing
//
// Services are tested with in-memory collaborators and testify mocks for
// the event publisher:
//
//	pub := &MockPublisher{}
//	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)
//	svc := newTestEngine(t, WithPublisher(pub))
package services
