// Package shared holds helpers used across the engine's packages.
//
// The testutil subpackage provides a buffered slog handler so tests can
// assert on log records:
//
//	logger, handler := testutil.NewTestLogger(t)
//	svc := services.NewEngineService(cfg, deps, logger)
//	...
//	testutil.AssertLogContains(t, handler, slog.LevelInfo, "dataset normalized")
//
// Nothing here may import a domain package.
package shared
