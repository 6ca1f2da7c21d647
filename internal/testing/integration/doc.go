// Package integration provides infrastructure for integration testing with real components.
//
// This package supports testing against real databases, HTTP servers, and
// filesystem-backed workflow runs instead of mocks. It includes:
//
//   - Test configuration from environment variables
//   - Cleanup management for resource tracking
//   - Retry helpers with exponential backoff
//
// # Environment-Based Test Skipping
//
// Tests requiring external dependencies skip automatically when not configured:
//
//	integration.SkipWithoutEnv(t, "ANTHROPIC_API_KEY")
//
// # Cleanup Management
//
// Track and verify cleanup of test resources:
//
//	cleanup := integration.NewCleanupManager(t)
//	cleanup.Add("database connection", dbConn.Close)
//	cleanup.Add("temp file", func() error { return os.Remove(tmpFile) })
//	// Cleanup runs automatically via t.Cleanup()
//
// # Retry Logic
//
// Retry transient failures with exponential backoff:
//
//	err := integration.Retry(ctx, func() error {
//	    return makeAPICall()
//	}, integration.DefaultRetryConfig())
//
// # Test Build Tags
//
// Integration tests use build tags for selective execution:
//
//   - //go:build integration - Basic integration tests (SQLite, local)
//   - //go:build integration && postgres - Postgres tests via testcontainers
//   - //go:build integration && nightly - Full API coverage (Tier 3)
package integration
