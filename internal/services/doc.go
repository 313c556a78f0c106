// Package services defines shared utilities consumed by the engine pipeline
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp track IDs, staff IDs, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent HTTP statuses and retry decisions.
//
// Use these helpers when wiring new engine logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
