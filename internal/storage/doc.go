// Package storage persists the reminders document.
//
// Drivers:
//   - "file":   one JSON or YAML document, rewritten atomically
//   - "sqlite": the same document as a single row, behind versioned migrations
//   - "memory": process-local, for tests and ephemeral runs
//
// Every driver returns documents through Migrate, so older or damaged files
// load as the current schema.
package storage
