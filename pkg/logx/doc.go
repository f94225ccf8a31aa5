// Package logx configures remindd's structured logging.
//
// Logger is a small wrapper on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional chat sink for warnings (min-level + rate limiting)
package logx
