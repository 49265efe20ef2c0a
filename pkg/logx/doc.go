// Package logx provides the process-wide structured logger.
//
// It wraps zerolog behind a small value-type Logger so call sites don't
// depend on zerolog directly, and a Service that supports swapping sinks
// and levels at runtime (used by config hot reload).
package logx
