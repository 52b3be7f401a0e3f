// Package diagnostics reports host resource usage for the health endpoints.
// A node serving local models is usually bound by memory and GPU, so the
// snapshot carries both alongside CPU load.
package diagnostics
