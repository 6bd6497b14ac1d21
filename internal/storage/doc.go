// Package storage persists a summary of every finished dispatch job.
//
// The journal is append-only and survives restarts, so operators can see
// past jobs after the in-memory registry has evicted them. Two drivers are
// available: "file" (JSON Lines) and "sqlite".
package storage
