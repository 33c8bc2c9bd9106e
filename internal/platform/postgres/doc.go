// Package postgres provides the PostgreSQL implementations of the storage
// interfaces defined in the internal/store package. Task and item state
// transitions are expressed as conditional UPDATE statements so the database
// enforces the compare-and-set semantics the orchestrator relies on.
package postgres
