// Package store defines the persistence contracts for tasks, resources and
// result containers, plus the sentinel errors shared by every backend. The
// engine depends only on these interfaces; postgres and the in-memory store
// provide the implementations.
package store
