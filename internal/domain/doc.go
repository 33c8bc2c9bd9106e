// Package domain holds the core entities of the batch engine: tasks, their
// items, resources and result containers, together with the status machines
// and validation rules that govern them. It has no knowledge of persistence,
// transport or the execution backend.
package domain
