// Package shard implements the storage unit of a store: a bounded bucket of
// id → (vector, metadata) pairs that can be unloaded from memory, serialized
// to a checksummed binary form and brought back on demand.
//
// Searches run either directly on a Shard or on an immutable View taken with
// Snapshot, which needs no lock and survives a later Unload.
package shard
