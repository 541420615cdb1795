/*
Package runstate is the single-writer path to persisted run state.

A Manager serializes every read-modify-write of a RunState behind a per-name
mutex (and, when configured, a distributed lock), checks schema versions on
load, and recovers steps left running by an interrupted process.
*/
package runstate
