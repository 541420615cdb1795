/*
Package ports defines the driven ports (interfaces) for the Cairn harness.

These interfaces decouple test case execution from where run state lives and
how outputs are judged, so the same suite can run against a local work
directory, a shared Redis instance, or a custom baseline comparison.

# Key Interfaces

  - RunStateStore: Persists and loads the RunState written at setup.
  - DistributedLocker: Serializes RunState writers across processes sharing a work directory.
  - BaselineValidator: Compares a finished test case against a baseline run.
*/
package ports
