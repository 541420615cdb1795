/*
Package domain contains the core models shared by every part of the Cairn harness.

It defines step and test case statuses, the persisted RunState schema, execution
outcomes, baseline verdicts, lifecycle hooks and the error taxonomy. This package
is kept pure and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - StepSpec: The declaration of a step (name, kind, inputs, outputs, options).
  - RunState: The versioned snapshot written at setup and updated during runs.
  - TestCaseResult / SuiteResult: What a run produced, used by provenance and summaries.
  - ValidationReport: Verdicts returned by a baseline comparison.
*/
package domain
