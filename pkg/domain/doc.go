/*
Package domain contains the core model of the bonsai engine.

It defines the composed state-chart document, skill outcomes and the payloads the
controller pushes to its listeners. This package is kept pure and free of I/O,
following Hexagonal Architecture principles.

# Key Entities

  - Document: an arena of StateNodes addressed by StateIndex, with explicit parent links.
  - Transition: an event pattern, optional guard, optional target and actions.
  - ExitStatus: SUCCESS, ERROR or FATAL plus an optional processing status.
  - ExitToken: what a skill step returns, either a loop marker or a terminal status.
  - ValidationResult and LoadingResult: categorized findings of a load.
*/
package domain
