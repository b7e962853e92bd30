/*
Package ports defines the interfaces between the bonsai engine and its collaborators.

These interfaces decouple the orchestration core from skill implementations, resource
backends, chart sources and observers.

# Key Interfaces

  - Skill: a unit of behavior with a configure / init / execute / end lifecycle.
  - Configurator: the per-state resource catalogue a skill configures itself against.
  - SlotStore: the backend of named memory slots (memory, Redis).
  - ChartLoader: reads chart sources and included fragments.
  - StatusListener and ExceptionListener: push interfaces fed by the controller.
  - Orchestrator: the control surface used by the HTTP, MQTT and MCP adapters.
*/
package ports
