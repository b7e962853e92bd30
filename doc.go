/*
Package bonsai orchestrates robot skills with hierarchical state charts.

A chart describes behavior as states and event-driven transitions. Every
simple state is bound to a skill by name ("Talk#greet" runs the Talk skill).
When the state is entered the engine configures a fresh skill instance,
runs it concurrently until it returns an outcome such as SUCCESS or
ERROR.timeout, and feeds the outcome back into the chart as the event
"Talk.SUCCESS" or "Talk.ERROR.timeout".

# Pipeline

  - Assembly: includes ("src://KEY/sub.yaml") are spliced in from an include
    dictionary, nested datamodel blocks are hoisted to the root and duplicate
    state ids are rejected.
  - Validation: every outcome a skill declares must be handled by a transition
    on its state or an ancestor, and every internally sent event must have a
    listener.
  - Orchestration: Start enters the initial configuration; skills run in their
    own goroutines while every chart mutation is serialized.

# Usage

	eng, err := bonsai.New("charts/fetch.yaml",
		bonsai.WithIncludes(map[string]string{"src": "charts/fragments"}),
		bonsai.WithLogger(logger),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	skills.Register(eng.Registry(), "")

	if res := eng.Load(ctx, map[string]string{"target": "kitchen"}); !res.Success() {
		log.Fatal(res.Err())
	}
	if err := eng.Start(ctx); err != nil {
		log.Fatal(err)
	}
*/
package bonsai
