/*
Package runner drives a single skill instance through its lifecycle.

A Runner is created for every entry into a simple state. It configures the
skill against a resource catalogue, calls Init once, then calls Execute in
a loop until the skill returns a terminal token. End always runs exactly
once and its token becomes the Result delivered to the controller.

# Pausing

Each runner owns a PauseGate. Pausing never interrupts a step already in
progress; it only prevents the next step from starting.

# Forced termination

End cancels the run: the loop stops before its next step and the skill's
End receives a fatal token. The wait is bounded; a skill that does not
return in time yields domain.ErrUnresponsive.

# Usage

	r := runner.New("Talk#greet", skill, catalog.Configurator("Talk#greet", opts),
		runner.WithLogger(logger),
		runner.WithOnDone(func(res runner.Result) { ... }),
	)
	r.Start(ctx)
*/
package runner
