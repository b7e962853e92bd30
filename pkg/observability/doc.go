// Package observability turns engine lifecycle hooks and listener
// notifications into Prometheus metrics and structured log lines.
//
// Metrics implements both listener ports and provides lifecycle hooks;
// Chain merges several hook sets into one:
//
//	m := observability.NewMetrics(reg)
//	eng, _ := bonsai.New(src,
//		bonsai.WithLifecycleHooks(observability.Chain(m.Hooks(), observability.LogHooks(logger))))
//	eng.AddStatusListener(m)
//	eng.AddExceptionListener(m)
package observability
