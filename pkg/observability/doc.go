/*
Package observability turns workflow lifecycle hooks into Prometheus metrics
and structured log lines.

Both are plain domain.LifecycleHooks values and can be combined with Merge:

	m := observability.NewMetrics(prometheus.DefaultRegisterer)
	hooks := m.Hooks().Merge(observability.LogHooks(logger))
*/
package observability
