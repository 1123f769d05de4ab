// Package metrics exposes Prometheus instrumentation for the appliance core.
//
// A Metrics value owns a private registry so the exported series are limited
// to what this process reports. It satisfies appliance.Observer and is handed
// to appliance.New; the HTTP API serves Handler() on /metrics.
//
//	m := metrics.New("airlink")
//	dev, _ := appliance.New(appliance.Options{Observer: m, ...})
//	router.Handle("/metrics", m.Handler())
package metrics
