// Package stats provides a minimal scoped metrics receiver backed by
// go-metrics, so callers do not deal with registry names directly and the
// dependency does not leak through the rest of the codebase. The zero
// Receiver discards everything, which keeps instrumentation optional.
package stats

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rcrowley/go-metrics"
)

// Receiver hands out instruments namespaced by its scope. Copies share the
// same underlying registry, so scoping is cheap:
//
//	stat.Scope("pool").Counter("completed")   // pool/completed
type Receiver struct {
	scope    string
	registry metrics.Registry
}

func NewReceiver() Receiver {
	return Receiver{registry: metrics.NewRegistry()}
}

// Scope returns a receiver that prefixes every instrument name with the
// given path elements.
func (r Receiver) Scope(elems ...string) Receiver {
	parts := make([]string, 0, len(elems)+1)
	if r.scope != "" {
		parts = append(parts, r.scope)
	}
	parts = append(parts, elems...)
	return Receiver{scope: strings.Join(parts, "/"), registry: r.registry}
}

func (r Receiver) name(n string) string {
	if r.scope == "" {
		return n
	}
	return r.scope + "/" + n
}

func (r Receiver) Counter(name string) metrics.Counter {
	if r.registry == nil {
		return metrics.NilCounter{}
	}
	return metrics.GetOrRegisterCounter(r.name(name), r.registry)
}

func (r Receiver) Gauge(name string) metrics.Gauge {
	if r.registry == nil {
		return metrics.NilGauge{}
	}
	return metrics.GetOrRegisterGauge(r.name(name), r.registry)
}

func (r Receiver) Histogram(name string) metrics.Histogram {
	if r.registry == nil {
		return metrics.NilHistogram{}
	}
	return metrics.GetOrRegisterHistogram(r.name(name), r.registry,
		metrics.NewExpDecaySample(1028, 0.015))
}

// Render returns a stable one-line-per-instrument dump of the registry for
// end-of-run reports.
func (r Receiver) Render() string {
	if r.registry == nil {
		return ""
	}
	var lines []string
	r.registry.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case metrics.Counter:
			lines = append(lines, fmt.Sprintf("%s: %d", name, m.Count()))
		case metrics.Gauge:
			lines = append(lines, fmt.Sprintf("%s: %d", name, m.Value()))
		case metrics.Histogram:
			h := m.Snapshot()
			lines = append(lines, fmt.Sprintf("%s: count=%d mean=%.2f max=%d",
				name, h.Count(), h.Mean(), h.Max()))
		}
	})
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
