package metrics

import (
	"net/http"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/prometheus"

	"github.com/rainbow-dao/drn/event"
)

var (
	registry metrics.Registry
	initOnce sync.Once
)

type (
	Counter struct {
		metrics.Counter
	}

	Gauge struct {
		metrics.Gauge
	}

	Timer struct {
		metrics.Timer
	}
)

/*
Enable turns on metrics collection, it must be called before any metric is
created, metrics created earlier are no-op.
*/
func Enable() {
	initOnce.Do(func() {
		metrics.Enabled = true
		registry = metrics.NewRegistry()
		metrics.DefaultRegistry = registry
	})
}

func Enabled() bool {
	return metrics.Enabled
}

func GetOrRegisterCounter(name string) *Counter {
	return &Counter{metrics.GetOrRegisterCounter(name, registry)}
}

func GetOrRegisterGauge(name string) *Gauge {
	return &Gauge{metrics.GetOrRegisterGauge(name, registry)}
}

func GetOrRegisterTimer(name string) *Timer {
	return &Timer{metrics.GetOrRegisterTimer(name, registry)}
}

func PrometheusHandler() http.Handler {
	return prometheus.Handler(metrics.DefaultRegistry)
}

/*
EventCounter returns event handler counting bridge events by type, counter
"drn/events/debt_created" counts DebtCreated events etc. Events are passed
on to next when it is not nil.
*/
func EventCounter(next event.Handler) event.Handler {
	var mu sync.Mutex
	counters := make(map[event.Type]*Counter)
	return func(e *event.Event) {
		mu.Lock()
		c, ok := counters[e.EventType]
		if !ok {
			c = GetOrRegisterCounter("drn/events/" + snakeCase(e.EventType.String()))
			counters[e.EventType] = c
		}
		mu.Unlock()
		c.Inc(1)
		next.Emit(e.EventType, e.Content)
	}
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
