// Package observability exposes simulation progress as Prometheus metrics.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the Prometheus metrics for a running simulation and
// provides a ready-to-mount /metrics handler.
type Collector struct {
	gatherer prometheus.Gatherer

	StepsTotal       prometheus.Counter
	RelocationsTotal prometheus.Counter
	UnhappyAgents    prometheus.Gauge
	UnmovableAgents  prometheus.Gauge
	VacantCells      prometheus.Gauge
	Converged        prometheus.Gauge
}

// NewCollector registers the simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	steps, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schelling_steps_total",
		Help: "Total simulation steps executed.",
	}), "schelling_steps_total")
	if err != nil {
		return nil, err
	}
	relocations, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schelling_relocations_total",
		Help: "Total agent relocations across all steps.",
	}), "schelling_relocations_total")
	if err != nil {
		return nil, err
	}
	unhappy, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "schelling_unhappy_agents",
		Help: "Agents that wanted to move in the most recent step.",
	}), "schelling_unhappy_agents")
	if err != nil {
		return nil, err
	}
	unmovable, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "schelling_unmovable_agents",
		Help: "Unhappy agents that had no vacant cell available in the most recent step.",
	}), "schelling_unmovable_agents")
	if err != nil {
		return nil, err
	}
	vacant, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "schelling_vacant_cells",
		Help: "Current size of the vacancy pool.",
	}), "schelling_vacant_cells")
	if err != nil {
		return nil, err
	}
	converged, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "schelling_converged",
		Help: "1 when a full step has produced zero relocations.",
	}), "schelling_converged")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		StepsTotal:       steps,
		RelocationsTotal: relocations,
		UnhappyAgents:    unhappy,
		UnmovableAgents:  unmovable,
		VacantCells:      vacant,
		Converged:        converged,
	}, nil
}

// ObserveStep records one completed step.
func (c *Collector) ObserveStep(unhappy, moved, unmovable, vacant int) {
	if c == nil {
		return
	}
	c.StepsTotal.Inc()
	c.RelocationsTotal.Add(float64(moved))
	c.UnhappyAgents.Set(float64(unhappy))
	c.UnmovableAgents.Set(float64(unmovable))
	c.VacantCells.Set(float64(vacant))
}

// SetConverged flips the convergence gauge.
func (c *Collector) SetConverged(converged bool) {
	if c == nil {
		return
	}
	if converged {
		c.Converged.Set(1)
	} else {
		c.Converged.Set(0)
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
