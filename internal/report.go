package internal

import (
	"time"
)

// ReportRow is the time spent in one phase across the whole render.
type ReportRow struct {
	Phase Phase
	Total time.Duration
	Max   time.Duration
	Runs  int
}

// Report sums end.Time - start.Time per phase, matching start and end events
// by node and phase.
type Report struct {
	registry *Registry
	rows     map[Phase]*ReportRow
	open     map[runKey]time.Time
}

type runKey struct {
	node  *Node
	phase Phase
}

func NewReport(registry *Registry) *Report {
	return &Report{
		registry: registry,
		rows:     make(map[Phase]*ReportRow),
		open:     make(map[runKey]time.Time),
	}
}

// Listener feeds the report from a driver's event bus.
func (r *Report) Listener() Listener {
	return func(e Event) {
		switch e.Kind {
		case EventPhaseStart:
			r.open[runKey{e.Node, e.Phase}] = e.Time
		case EventPhaseEnd:
			key := runKey{e.Node, e.Phase}
			start, ok := r.open[key]
			if !ok {
				return
			}
			delete(r.open, key)
			r.add(e.Phase, e.Time.Sub(start))
		}
	}
}

func (r *Report) add(phase Phase, d time.Duration) {
	row, ok := r.rows[phase]
	if !ok {
		row = &ReportRow{Phase: phase}
		r.rows[phase] = row
	}
	row.Total += d
	row.Runs++
	if d > row.Max {
		row.Max = d
	}
}

// Rows returns one row per phase that ran, in registry order.
func (r *Report) Rows() []ReportRow {
	rows := make([]ReportRow, 0, len(r.rows))
	for _, p := range r.registry.phases {
		if row, ok := r.rows[p]; ok {
			rows = append(rows, *row)
		}
	}
	return rows
}

func (r *Report) Row(phase Phase) (ReportRow, bool) {
	row, ok := r.rows[phase]
	if !ok {
		return ReportRow{}, false
	}
	return *row, true
}

func (r *Report) Total() time.Duration {
	var total time.Duration
	for _, row := range r.rows {
		total += row.Total
	}
	return total
}

func (r *Report) Runs() int {
	runs := 0
	for _, row := range r.rows {
		runs += row.Runs
	}
	return runs
}
