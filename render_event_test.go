package render

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvents(t *testing.T) {
	t.Run("every start has exactly one end", func(t *testing.T) {
		registry := newRegistry(t)
		open := map[string]int{}
		pairs := 0
		orphans := []string{}

		root := NewNode("board", "root", PhaseMap{
			"A": func(ctx *PhaseContext) error {
				ctx.AddChild(NewNode("resistor", "R1", nil))
				ctx.AddChild(NewNode("resistor", "R2", PhaseMap{
					"B": func(ctx *PhaseContext) error {
						if ctx.Sweep() == 1 {
							ctx.Retry()
						}
						return nil
					},
				}))
				return nil
			},
		})

		d, err := New(registry, root)
		require.NoError(t, err)

		d.On(EventPhaseStart, func(e Event) {
			open[fmt.Sprintf("%s %s %d", e.NodeName(), e.Phase, e.Sweep)]++
		})
		d.On(EventPhaseEnd, func(e Event) {
			key := fmt.Sprintf("%s %s %d", e.NodeName(), e.Phase, e.Sweep)
			if open[key] != 1 {
				orphans = append(orphans, key)
				return
			}
			delete(open, key)
			pairs++
		})

		require.NoError(t, d.RenderUntilSettled(settleContext(t)))

		assert.Empty(t, orphans)
		assert.Empty(t, open)
		assert.Equal(t, 10, pairs)
	})

	t.Run("the subtree event fires once per phase per sweep", func(t *testing.T) {
		registry := newRegistry(t)
		log := []string{}

		root := NewNode("board", "root", nil)
		root.AddChild(NewNode("resistor", "R1", nil))
		root.AddChild(NewNode("resistor", "R2", nil))

		d, err := New(registry, root)
		require.NoError(t, err)

		d.On(EventSubtreePhase, func(e Event) {
			log = append(log, fmt.Sprintf("%d %s %s", e.Sweep, e.NodeName(), e.Phase))
		})
		d.On(EventSweepStart, func(e Event) { log = append(log, fmt.Sprintf("%d start", e.Sweep)) })
		d.On(EventSweepEnd, func(e Event) {
			log = append(log, fmt.Sprintf("%d end %d", e.Sweep, e.Transitions))
		})

		_, err = d.Render()
		require.NoError(t, err)
		require.NoError(t, d.MarkDirty(root.Child(0), "B"))
		_, err = d.Render()
		require.NoError(t, err)

		assert.Equal(t, []string{
			"1 start",
			"1 board(root) A",
			"1 board(root) B",
			"1 board(root) C",
			"1 end 9",
			"2 start",
			"2 board(root) B",
			"2 board(root) C",
			"2 end 2",
		}, log)
	})

	t.Run("listeners run in registration order and can unsubscribe", func(t *testing.T) {
		registry := newRegistry(t, "A")
		log := []string{}

		root := NewNode("board", "root", nil)
		d, err := New(registry, root)
		require.NoError(t, err)

		d.On(EventPhaseStart, func(Event) { log = append(log, "first") })
		off := d.On(EventPhaseStart, func(Event) { log = append(log, "second") })
		d.On(EventPhaseStart, func(Event) { log = append(log, "third") })

		_, err = d.Render()
		require.NoError(t, err)

		off()
		require.NoError(t, d.MarkDirty(root, "A"))
		_, err = d.Render()
		require.NoError(t, err)

		assert.Equal(t, []string{"first", "second", "third", "first", "third"}, log)
	})

	t.Run("a panicking listener does not stop the phase", func(t *testing.T) {
		log := []string{}
		root := NewNode("board", "root", trace(&log))

		d, err := New(newRegistry(t), root)
		require.NoError(t, err)
		d.On(EventPhaseStart, func(Event) { panic("listener bug") })

		n, err := d.Render()
		require.NoError(t, err)

		assert.Equal(t, 3, n)
		assert.Equal(t, []string{"root:A", "root:B", "root:C"}, log)
	})

	t.Run("phase errors are reported on the end event", func(t *testing.T) {
		var ended Event
		root := NewNode("board", "root", PhaseMap{
			"B": func(*PhaseContext) error { return fmt.Errorf("bad geometry") },
		})

		d, err := New(newRegistry(t), root)
		require.NoError(t, err)
		d.On(EventPhaseEnd, func(e Event) {
			if e.Phase == "B" {
				ended = e
			}
		})

		_, err = d.Render()
		require.Error(t, err)

		assert.ErrorContains(t, ended.Err, "bad geometry")
		assert.Equal(t, "board(root)", ended.NodeName())
	})
}

func TestReport(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }
	step := func(d time.Duration) PhaseFunc {
		return func(*PhaseContext) error {
			now = now.Add(d)
			return nil
		}
	}

	registry := newRegistry(t)
	root := NewNode("board", "root", PhaseMap{
		"A": step(5 * time.Millisecond),
		"B": step(time.Millisecond),
		"C": step(0),
	})
	root.AddChild(NewNode("resistor", "R1", PhaseMap{
		"A": step(10 * time.Millisecond),
	}))

	d, err := New(registry, root, WithClock(clock))
	require.NoError(t, err)
	require.NoError(t, d.RenderUntilSettled(settleContext(t)))

	report := d.Report()

	a, ok := report.Row("A")
	require.True(t, ok)
	assert.Equal(t, ReportRow{Phase: "A", Total: 15 * time.Millisecond, Max: 10 * time.Millisecond, Runs: 2}, a)

	rows := report.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, []Phase{"A", "B", "C"}, []Phase{rows[0].Phase, rows[1].Phase, rows[2].Phase})
	assert.Equal(t, time.Millisecond, rows[1].Total)
	assert.Equal(t, 16*time.Millisecond, report.Total())
	assert.Equal(t, 6, report.Runs())

	assert.Equal(t, 10*time.Millisecond, root.Child(0).Timing("A").Duration)
}

func TestEffectTimingUsesDriverClock(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }

	registry := newRegistry(t)
	root := NewNode("board", "root", PhaseMap{
		"B": func(ctx *PhaseContext) error {
			_, err := ctx.RegisterEffect("solve", func(context.Context) (any, error) {
				return nil, nil
			})
			return err
		},
		"C": func(*PhaseContext) error {
			now = now.Add(7 * time.Millisecond)
			return nil
		},
	})

	d, err := New(registry, root, WithClock(clock))
	require.NoError(t, err)

	var resolved []Event
	d.On(EventEffectResolved, func(e Event) { resolved = append(resolved, e) })

	require.NoError(t, d.RenderUntilSettled(settleContext(t)))

	require.Len(t, resolved, 1)
	assert.Equal(t, 7*time.Millisecond, resolved[0].Duration)
	assert.Equal(t, time.Unix(0, 0).Add(7*time.Millisecond), resolved[0].Time)
}
