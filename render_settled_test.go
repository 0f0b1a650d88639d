package render

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderUntilSettled(t *testing.T) {
	t.Run("reaches a fixed point", func(t *testing.T) {
		registry := newRegistry(t)
		settled := 0

		root := NewNode("board", "root", PhaseMap{
			"A": func(ctx *PhaseContext) error {
				for i := range 3 {
					ctx.AddChild(NewNode("resistor", fmt.Sprintf("R%d", i), PhaseMap{
						"B": func(ctx *PhaseContext) error {
							_, err := ctx.RegisterEffect("place", func(context.Context) (any, error) {
								time.Sleep(time.Duration(i) * time.Millisecond)
								return i, nil
							})
							return err
						},
					}))
				}
				return nil
			},
		})

		d, err := New(registry, root)
		require.NoError(t, err)
		d.On(EventSettled, func(Event) { settled++ })

		require.NoError(t, d.RenderUntilSettled(settleContext(t)))

		assert.Equal(t, 1, settled)
		assert.True(t, d.Settled())
		for n := range root.All() {
			assert.True(t, n.Complete(), n.DisplayName())
			assert.False(t, n.HasIncompleteEffects(), n.DisplayName())
		}

		n, err := d.Render()
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("waits for the slowest subtree", func(t *testing.T) {
		registry := newRegistry(t)
		const steps = 3
		done := 0

		fast := NewNode("group", "fast", nil)
		slow := NewNode("group", "slow", PhaseMap{
			"B": func(ctx *PhaseContext) error {
				if _, ok := ctx.TakeEffect("step"); ok {
					done++
				}
				if done == steps {
					return nil
				}
				_, err := ctx.RegisterEffect("step", func(context.Context) (any, error) {
					return nil, nil
				}, RerunOnResolve())
				return err
			},
		})

		root := NewNode("board", "root", nil)
		root.AddChild(fast)
		root.AddChild(slow)

		d, err := New(registry, root)
		require.NoError(t, err)
		require.NoError(t, d.RenderUntilSettled(settleContext(t)))

		assert.Equal(t, steps, done)
		assert.Equal(t, 1, fast.Timing("C").Runs)
		assert.Equal(t, steps+1, slow.Timing("B").Runs)
		assert.GreaterOrEqual(t, d.Sweeps(), steps+1)
		assert.True(t, d.Settled())
	})

	t.Run("retry waits for another node", func(t *testing.T) {
		log := []string{}
		registry := newRegistry(t)

		var source *Node
		reader := NewNode("trace", "reader", PhaseMap{
			"B": func(ctx *PhaseContext) error {
				v, ok := Prop[int](source, "value")
				if !ok {
					log = append(log, "not ready")
					ctx.Retry()
					return nil
				}
				log = append(log, fmt.Sprintf("read %d", v))
				return nil
			},
		})
		source = NewNode("resistor", "source", PhaseMap{
			"C": func(ctx *PhaseContext) error {
				ctx.Node().Set("value", 5)
				return nil
			},
		})

		root := NewNode("board", "root", nil)
		root.AddChild(reader)
		root.AddChild(source)

		d, err := New(registry, root)
		require.NoError(t, err)
		require.NoError(t, d.RenderUntilSettled(settleContext(t)))

		assert.Equal(t, []string{"not ready", "read 5"}, log)
		assert.Equal(t, 2, d.Sweeps())
	})

	t.Run("a phase that keeps re-running is a stall", func(t *testing.T) {
		registry := newRegistry(t)
		stalled := []Event{}

		root := NewNode("board", "root", PhaseMap{
			"B": func(ctx *PhaseContext) error {
				ctx.Retry()
				return nil
			},
		})

		d, err := New(registry, root, WithStallSweeps(3))
		require.NoError(t, err)
		d.On(EventStalled, func(e Event) { stalled = append(stalled, e) })

		err = d.RenderUntilSettled(settleContext(t))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStalled)

		var stallErr *StallError
		require.ErrorAs(t, err, &stallErr)
		assert.Equal(t, []string{"board(root) [B]"}, stallErr.Running)
		assert.Equal(t, 5, stallErr.Sweeps)

		require.Len(t, stalled, 1)
		assert.ErrorIs(t, stalled[0].Err, ErrStalled)
	})

	t.Run("too many sweeps is a stall", func(t *testing.T) {
		registry := newRegistry(t)
		grown := 0

		root := NewNode("board", "root", PhaseMap{
			"B": func(ctx *PhaseContext) error {
				grown++
				ctx.AddChild(NewNode("resistor", fmt.Sprintf("R%d", grown), nil))
				ctx.Retry()
				return nil
			},
		})

		d, err := New(registry, root, WithMaxSweeps(5))
		require.NoError(t, err)

		err = d.RenderUntilSettled(settleContext(t))
		assert.ErrorIs(t, err, ErrStalled)
		assert.ErrorContains(t, err, "exceeded 5 sweeps")
		assert.Equal(t, 6, grown)
	})

	t.Run("honours the context", func(t *testing.T) {
		registry := newRegistry(t)
		release := make(chan struct{})

		root := NewNode("board", "root", PhaseMap{
			"A": func(ctx *PhaseContext) error {
				_, err := ctx.RegisterEffect("hang", func(context.Context) (any, error) {
					<-release
					return nil, nil
				})
				return err
			},
		})

		d, err := New(registry, root)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		err = d.RenderUntilSettled(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.True(t, d.HasIncompleteAnywhere())

		close(release)
		require.NoError(t, d.Wait(settleContext(t)))
		assert.True(t, d.Settled())
	})

	t.Run("settle timeout bounds the call", func(t *testing.T) {
		registry := newRegistry(t)
		release := make(chan struct{})
		defer close(release)

		root := NewNode("board", "root", PhaseMap{
			"A": func(ctx *PhaseContext) error {
				_, err := ctx.RegisterEffect("hang", func(context.Context) (any, error) {
					<-release
					return nil, nil
				})
				return err
			},
		})

		d, err := New(registry, root, WithSettleTimeout(10*time.Millisecond))
		require.NoError(t, err)

		err = d.RenderUntilSettled(context.Background())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
