package circuit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AnatoleLucet/render"
	"github.com/AnatoleLucet/render/circuit/autorouter"
	"github.com/AnatoleLucet/render/internal/config"
	"github.com/AnatoleLucet/render/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, desc Description, env *Env) *Result {
	t.Helper()
	env.Logger = testlog.Start(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := Compile(ctx, desc, env)
	require.NoError(t, err)
	return result
}

type summary struct {
	Type string
	Name string
}

func summarize(records []Record) []summary {
	out := []summary{}
	for _, r := range records {
		out = append(out, summary{r.Type, r.Name})
	}
	return out
}

func messages(records []Record) []string {
	out := []string{}
	for _, r := range records {
		out = append(out, r.Fields["message"].(string))
	}
	return out
}

type failingRouter struct{}

func (failingRouter) Route(context.Context, autorouter.RouteRequest) (autorouter.RouteResult, error) {
	return autorouter.RouteResult{}, errors.New("no route through the keepout")
}

func TestDecodeDescription(t *testing.T) {
	desc, err := LoadDescription("testdata/voltage-divider.toml")
	require.NoError(t, err)

	assert.Equal(t, KindBoard, desc.Kind)
	assert.Equal(t, "divider", desc.Name)
	require.Len(t, desc.Children, 5)
	assert.Equal(t, "10k", desc.Children[0].Props["resistance"])

	from, ok := desc.Children[1].String("from")
	assert.True(t, ok)
	assert.Equal(t, ".R1 > .pin2", from)

	desc, err = DecodeDescription(strings.NewReader(`
kind = "resistor"
name = "R9"
props = { schX = 3, schY = 1.5 }
`))
	require.NoError(t, err)

	x, ok := desc.Number("schX")
	assert.True(t, ok)
	assert.Equal(t, 3.0, x)
	y, _ := desc.Number("schY")
	assert.Equal(t, 1.5, y)

	_, err = DecodeDescription(strings.NewReader(`kind = `))
	assert.Error(t, err)
}

func TestCompile(t *testing.T) {
	t.Run("voltage divider", func(t *testing.T) {
		desc, err := LoadDescription("testdata/voltage-divider.toml")
		require.NoError(t, err)

		env := DefaultEnv()
		env.LayoutDelay = time.Millisecond
		result := compile(t, desc, env)
		doc := result.Document

		assert.NoError(t, doc.Err())

		want := []summary{
			{"source_component", "R1"},
			{"source_component", "R2"},
		}
		if diff := cmp.Diff(want, summarize(doc.Filter("source_component"))); diff != "" {
			t.Errorf("source components (-want +got):\n%s", diff)
		}

		assert.Len(t, doc.Filter("source_port"), 4)
		assert.Len(t, doc.Filter("source_net"), 1)
		assert.Len(t, doc.Filter("source_trace"), 2)
		assert.Len(t, doc.Filter("schematic_component"), 2)
		assert.Len(t, doc.Filter("schematic_net_label"), 1)
		assert.Len(t, doc.Filter("schematic_trace"), 2)
		assert.Len(t, doc.Filter("pcb_component"), 2)
		assert.Len(t, doc.Filter("pcb_trace"), 2)
		assert.Len(t, doc.Filter("pcb_board"), 1)

		assert.Equal(t, []string{"pin pin1 of R1 is not connected"}, messages(doc.Filter("warning")))

		trace := doc.Filter("source_trace")[0]
		assert.Equal(t, []string{"R1.pin2", "R2.pin1"}, trace.Fields["connected"])

		r2 := doc.Filter("pcb_component")[1]
		assert.Equal(t, "0603", r2.Fields["footprint"])

		for n := range result.Root.All() {
			assert.True(t, n.Complete(), n.DisplayName())
		}
		assert.Greater(t, result.Sweeps, 2)

		row, ok := result.Report.Row(PhasePcbTraceRouting)
		require.True(t, ok)
		assert.GreaterOrEqual(t, row.Runs, 4)
	})

	t.Run("children expand components, then nets, then traces", func(t *testing.T) {
		desc, err := LoadDescription("testdata/voltage-divider.toml")
		require.NoError(t, err)

		result := compile(t, desc, DefaultEnv())

		names := []string{}
		for child := range result.Root.Children() {
			names = append(names, child.Name())
		}
		assert.Equal(t, []string{"R1", "R2", "GND", "t1", "t2"}, names)
	})

	t.Run("the document follows the tree", func(t *testing.T) {
		desc := Description{Kind: KindBoard, Name: "b", Children: []Description{
			{Kind: KindResistor, Name: "R1"},
		}}
		doc := compile(t, desc, DefaultEnv()).Document

		types := []string{}
		for _, r := range doc.Records {
			if r.Type == "warning" {
				continue
			}
			types = append(types, r.Type)
		}
		assert.Equal(t, []string{
			"pcb_board",
			"source_component",
			"schematic_component",
			"pcb_component",
			"source_port",
			"schematic_port",
			"pcb_port",
			"source_port",
			"schematic_port",
			"pcb_port",
		}, types)

		body, err := doc.JSON()
		require.NoError(t, err)
		assert.Contains(t, string(body), `"type": "pcb_board"`)
	})

	t.Run("user mistakes become diagnostics", func(t *testing.T) {
		desc := Description{Kind: KindBoard, Name: "b", Children: []Description{
			{Kind: KindResistor, Name: "R1"},
			{Kind: KindResistor, Name: "R1"},
			{Kind: "inductor", Name: "L1"},
			{Kind: KindCapacitor, Name: "C1", Props: map[string]any{"footprint": "1206"}},
			{Kind: KindTrace, Name: "t1", Props: map[string]any{"from": ".R9 > .pin1", "to": ".C1 > .pin1"}},
			{Kind: KindTrace, Name: "t2", Props: map[string]any{"from": "R1.pin1", "to": ".C1 > .pin2"}},
		}}

		doc := compile(t, desc, DefaultEnv()).Document
		errs := messages(doc.Filter("error"))

		assert.ElementsMatch(t, []string{
			`unknown component kind "inductor" for "L1"`,
			`duplicate name "R1" used by 2 children`,
			`unknown footprint "1206"`,
			`selector ".R9 > .pin1" matched nothing`,
			`malformed selector "R1.pin1"`,
		}, errs)

		err := doc.Err()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "5 errors occurred")
		assert.Empty(t, doc.Filter("pcb_trace"))
	})

	t.Run("pin counts are bounded", func(t *testing.T) {
		desc := Description{Kind: KindBoard, Name: "b", Children: []Description{
			{Kind: KindResistor, Name: "R1", Props: map[string]any{"pins": int64(200000)}},
			{Kind: KindChip, Name: "U1", Props: map[string]any{"pins": 1e12, "footprint": "bga1e12"}},
		}}
		result := compile(t, desc, DefaultEnv())
		doc := result.Document

		assert.ElementsMatch(t, []string{
			"200000 pins do not fit footprint 0402 with 2 pads",
			`unknown footprint "bga1e12"`,
			"2147483647 pins requested, at most 256 are supported",
		}, messages(doc.Filter("error")))

		r1 := result.Root.Child(0)
		require.Equal(t, "R1", r1.Name())
		assert.Equal(t, 2, r1.ChildCount())

		u1 := result.Root.Child(1)
		require.Equal(t, "U1", u1.Name())
		assert.Equal(t, maxPins, u1.ChildCount())
		assert.Len(t, doc.Filter("source_port"), 2+maxPins)
	})

	t.Run("manual placement wins over the layout", func(t *testing.T) {
		desc := Description{Kind: KindBoard, Name: "b", Children: []Description{
			{Kind: KindResistor, Name: "R1", Props: map[string]any{"schX": int64(10), "schY": 4.5, "pcbX": 2.0}},
			{Kind: KindResistor, Name: "R2"},
		}}
		doc := compile(t, desc, DefaultEnv()).Document

		sch := doc.Filter("schematic_component")
		require.Len(t, sch, 2)
		assert.Equal(t, Point{X: 10, Y: 4.5}, sch[0].Fields["center"])

		pcb := doc.Filter("pcb_component")
		assert.Equal(t, Point{X: 2, Y: 0}, pcb[0].Fields["center"])
	})

	t.Run("traces reach into nested groups", func(t *testing.T) {
		desc := Description{Kind: KindBoard, Name: "b", Children: []Description{
			{Kind: KindGroup, Name: "power", Children: []Description{
				{Kind: KindGroup, Name: "filter", Children: []Description{
					{Kind: KindCapacitor, Name: "C1"},
				}},
			}},
			{Kind: KindChip, Name: "U1", Props: map[string]any{"pins": int64(4)}},
			{Kind: KindTrace, Name: "t1", Props: map[string]any{"from": ".U1 > .pin1", "to": ".C1 > .pin1"}},
		}}
		result := compile(t, desc, DefaultEnv())
		doc := result.Document

		assert.NoError(t, doc.Err())
		require.Len(t, doc.Filter("pcb_trace"), 1)
		assert.Len(t, doc.Filter("source_port"), 6)

		c1 := result.Root.Find(func(n *render.Node) bool { return n.Name() == "C1" })
		require.NotNil(t, c1)
		assert.Equal(t, 3, c1.Depth())
	})

	t.Run("router failures are reported on the trace", func(t *testing.T) {
		desc := Description{Kind: KindBoard, Name: "b", Children: []Description{
			{Kind: KindResistor, Name: "R1"},
			{Kind: KindTrace, Name: "t1", Props: map[string]any{"from": ".R1 > .pin1", "to": ".R1 > .pin2"}},
		}}
		env := DefaultEnv()
		env.Router = failingRouter{}

		doc := compile(t, desc, env).Document

		errs := doc.Filter("error")
		require.Len(t, errs, 1)
		assert.Equal(t, "trace(t1)", errs[0].Name)
		assert.Equal(t, autorouteEffect, errs[0].Fields["effect"])
		assert.Contains(t, errs[0].Fields["message"], "no route through the keepout")
		assert.Empty(t, doc.Filter("pcb_trace"))
		assert.Len(t, doc.Filter("schematic_trace"), 1)
	})

	t.Run("slow routers are awaited", func(t *testing.T) {
		desc := Description{Kind: KindBoard, Name: "b", Children: []Description{
			{Kind: KindResistor, Name: "R1"},
			{Kind: KindTrace, Name: "t1", Props: map[string]any{"from": ".R1 > .pin1", "to": ".R1 > .pin2"}},
		}}
		env := DefaultEnv()
		env.Router = autorouter.Local{Delay: 20 * time.Millisecond}

		doc := compile(t, desc, env).Document
		require.Len(t, doc.Filter("pcb_trace"), 1)
	})

	t.Run("metrics follow the render", func(t *testing.T) {
		desc, err := LoadDescription("testdata/voltage-divider.toml")
		require.NoError(t, err)

		env := DefaultEnv()
		env.Metrics = true

		doc := compile(t, desc, env).Document
		assert.NoError(t, doc.Err())
	})

	t.Run("only boards and groups can be roots", func(t *testing.T) {
		_, err := Compile(context.Background(), Description{Kind: KindResistor, Name: "R1"}, nil)
		assert.ErrorIs(t, err, ErrInvalidRoot)
		assert.ErrorContains(t, err, "board or a group")
	})

	t.Run("cancellation stops the render", func(t *testing.T) {
		desc := Description{Kind: KindBoard, Name: "b", Children: []Description{
			{Kind: KindResistor, Name: "R1"},
		}}
		env := DefaultEnv()
		env.LayoutDelay = time.Hour

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		result, err := Compile(ctx, desc, env)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		require.NotNil(t, result)
		assert.Nil(t, result.Document)
	})
}

func TestSelector(t *testing.T) {
	cases := []struct {
		raw  string
		want selector
		err  bool
	}{
		{raw: ".R1 > .pin1", want: selector{component: "R1", port: "pin1"}},
		{raw: " .U1>.pin8 ", want: selector{component: "U1", port: "pin8"}},
		{raw: "net.GND", want: selector{component: "GND", net: true}},
		{raw: ".VCC", want: selector{component: "VCC"}},
		{raw: "R1.pin1", err: true},
		{raw: ".R1 > .pin1 > .x", err: true},
		{raw: "net.", err: true},
		{raw: "", err: true},
	}

	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := parseSelector(tc.raw)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tc.want.raw = tc.raw
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPack(t *testing.T) {
	centers, total := pack([]Size{{W: 4, H: 2}, {W: 4, H: 4}, {W: 4, H: 1}}, 10)

	assert.Equal(t, []Point{{X: 2, Y: 1}, {X: 7, Y: 2}, {X: 2, Y: 5.5}}, centers)
	assert.Equal(t, Size{W: 9, H: 6}, total)
}

func TestNewEnv(t *testing.T) {
	cfg := config.Default()
	cfg.Autorouter.Delay = time.Millisecond

	env := NewEnv(cfg, testlog.Start(t))
	assert.Equal(t, autorouter.Local{Delay: time.Millisecond}, env.Router)
	assert.Contains(t, env.Footprints, "0402")

	cfg.Autorouter.Mode = config.RouterRemote
	cfg.Autorouter.URL = "http://127.0.0.1:9/"

	env = NewEnv(cfg, testlog.Start(t))
	assert.IsType(t, &autorouter.Remote{}, env.Router)
}
