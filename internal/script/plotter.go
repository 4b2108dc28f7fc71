package script

import (
	"fmt"

	rt "github.com/arnodel/golua/runtime"

	"github.com/opd-ai/go-cutsim/internal/device"
)

// Plotter is the set of device operations exposed to job scripts.
type Plotter interface {
	Start() error
	Stop() error
	MoveTo(p device.Point) error
	CutTo(p device.Point) error
	CurveTo(p0, p1, p2, p3 device.Point) error
	SetToolWidth(w float64) error
	Dimensions() device.Point
	LogicalPosition() device.Point
	IsRunning() bool
	Reset() error
}

var _ Plotter = (*device.Device)(nil)

// PlotterAPI exposes a Plotter to Lua as the global table plotter.
// Commands return true on success and false plus a message on failure, so
// scripts can check results or ignore them:
//
//	plotter.start()
//	plotter.set_tool_width(0.01)
//	plotter.move_to(1, 1)
//	local ok, err = plotter.cut_to(2, 2)
//	plotter.curve_to(2, 2, 3, 1, 4, 3, 5, 2)
//	plotter.stop()
type PlotterAPI struct {
	plotter Plotter
}

// NewPlotterAPI registers the plotter table in the runtime.
func NewPlotterAPI(r *Runtime, p Plotter) (*PlotterAPI, error) {
	if p == nil {
		return nil, ErrNilPlotter
	}
	api := &PlotterAPI{plotter: p}

	table := rt.NewTable()
	api.register(table)
	r.SetGlobal("plotter", rt.TableValue(table))
	return api, nil
}

func (api *PlotterAPI) register(table *rt.Table) {
	set := func(name string, fn rt.GoFunctionFunc, nArgs int) {
		table.Set(rt.StringValue(name), rt.FunctionValue(newGoFunction(name, fn, nArgs)))
	}

	set("start", api.start, 0)
	set("stop", api.stop, 0)
	set("move_to", api.moveTo, 2)
	set("cut_to", api.cutTo, 2)
	set("curve_to", api.curveTo, 8)
	set("set_tool_width", api.setToolWidth, 1)
	set("dimensions", api.dimensions, 0)
	set("position", api.position, 0)
	set("is_running", api.isRunning, 0)
	set("reset", api.reset, 0)
}

// result converts a device error into the (true) or (false, message) pair.
func result(t *rt.Thread, c *rt.GoCont, err error) (rt.Cont, error) {
	if err != nil {
		return c.PushingNext(t.Runtime, rt.BoolValue(false), rt.StringValue(err.Error())), nil
	}
	return c.PushingNext1(t.Runtime, rt.BoolValue(true)), nil
}

// numberArgs reads n numeric arguments, accepting Lua integers and floats.
func numberArgs(c *rt.GoCont, name string, n int) ([]float64, error) {
	args := c.Args()
	if len(args) < n {
		return nil, fmt.Errorf("%s: expected %d arguments, got %d", name, n, len(args))
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if f, ok := args[i].TryFloat(); ok {
			out[i] = f
			continue
		}
		if v, ok := args[i].TryInt(); ok {
			out[i] = float64(v)
			continue
		}
		return nil, fmt.Errorf("%s: argument %d is not a number", name, i+1)
	}
	return out, nil
}

func (api *PlotterAPI) start(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
	return result(t, c, api.plotter.Start())
}

func (api *PlotterAPI) stop(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
	return result(t, c, api.plotter.Stop())
}

func (api *PlotterAPI) moveTo(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
	v, err := numberArgs(c, "move_to", 2)
	if err != nil {
		return nil, err
	}
	return result(t, c, api.plotter.MoveTo(device.Point{X: v[0], Y: v[1]}))
}

func (api *PlotterAPI) cutTo(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
	v, err := numberArgs(c, "cut_to", 2)
	if err != nil {
		return nil, err
	}
	return result(t, c, api.plotter.CutTo(device.Point{X: v[0], Y: v[1]}))
}

func (api *PlotterAPI) curveTo(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
	v, err := numberArgs(c, "curve_to", 8)
	if err != nil {
		return nil, err
	}
	return result(t, c, api.plotter.CurveTo(
		device.Point{X: v[0], Y: v[1]},
		device.Point{X: v[2], Y: v[3]},
		device.Point{X: v[4], Y: v[5]},
		device.Point{X: v[6], Y: v[7]},
	))
}

func (api *PlotterAPI) setToolWidth(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
	v, err := numberArgs(c, "set_tool_width", 1)
	if err != nil {
		return nil, err
	}
	return result(t, c, api.plotter.SetToolWidth(v[0]))
}

func (api *PlotterAPI) dimensions(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
	d := api.plotter.Dimensions()
	return c.PushingNext(t.Runtime, rt.FloatValue(d.X), rt.FloatValue(d.Y)), nil
}

func (api *PlotterAPI) position(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
	p := api.plotter.LogicalPosition()
	return c.PushingNext(t.Runtime, rt.FloatValue(p.X), rt.FloatValue(p.Y)), nil
}

func (api *PlotterAPI) isRunning(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
	return c.PushingNext1(t.Runtime, rt.BoolValue(api.plotter.IsRunning())), nil
}

func (api *PlotterAPI) reset(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
	return result(t, c, api.plotter.Reset())
}
