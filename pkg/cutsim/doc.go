// Package cutsim provides an embeddable virtual cutting plotter.
//
// A Simulator accepts the commands a vinyl cutter or pen plotter would:
// start a run, move the tool, cut lines and Bezier curves, change the
// tool width, and stop. Cuts are rasterized onto a grayscale canvas which is
// saved to the output target when the run stops. Targets are local image
// files (PNG, JPEG, GIF, BMP, TIFF or PDF, chosen by extension) or ssh://
// URLs uploaded over SSH.
//
// # Quick Start
//
//	sim, err := cutsim.New("plotter.lua", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sim.Close()
//
//	sim.SetTarget("out/square.png")
//	sim.Start()
//	sim.MoveTo(cutsim.Point{X: 1, Y: 1})
//	sim.CutTo(cutsim.Point{X: 5, Y: 1})
//	sim.CutTo(cutsim.Point{X: 5, Y: 5})
//	if err := sim.Stop(); err != nil {
//		log.Printf("save failed: %v", err)
//	}
//
// # Jobs
//
// Lua job scripts drive the simulator through the global plotter table:
//
//	plotter.start()
//	plotter.set_tool_width(0.02)
//	plotter.move_to(1, 1)
//	plotter.curve_to(1, 1, 2, 0, 3, 2, 4, 1)
//	plotter.stop()
//
// RunJob executes a file once; WatchJob re-runs it whenever it is saved.
// Jobs run with CPU and memory limits set through Options.
//
// # Configuration
//
// Configuration files are Lua scripts that assign a cutsim.config table:
//
//	cutsim.config = {
//	    width = 6, height = 6,
//	    resolution = 100,
//	    output = "out/plot.png",
//	}
//
// # Observability
//
// Lifecycle events and errors are delivered to handlers registered with
// SetEventHandler and SetErrorHandler. Metrics can be published through
// expvar with Metrics().RegisterExpvar(), Health reports per-component
// status, and ErrorTracker aggregates categorized errors and raises
// alerts. Each run gets a RunID that appears in events, logs and tracked
// errors.
//
// # Thread Safety
//
// All Simulator methods are safe for concurrent use. Handlers run on their
// own goroutines; panics in them are recovered.
package cutsim
