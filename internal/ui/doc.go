// Package ui renders console status for the psddp CLI.
//
// One-shot commands (search, status, wakeup) print through a Printer, which
// falls back to plain tab-separated output when stdout is not a terminal so
// the output stays scriptable. The watch command runs WatchModel, a Bubble
// Tea screen fed with DeviceMsg values from engine callbacks:
//
//	m := ui.NewWatchModel(hosts, registry.GameTitle)
//	err := ui.Run(ctx, m, func(p *tea.Program) {
//	    for _, d := range devices {
//	        engine.AddCallback(d, func(d *ddp.Device) {
//	            p.Send(ui.DeviceMessage(d))
//	        })
//	    }
//	})
//
// Logging is silent unless PSDDP_LOG_LEVEL is set, so zap output does not
// tear the screen.
package ui
