// Package ddp implements the Device Discovery Protocol used to find and monitor
// PlayStation consoles on the local network.
//
// DDP is a small text protocol carried over UDP. A client sends a request to
// port 987 on the console and the console answers with a pseudo-HTTP status
// block describing its power state and the running application.
//
// # Wire Format
//
// Outgoing requests are line-delimited ASCII:
//
//	SRCH * HTTP/1.1
//	device-discovery-protocol-version:00020020
//
// WAKEUP and LAUNCH requests carry the user credential as extra headers
// before the version line. Responses look like:
//
//	HTTP/1.1 200 Ok
//	host-id:0123456789AB
//	host-name:PS5-Living-Room
//	running-app-name:Game: The Subtitle
//	running-app-titleid:PPSA01234
//
// Status code 200 means the console is on, 620 means it is in standby.
//
// # Engine
//
// Engine owns one UDP socket and tracks any number of Device records. Callers
// decide when to poll; the engine counts unanswered polls, marks a device
// unreachable once the count passes MaxPolls, and suppresses polls for a
// while after a console drops from 200 to 620, since consoles ignore polls
// right after entering standby.
//
//	engine, err := ddp.Listen(ddp.DefaultLocalPort)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//	go engine.Serve(ctx)
//
//	device := ddp.NewDevice("192.168.1.20")
//	engine.AddCallback(device, func(d *ddp.Device) {
//	    fmt.Println(d.Host(), d.State(), d.Status())
//	})
//	engine.SendPoll(device)
//
// Callbacks run synchronously on the goroutine that caused them: the Serve
// loop for status changes, the SendPoll caller for the unreachable
// transition. They may add or remove callbacks.
//
// # One-shot Client
//
// Client performs a blocking search with a timeout, for scripts and CLI
// commands that do not need a standing engine. It also sends WAKEUP and
// LAUNCH requests.
package ddp
