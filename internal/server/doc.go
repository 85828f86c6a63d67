// Package server publishes console status changes to WebSocket clients.
//
// A Feed is registered as the callback for every watched device. Each change
// is sent as a JSON Event to every connected client, and a client that
// connects later first receives the latest event for each host:
//
//	{"type":"status","host":"192.168.1.20","state":"reachable","poll_count":0,
//	 "status":{"status_code":200,"status":"Ok","host-name":"Living Room"},
//	 "time":"2024-05-01T20:00:00Z"}
//
// Unreachable consoles produce an event of type "unreachable" with no status.
//
// # Usage Example
//
//	feed := server.NewFeed()
//	engine.AddCallback(device, feed.Publish)
//
//	srv := server.New(server.Config{Port: 8080}, feed)
//	if err := srv.Serve(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Routes
//
//   - /ws: WebSocket event stream
//   - /status: JSON array of the latest event per host
package server
