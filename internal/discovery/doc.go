// Package discovery advertises and finds psddp status feeds over mDNS.
//
// A running "psddp watch --serve" can announce its WebSocket feed as a
// "_psddp._tcp" service so dashboards on the same network find it without
// configuration. Consoles themselves are found with DDP, not mDNS.
//
// # Usage Example
//
//	ad, err := discovery.Advertise("psddp on pi", 8080, map[string]string{
//	    discovery.TXTVersion: version.Short(),
//	    discovery.TXTPath:    "/ws",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ad.Shutdown()
//
//	feeds, err := discovery.ScanForFeeds(ctx, 5*time.Second)
//	for _, feed := range feeds {
//	    fmt.Println(feed.Instance, feed.URL())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Firewall must allow mDNS (UDP port 5353)
package discovery
