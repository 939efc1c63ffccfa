// Command dcsctl is a thin operator CLI: it opens its own short-lived
// connection to the hostapd control socket and prints the parsed STATUS
// reply, without touching the running daemon's own connection.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/morse-wifi/dcsd/pkg/backend/hostapd"
	"github.com/morse-wifi/dcsd/pkg/item"
	"github.com/morse-wifi/dcsd/pkg/logx"
)

var (
	ctrlPath  = flag.String("ctrl-path", "/var/run/hostapd", "Directory holding the hostapd control socket")
	ifaceName = flag.String("interface", "wlan0", "Interface name, used as the control socket's filename")
	timeout   = flag.Duration("timeout", 5*time.Second, "Request timeout")
	version   = flag.Bool("version", false, "Show version information")
)

const (
	appName    = "dcsctl"
	appVersion = "1.0.0"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		return
	}

	logger := logx.NewLogger("error", appName)
	ap := hostapd.New(*ctrlPath, *ifaceName, logger)
	defer ap.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	reply, err := ap.SubmitBlocking(ctx, hostapd.StatusRequest())
	if err != nil {
		fmt.Fprintf(os.Stderr, "dcsctl: STATUS request failed: %v\n", err)
		os.Exit(1)
	}

	printStatus(reply)
}

// printStatus walks the STATUS reply's sibling chain, printing each
// key=value pair in the order hostapd sent them.
func printStatus(reply *item.Item) {
	for cur := reply; cur != nil; cur = cur.Next {
		fmt.Printf("%s=%s\n", cur.Key.String_(), cur.ValueString())
	}
}
