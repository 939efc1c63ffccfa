package hostapd

import (
	"fmt"

	"github.com/morse-wifi/dcsd/pkg/item"
)

// StatusRequest builds the AP STATUS command.
func StatusRequest() *item.Item {
	return item.New([]byte("STATUS"))
}

// ChanSwitchRequest builds the CHAN_SWITCH command described in spec.md
// §4.H/§6.
func ChanSwitchRequest(count int, primaryCentreKHz uint32, primaryBandwidth int, secChannelOffset int, centreFreq1KHz uint32, bandwidthMHz int) *item.Item {
	line := fmt.Sprintf(
		"CHAN_SWITCH %d %d prim_bandwidth=%d sec_channel_offset=%d center_freq1=%d bandwidth=%d",
		count, primaryCentreKHz, primaryBandwidth, secChannelOffset, centreFreq1KHz, bandwidthMHz,
	)
	return item.New([]byte(line))
}

// IsOK reports whether a control-socket reply's first key is literally
// "OK".
func IsOK(reply *item.Item) bool {
	return reply != nil && reply.Key.Kind == item.KeyKindString && reply.Key.String == "OK"
}
