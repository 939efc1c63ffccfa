package nl80211

import (
	"fmt"

	"github.com/morse-wifi/dcsd/pkg/item"
)

// IsChSwitchNotifyEvent reports whether a raw event produced by
// Backend.PumpAsync is an NL80211_CMD_CH_SWITCH_NOTIFY notification.
// Exported so the event engine's dispatcher can use it directly as a
// Matcher, the same way morse.IsOCSDoneEvent is used for vendor events.
func IsChSwitchNotifyEvent(evt *item.Item) bool {
	return evt != nil && evt.Key.U32 == CmdChSwitchNotify
}

// DecodeChSwitchNotify extracts the landing centre frequency, in kHz,
// from a CH_SWITCH_NOTIFY event. NL80211_ATTR_WIPHY_FREQ is carried in
// MHz; dcsd's frequencies are all in kHz (spec.md §3), so the value is
// scaled on the way out.
func DecodeChSwitchNotify(evt *item.Item) (freqKHz uint32, err error) {
	freq := item.Sibling(evt.Children, item.U32Key(AttrWiphyFreq))
	mhz, ok := freq.ValueU32()
	if !ok {
		return 0, fmt.Errorf("nl80211: CH_SWITCH_NOTIFY missing WIPHY_FREQ attribute")
	}
	return mhz * 1000, nil
}
