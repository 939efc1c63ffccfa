package morse

import (
	"encoding/binary"
	"fmt"

	"github.com/morse-wifi/dcsd/pkg/backend/nl80211"
	"github.com/morse-wifi/dcsd/pkg/item"
)

// OCSDoneEvent is the decoded payload of an OCS_DONE vendor event
// (spec.md §6): {metric u8, noise i8, time_listen_us u64 LE, time_rx_us
// u64 LE}.
type OCSDoneEvent struct {
	Metric       uint8
	Noise        int8
	TimeListenUS uint64
	TimeRxUS     uint64
}

// DecodeOCSDone extracts the OCS_DONE payload from a raw vendor event
// produced by Backend.PumpAsync.
func DecodeOCSDone(evt *item.Item) (OCSDoneEvent, error) {
	data := item.Sibling(evt.Children, item.U32Key(nl80211.AttrVendorData))
	if data == nil || len(data.Value) < 18 {
		return OCSDoneEvent{}, fmt.Errorf("morse: malformed OCS_DONE payload")
	}
	buf := data.Value
	return OCSDoneEvent{
		Metric:       buf[0],
		Noise:        int8(buf[1]),
		TimeListenUS: binary.LittleEndian.Uint64(buf[2:10]),
		TimeRxUS:     binary.LittleEndian.Uint64(buf[10:18]),
	}, nil
}
