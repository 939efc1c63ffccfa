package dcs

import (
	"strconv"

	"github.com/morse-wifi/dcsd/pkg/item"
)

// statusFields is the subset of AP STATUS key=value pairs the core reads
// (spec.md §4.G): s1g_freq, s1g_bw, s1g_prim_chwidth, s1g_prim_1mhz_chan_index,
// beacon_int, dtim_period, freq.
type statusFields struct {
	freqKHz          uint32
	bandwidthMHz     int
	primaryWidthMHz  int
	primary1MHzIndex int
	beaconIntervalTU int
	dtimPeriod       int
}

// statusS1GFreq reports whether the AP has reached ENABLED, i.e.
// s1g_freq != -1.
func statusS1GFreq(reply *item.Item) (int, bool) {
	field := item.Sibling(reply, item.StringKey("s1g_freq"))
	if field == nil {
		return 0, false
	}
	v, err := strconv.Atoi(field.ValueString())
	if err != nil {
		return 0, false
	}
	return v, v != -1
}

// parseStatus extracts every field the scheduler's operating-state
// bookkeeping needs from a STATUS reply.
func parseStatus(reply *item.Item) (statusFields, bool) {
	freq, ok := requireInt(reply, "freq")
	if !ok {
		return statusFields{}, false
	}
	bw, ok := requireInt(reply, "s1g_bw")
	if !ok {
		return statusFields{}, false
	}
	primWidth, ok := requireInt(reply, "s1g_prim_chwidth")
	if !ok || (primWidth != 1 && primWidth != 2) {
		return statusFields{}, false
	}
	primIdx, ok := requireInt(reply, "s1g_prim_1mhz_chan_index")
	if !ok {
		return statusFields{}, false
	}
	beaconInt, ok := requireInt(reply, "beacon_int")
	if !ok {
		return statusFields{}, false
	}
	dtim, ok := requireInt(reply, "dtim_period")
	if !ok {
		return statusFields{}, false
	}

	return statusFields{
		freqKHz:          uint32(freq),
		bandwidthMHz:     bw,
		primaryWidthMHz:  primWidth,
		primary1MHzIndex: primIdx,
		beaconIntervalTU: beaconInt,
		dtimPeriod:       dtim,
	}, true
}

func requireInt(reply *item.Item, key string) (int, bool) {
	field := item.Sibling(reply, item.StringKey(key))
	if field == nil {
		return 0, false
	}
	v, err := strconv.Atoi(field.ValueString())
	if err != nil {
		return 0, false
	}
	return v, true
}

// decodeBatchReplyPayload extracts the raw response payload for
// messageID from a vendor batch reply built by morse's
// buildBatchResponse.
func decodeBatchReplyPayload(reply *item.Item, messageID uint32) []byte {
	leaf := item.Sibling(reply.Children, item.U32Key(messageID))
	if leaf == nil {
		return nil
	}
	return leaf.Value
}
