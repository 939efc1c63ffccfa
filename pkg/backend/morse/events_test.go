package morse

import (
	"testing"

	"github.com/morse-wifi/dcsd/pkg/backend/nl80211"
	"github.com/morse-wifi/dcsd/pkg/item"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vendorEvent(vendorID, subcmd uint32, data []byte) *item.Item {
	evt := item.NewU32(item.U32Key(nl80211.CmdVendor), 0)
	children := item.Append(nil, item.NewU32(item.U32Key(nl80211.AttrVendorID), vendorID))
	children = item.Append(children, item.NewU32(item.U32Key(nl80211.AttrVendorSubcmd), subcmd))
	children = item.Append(children, itemWithData(data))
	evt.Children = children
	return evt
}

func itemWithData(data []byte) *item.Item {
	leaf := item.New(data)
	leaf.Key = item.U32Key(nl80211.AttrVendorData)
	return leaf
}

func TestIsOCSDoneEventRequiresVendorIDAndSubcmd(t *testing.T) {
	evt := vendorEvent(VendorID, SubcmdOCSDone, make([]byte, 18))
	assert.True(t, IsOCSDoneEvent(evt))

	wrongVendor := vendorEvent(VendorID+1, SubcmdOCSDone, make([]byte, 18))
	assert.False(t, IsOCSDoneEvent(wrongVendor))

	wrongSubcmd := vendorEvent(VendorID, SubcmdOCSDone+1, make([]byte, 18))
	assert.False(t, IsOCSDoneEvent(wrongSubcmd))

	assert.False(t, IsOCSDoneEvent(nil))
}

func TestDecodeOCSDoneParsesFixedLayout(t *testing.T) {
	payload := []byte{
		75,                          // metric
		0xF6,                        // noise = -10 as int8
		10, 0, 0, 0, 0, 0, 0, 0,     // time_listen_us = 10
		20, 0, 0, 0, 0, 0, 0, 0,     // time_rx_us = 20
	}
	evt := vendorEvent(VendorID, SubcmdOCSDone, payload)

	decoded, err := DecodeOCSDone(evt)
	require.NoError(t, err)
	assert.Equal(t, uint8(75), decoded.Metric)
	assert.Equal(t, int8(-10), decoded.Noise)
	assert.Equal(t, uint64(10), decoded.TimeListenUS)
	assert.Equal(t, uint64(20), decoded.TimeRxUS)
}

func TestDecodeOCSDoneErrorsOnShortPayload(t *testing.T) {
	evt := vendorEvent(VendorID, SubcmdOCSDone, []byte{1, 2, 3})
	_, err := DecodeOCSDone(evt)
	assert.Error(t, err)
}
