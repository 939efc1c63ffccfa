package morse

import (
	"encoding/binary"

	"github.com/morse-wifi/dcsd/pkg/item"
)

// Vendor command message ids (spec.md §6).
const (
	MsgGetAvailableChannels uint16 = 1
	MsgOCSDriver            uint16 = 2
)

// AvailableChannel is one entry of the GET_AVAILABLE_CHANNELS response.
type AvailableChannel struct {
	S1GChannelNumber uint8
	CentreFreqKHz    uint32
	BandwidthMHz     uint8
}

// DecodeAvailableChannels parses {num_channels, channels[]} from a
// GET_AVAILABLE_CHANNELS response payload. Each channel entry is encoded
// as {s1g_channel_number u8, centre_freq_khz u32 LE, bandwidth_mhz u8},
// padded to 8 bytes for alignment.
func DecodeAvailableChannels(data []byte) []AvailableChannel {
	const entrySize = 8
	if len(data) < 4 {
		return nil
	}
	n := binary.LittleEndian.Uint32(data[0:4])
	body := data[4:]
	out := make([]AvailableChannel, 0, n)
	for i := uint32(0); i < n && int((i+1)*entrySize) <= len(body); i++ {
		entry := body[i*entrySize : (i+1)*entrySize]
		out = append(out, AvailableChannel{
			S1GChannelNumber: entry[0],
			CentreFreqKHz:    binary.LittleEndian.Uint32(entry[1:5]),
			BandwidthMHz:     entry[5],
		})
	}
	return out
}

// OCSDriverPayload is the request payload carried by the OCS_DRIVER
// subcommand.
type OCSDriverPayload struct {
	OpChannelFreqHz   uint32
	OpChannelBWMHz    uint8
	PriChannelBWMHz   uint8
	Pri1MHzChannelIdx uint8
}

func (p OCSDriverPayload) Encode() []byte {
	buf := make([]byte, 7)
	binary.LittleEndian.PutUint32(buf[0:4], p.OpChannelFreqHz)
	buf[4] = p.OpChannelBWMHz
	buf[5] = p.PriChannelBWMHz
	buf[6] = p.Pri1MHzChannelIdx
	return buf
}

// BuildGetAvailableChannelsRecord builds the record for the
// GET_AVAILABLE_CHANNELS vendor subcommand.
func BuildGetAvailableChannelsRecord() Record {
	return Record{MessageID: MsgGetAvailableChannels}
}

// BuildOCSDriverRecord builds the record commanding an off-channel scan.
func BuildOCSDriverRecord(p OCSDriverPayload) Record {
	return Record{MessageID: MsgOCSDriver, Payload: p.Encode()}
}

// BuildBatchRequest wraps records as the generic data-item request this
// backend's SubmitBlocking expects: a string-keyed "vendor_batch" item
// whose children are one opaque leaf per record (pre-encoded bytes).
func BuildBatchRequest(records []Record) *item.Item {
	out := item.New(nil)
	out.Key = item.StringKey("vendor_batch")
	var children *item.Item
	for _, r := range records {
		leaf := item.New(r.encode())
		leaf.Key = item.U32Key(uint32(r.MessageID))
		children = item.Append(children, leaf)
	}
	out.Children = children
	return out
}

func decodeBatchRequest(request *item.Item) []Record {
	var records []Record
	for child := request.Children; child != nil; child = child.Next {
		buf := child.Value
		if len(buf) < 6 {
			continue
		}
		messageID := binary.LittleEndian.Uint16(buf[0:2])
		length := binary.LittleEndian.Uint16(buf[2:4])
		payload := buf[6:]
		if int(length) <= len(payload) {
			payload = payload[:length]
		}
		records = append(records, Record{MessageID: messageID, Payload: payload})
	}
	return records
}

func buildBatchResponse(responses []Response) *item.Item {
	out := item.New(nil)
	out.Key = item.StringKey("vendor_batch")
	var children *item.Item
	for _, r := range responses {
		leaf := item.New(r.Data)
		leaf.Key = item.U32Key(uint32(r.MessageID))
		children = item.Append(children, leaf)
	}
	out.Children = children
	return out
}
