package morse

import "encoding/binary"

// FlagRequest is the only flag value the core sends; replies carry a
// status word instead of this flag.
const FlagRequest uint16 = 0x0001

// VendorID is Morse Micro's OUI-scoped vendor id carried on every vendor
// netlink command and event (spec.md §4.E).
const VendorID uint32 = 0x0CBF74

// Vendor subcommand ids (spec.md §6).
const (
	SubcmdToMorse   uint32 = 0
	SubcmdOCSDone   uint32 = 1
	SubcmdOCSDriver uint32 = 1
)

// Record is one vendor subcommand record, batched per spec.md §4.E.
type Record struct {
	MessageID uint16
	Payload   []byte
}

// encode serialises a record as
// {message_id u16 LE, length u16 LE, flags u16 LE, payload}.
func (r Record) encode() []byte {
	buf := make([]byte, 6+len(r.Payload))
	binary.LittleEndian.PutUint16(buf[0:2], r.MessageID)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(r.Payload)))
	binary.LittleEndian.PutUint16(buf[4:6], FlagRequest)
	copy(buf[6:], r.Payload)
	return buf
}

// Response is the decoded reply to one Record.
type Response struct {
	MessageID uint16
	Status    int16
	Data      []byte
}

// decodeResponse parses {message_id u16 LE, length u16 LE, flags u16 LE,
// status i16 LE, data[length]} out of a VENDOR_DATA payload.
func decodeResponse(buf []byte) (Response, error) {
	if len(buf) < 8 {
		return Response{}, errShortResponse
	}
	messageID := binary.LittleEndian.Uint16(buf[0:2])
	length := binary.LittleEndian.Uint16(buf[2:4])
	status := int16(binary.LittleEndian.Uint16(buf[6:8]))
	data := buf[8:]
	if int(length) <= len(data) {
		data = data[:length]
	}
	return Response{MessageID: messageID, Status: status, Data: data}, nil
}
