package nl80211

import (
	"encoding/binary"

	"github.com/mdlayher/netlink"
	"github.com/morse-wifi/dcsd/pkg/item"
)

// Request is a typed builder for an nl80211 command, per spec.md §9's
// suggestion to expose per-backend typed builders that the engine's
// generic SubmitBlocking path then consumes as an *item.Item.
type Request struct {
	command uint8
	flags   netlink.HeaderFlags
	attrs   []attr
}

type attr struct {
	id   uint16
	data []byte
}

// NewRequest starts building a command request.
func NewRequest(command uint8, flags netlink.HeaderFlags) *Request {
	return &Request{command: command, flags: flags}
}

// AttrU32 appends a little-endian uint32 attribute.
func (r *Request) AttrU32(id uint16, v uint32) *Request {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	r.attrs = append(r.attrs, attr{id: id, data: b})
	return r
}

// AttrBytes appends an opaque byte-slice attribute.
func (r *Request) AttrBytes(id uint16, v []byte) *Request {
	r.attrs = append(r.attrs, attr{id: id, data: v})
	return r
}

// Build converts the request into the generic data-item tree shape the
// event engine and core operate on: an outer item keyed by the command id
// (U32), value holding the header flags (u32 LE), and one child item per
// attribute (U32-keyed by attribute id, opaque byte value).
func (r *Request) Build() *item.Item {
	out := item.NewU32(item.U32Key(uint32(r.command)), uint32(r.flags))
	var children *item.Item
	for _, a := range r.attrs {
		child := item.New(a.data)
		child.Key = item.U32Key(uint32(a.id))
		children = item.Append(children, child)
	}
	out.Children = children
	return out
}

func (r *Request) encodeAttrs() (*netlink.AttributeEncoder, error) {
	ae := netlink.NewAttributeEncoder()
	for _, a := range r.attrs {
		ae.Bytes(a.id, a.data)
	}
	return ae, nil
}
