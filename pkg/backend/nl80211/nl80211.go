// Package nl80211 implements the generic-netlink backend (spec component
// D): request/response and subscribed-group notifications against the
// kernel 802.11 config layer, grounded on github.com/mdlayher/genetlink
// and github.com/mdlayher/netlink the way the reference mdlayher/wifi
// client drives the same family.
package nl80211

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"github.com/morse-wifi/dcsd/pkg/backend"
	"github.com/morse-wifi/dcsd/pkg/item"
	"github.com/morse-wifi/dcsd/pkg/logx"
)

// Backend is a generic-netlink nl80211 client providing both blocking
// request/response and asynchronous multicast-group notifications.
type Backend struct {
	logger *logx.Logger

	mu        sync.Mutex
	reqConn   *genetlink.Conn
	familyID  uint16
	familyVer uint8

	evtMu    sync.Mutex
	evtConn  *genetlink.Conn
	groupIDs []uint32
}

// New dials a generic-netlink connection, resolves the nl80211 family, and
// returns a ready-to-use Backend. The asynchronous-notification connection
// is opened lazily on the first PumpAsync call.
func New(logger *logx.Logger) (*Backend, error) {
	conn, err := genetlink.Dial(nil)
	if err != nil {
		return nil, fmt.Errorf("nl80211: dial genetlink: %w", err)
	}
	for _, o := range []netlink.ConnOption{netlink.ExtendedAcknowledge, netlink.GetStrictCheck} {
		_ = conn.SetOption(o, true)
	}

	family, err := conn.GetFamily(GenlFamilyName)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("nl80211: resolve family %q: %w", GenlFamilyName, err)
	}

	return &Backend{
		logger:    logger.WithComponent("backend.nl80211"),
		reqConn:   conn,
		familyID:  family.ID,
		familyVer: family.Version,
	}, nil
}

func (b *Backend) Name() string { return "nl80211" }

// Close releases both the request and (if opened) the notification
// connections.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.reqConn != nil {
		b.reqConn.Close()
		b.reqConn = nil
	}
	b.mu.Unlock()

	b.evtMu.Lock()
	if b.evtConn != nil {
		b.evtConn.Close()
		b.evtConn = nil
	}
	b.evtMu.Unlock()
	return nil
}

// SubmitBlocking issues one nl80211 command built by Request.Build and
// returns the response attributes as a data-item tree keyed by the
// command id that was sent.
func (b *Backend) SubmitBlocking(ctx context.Context, request *item.Item) (*item.Item, error) {
	cmd, _ := request.Key.U32, true
	flagsVal, _ := request.ValueU32()

	ae := netlink.NewAttributeEncoder()
	for child := request.Children; child != nil; child = child.Next {
		ae.Bytes(uint16(child.Key.U32), child.Value)
	}
	data, err := ae.Encode()
	if err != nil {
		return nil, fmt.Errorf("nl80211: encode attrs: %w", err)
	}

	b.mu.Lock()
	conn := b.reqConn
	familyID, familyVer := b.familyID, b.familyVer
	b.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("nl80211: backend closed")
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	msgs, err := conn.Execute(genetlink.Message{
		Header: genetlink.Header{Command: uint8(cmd), Version: familyVer},
		Data:   data,
	}, familyID, netlink.Request|netlink.HeaderFlags(flagsVal))
	if err != nil {
		return nil, fmt.Errorf("nl80211: execute cmd %d: %w", cmd, err)
	}

	out := item.NewU32(item.U32Key(cmd), 0)
	var children *item.Item
	for _, msg := range msgs {
		attrs, err := netlink.UnmarshalAttributes(msg.Data)
		if err != nil {
			continue
		}
		children = item.Append(children, attrsToItem(attrs))
	}
	out.Children = children
	return out, nil
}

// openEventConn opens the dedicated multicast-notification connection and
// joins the mlme and vendor groups, with sequence checking disabled
// (spec.md §4.D).
func (b *Backend) openEventConn() (*genetlink.Conn, error) {
	b.evtMu.Lock()
	defer b.evtMu.Unlock()

	if b.evtConn != nil {
		return b.evtConn, nil
	}

	conn, err := genetlink.Dial(&netlink.Config{Strict: false})
	if err != nil {
		return nil, fmt.Errorf("nl80211: dial event conn: %w", err)
	}

	family, err := conn.GetFamily(GenlFamilyName)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("nl80211: resolve family for events: %w", err)
	}

	var ids []uint32
	for _, group := range family.Groups {
		if group.Name == MulticastGroupMLME || group.Name == MulticastGroupVendor {
			if err := conn.JoinGroup(group.ID); err != nil {
				conn.Close()
				return nil, fmt.Errorf("nl80211: join group %q: %w", group.Name, err)
			}
			ids = append(ids, group.ID)
		}
	}
	if len(ids) == 0 {
		conn.Close()
		return nil, fmt.Errorf("nl80211: neither %q nor %q multicast group available", MulticastGroupMLME, MulticastGroupVendor)
	}

	b.evtConn = conn
	b.groupIDs = ids
	return conn, nil
}

// PumpAsync blocks up to timeout for one multicast frame and converts it
// into an event item keyed by the generic-netlink command id, whose
// children are the parsed attributes.
func (b *Backend) PumpAsync(ctx context.Context, timeout time.Duration) (*item.Item, error) {
	if timeout > backend.MaxPumpTimeout {
		timeout = backend.MaxPumpTimeout
	}
	conn, err := b.openEventConn()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)

	msgs, _, err := conn.Receive()
	if err != nil {
		if isTimeout(err) {
			return nil, backend.ErrTimeout
		}
		return nil, fmt.Errorf("nl80211: receive: %w", err)
	}
	if len(msgs) == 0 {
		return nil, backend.ErrTimeout
	}

	out := item.NewU32(item.U32Key(uint32(msgs[0].Header.Command)), 0)
	var children *item.Item
	for _, msg := range msgs {
		attrs, err := netlink.UnmarshalAttributes(msg.Data)
		if err != nil {
			continue
		}
		children = item.Append(children, attrsToItem(attrs))
	}
	out.Children = children
	return out, nil
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}

// attrsToItem recurses a decoded attribute list into the data-item tree:
// an attribute whose payload itself parses as a complete, boundary-exact
// attribute stream is treated as nested; otherwise it becomes an opaque
// byte leaf (spec.md §4.D).
func attrsToItem(attrs []netlink.Attribute) *item.Item {
	var head *item.Item
	for _, a := range attrs {
		leaf := item.New(a.Data)
		leaf.Key = item.U32Key(uint32(a.Type))
		if nested, err := netlink.UnmarshalAttributes(a.Data); err == nil && len(nested) > 0 {
			leaf.Children = attrsToItem(nested)
		}
		head = item.Append(head, leaf)
	}
	return head
}

var _ backend.Backend = (*Backend)(nil)
var _ backend.Closer = (*Backend)(nil)
