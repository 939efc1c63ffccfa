// Package item implements the generic self-describing key/value tree that
// every backend (pkg/backend/hostapd, pkg/backend/nl80211,
// pkg/backend/morse) returns to the event engine and the DCS core: a node
// carries a key (string or u32), an optional opaque byte value, an
// optional child chain, and a sibling pointer.
package item

import (
	"bytes"
	"fmt"
)

// KeyKind distinguishes the two key representations a node may carry.
type KeyKind int

const (
	// KeyKindNone marks a node used purely as a list element (no key).
	KeyKindNone KeyKind = iota
	KeyKindString
	KeyKindU32
)

// Key identifies an Item within its sibling sequence.
type Key struct {
	Kind   KeyKind
	String string
	U32    uint32
}

// StringKey builds a string-typed Key.
func StringKey(s string) Key { return Key{Kind: KeyKindString, String: s} }

// U32Key builds a u32-typed Key.
func U32Key(v uint32) Key { return Key{Kind: KeyKindU32, U32: v} }

// Equal reports whether two keys identify the same item.
func (k Key) Equal(other Key) bool {
	if k.Kind != other.Kind {
		return false
	}
	switch k.Kind {
	case KeyKindString:
		return k.String == other.String
	case KeyKindU32:
		return k.U32 == other.U32
	default:
		return true
	}
}

func (k Key) String_() string {
	switch k.Kind {
	case KeyKindString:
		return k.String
	case KeyKindU32:
		return fmt.Sprintf("#%d", k.U32)
	default:
		return "<none>"
	}
}

// Item is one node of the data-item tree. The zero value is a valid,
// empty, keyless leaf.
type Item struct {
	Key      Key
	Value    []byte
	Children *Item // head of the child chain, or nil
	Next     *Item // next sibling, or nil
}

// New creates a keyless leaf item holding value.
func New(value []byte) *Item {
	return &Item{Value: value}
}

// NewString creates a string-keyed leaf item.
func NewString(key Key, value string) *Item {
	return &Item{Key: key, Value: []byte(value)}
}

// NewU32 creates a leaf item whose value is a little-endian uint32.
func NewU32(key Key, value uint32) *Item {
	return &Item{Key: key, Value: encodeU32(value)}
}

func encodeU32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// ValueString returns the item's value interpreted as a string.
func (it *Item) ValueString() string {
	if it == nil {
		return ""
	}
	return string(it.Value)
}

// ValueU32 decodes the item's value as a little-endian uint32.
func (it *Item) ValueU32() (uint32, bool) {
	if it == nil || len(it.Value) < 4 {
		return 0, false
	}
	v := uint32(it.Value[0]) | uint32(it.Value[1])<<8 | uint32(it.Value[2])<<16 | uint32(it.Value[3])<<24
	return v, true
}

// Append adds item to the end of the sibling chain rooted at head,
// returning the (possibly new) head.
func Append(head, it *Item) *Item {
	if head == nil {
		return it
	}
	cur := head
	for cur.Next != nil {
		cur = cur.Next
	}
	cur.Next = it
	return head
}

// Sibling returns the first item in the sibling chain starting at head
// whose key equals key, or nil.
func Sibling(head *Item, key Key) *Item {
	for cur := head; cur != nil; cur = cur.Next {
		if cur.Key.Equal(key) {
			return cur
		}
	}
	return nil
}

// Nth returns the nth (zero-indexed) item in the sibling chain starting
// at head, or nil if the chain is shorter.
func Nth(head *Item, n int) *Item {
	cur := head
	for i := 0; cur != nil && i < n; i++ {
		cur = cur.Next
	}
	return cur
}

// ChildPath walks nested u32-keyed children: the first key is looked up
// among head's siblings, then each subsequent key is looked up among the
// previous match's children. Returns nil if any step fails to match.
func ChildPath(head *Item, keys ...uint32) *Item {
	if len(keys) == 0 {
		return nil
	}
	cur := Sibling(head, U32Key(keys[0]))
	for _, k := range keys[1:] {
		if cur == nil {
			return nil
		}
		cur = Sibling(cur.Children, U32Key(k))
	}
	return cur
}

// HasFlag reports whether the item's string value contains token bracketed
// as "[token]" among a sequence of bracketed flags, e.g. the AP STATUS
// field "flags=[AUTH][ASSOC]" contains the "ASSOC" flag.
func (it *Item) HasFlag(token string) bool {
	if it == nil {
		return false
	}
	needle := []byte("[" + token + "]")
	return bytes.Contains(it.Value, needle)
}

// Count returns the number of siblings in the chain starting at head.
func Count(head *Item) int {
	n := 0
	for cur := head; cur != nil; cur = cur.Next {
		n++
	}
	return n
}
