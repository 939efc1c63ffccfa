// Package morse implements the vendor-command backend (spec component E):
// a layer on top of pkg/backend/nl80211 that carries Morse Micro's
// OUI-scoped vendor commands and events, multiplexing batched subcommand
// records.
package morse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/morse-wifi/dcsd/pkg/backend"
	"github.com/morse-wifi/dcsd/pkg/backend/nl80211"
	"github.com/morse-wifi/dcsd/pkg/item"
	"github.com/morse-wifi/dcsd/pkg/logx"
)

// Backend multiplexes vendor subcommand batches over an nl80211.Backend.
type Backend struct {
	logger  *logx.Logger
	nl      *nl80211.Backend
	ifindex uint32
}

// New wraps an existing nl80211 backend for the given interface index.
func New(nlBackend *nl80211.Backend, ifindex uint32, logger *logx.Logger) *Backend {
	return &Backend{
		logger:  logger.WithComponent("backend.morse"),
		nl:      nlBackend,
		ifindex: ifindex,
	}
}

func (b *Backend) Name() string { return "morse-vendor" }

// SubmitBatch issues each record as its own NL80211_CMD_VENDOR command in
// order, collecting a Response per record. A non-zero status on any
// record is reported via errors.Join but does not stop later records from
// being issued.
func (b *Backend) SubmitBatch(ctx context.Context, records []Record) ([]Response, error) {
	responses := make([]Response, 0, len(records))
	var errs []error

	for _, rec := range records {
		req := nl80211.NewRequest(nl80211.CmdVendor, 0).
			AttrU32(nl80211.AttrIfindex, b.ifindex).
			AttrU32(nl80211.AttrVendorID, VendorID).
			AttrU32(nl80211.AttrVendorSubcmd, SubcmdToMorse).
			AttrBytes(nl80211.AttrVendorData, rec.encode())

		reply, err := b.nl.SubmitBlocking(ctx, req.Build())
		if err != nil {
			errs = append(errs, fmt.Errorf("morse: record %d: %w", rec.MessageID, err))
			continue
		}

		vendorData := item.Sibling(reply.Children, item.U32Key(nl80211.AttrVendorData))
		if vendorData == nil {
			errs = append(errs, fmt.Errorf("morse: record %d: no vendor data in reply", rec.MessageID))
			continue
		}
		resp, err := decodeResponse(vendorData.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("morse: record %d: %w", rec.MessageID, err))
			continue
		}
		responses = append(responses, resp)
		if resp.Status != 0 {
			errs = append(errs, &CommandFailedError{MessageID: resp.MessageID, Status: resp.Status})
		}
	}

	return responses, errors.Join(errs...)
}

// SubmitBlocking adapts SubmitBatch to the generic backend.Backend
// contract: request is the tree built by BuildBatchRequest, and the
// result is the tree built by buildBatchResponse.
func (b *Backend) SubmitBlocking(ctx context.Context, request *item.Item) (*item.Item, error) {
	records := decodeBatchRequest(request)
	responses, err := b.SubmitBatch(ctx, records)
	return buildBatchResponse(responses), err
}

// PumpAsync waits up to timeout for an OCS_DONE vendor event, filtering
// out any other nl80211 notification (mlme events, unrelated vendor
// subcommands) that arrives in the meantime.
func (b *Backend) PumpAsync(ctx context.Context, timeout time.Duration) (*item.Item, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, backend.ErrTimeout
		}
		evt, err := b.nl.PumpAsync(ctx, remaining)
		if err != nil {
			return nil, err
		}
		if IsOCSDoneEvent(evt) {
			return evt, nil
		}
	}
}

// IsOCSDoneEvent reports whether a raw nl80211 event is a Morse vendor
// OCS_DONE notification: VENDOR_ID must match and VENDOR_SUBCMD must
// equal SubcmdOCSDone (spec.md §4.E). Exported so the event engine's
// dispatcher can use it directly as a Matcher.
func IsOCSDoneEvent(evt *item.Item) bool {
	if evt == nil || evt.Key.U32 != nl80211.CmdVendor {
		return false
	}
	vendorID, ok := item.Sibling(evt.Children, item.U32Key(nl80211.AttrVendorID)).ValueU32()
	if !ok || uint32(vendorID) != VendorID {
		return false
	}
	subcmd, ok := item.Sibling(evt.Children, item.U32Key(nl80211.AttrVendorSubcmd)).ValueU32()
	return ok && subcmd == SubcmdOCSDone
}

var _ backend.Backend = (*Backend)(nil)
