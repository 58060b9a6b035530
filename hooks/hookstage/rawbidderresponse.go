package hookstage

import (
	"github.com/bidflare/exchange-core/adapters"
)

// RawBidderResponsePayload consists of a bidder's response to a call.
// Hooks are allowed to modify or reject bids.
//
// Rejection results in ignoring the bidder's response.
type RawBidderResponsePayload struct {
	BidderResponse *adapters.BidderResponse
	Bidder         string
}
