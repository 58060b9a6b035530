package hookstage

import (
	"github.com/prebid/openrtb/v20/openrtb2"
)

// BidderRequestPayload consists of the openrtb2.BidRequest object
// distilled for the particular bidder.
// Hooks are allowed to modify the openrtb2.BidRequest in place.
//
// Rejection results in skipping the bidder's request.
type BidderRequestPayload struct {
	BidRequest *openrtb2.BidRequest
	Bidder     string
}
