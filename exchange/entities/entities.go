package entities

import (
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/bidflare/exchange-core/openrtb_ext"
)

// PbsOrtbSeatBid is a SeatBid returned by an AdaptedBidder.
//
// This is distinct from the openrtb2.SeatBid so that the exchange
// ext can be passed back with typesafety.
type PbsOrtbSeatBid struct {
	// Bids is the list of bids which this AdaptedBidder wishes to make.
	Bids []*PbsOrtbBid
	// Currency is the currency in which the bids are made.
	// Should be a valid currency ISO code.
	Currency string
	// HttpCalls is the list of debugging info. It should only be populated if the request.test == 1.
	// This will become response.ext.debug.httpcalls.{bidder} on the final Response.
	HttpCalls []*openrtb_ext.ExtHttpCall
	// Seat defines whom these extra bids belong to.
	Seat string
}

// PbsOrtbBid is a Bid returned by an AdaptedBidder.
//
// PbsOrtbBid.Bid.Ext will become "response.seatbid[i].bid.ext.bidder" in the final OpenRTB response.
// PbsOrtbBid.BidMeta will become "response.seatbid[i].bid.ext.prebid.meta" in the final OpenRTB response.
// PbsOrtbBid.BidType will become "response.seatbid[i].bid.ext.prebid.type" in the final OpenRTB response.
// PbsOrtbBid.BidTargets does not need to be filled out by the Bidder. It will be set later by the exchange.
// PbsOrtbBid.BidVideo is optional but should be filled out by the Bidder if bid is video type.
// PbsOrtbBid.DealPriority is optionally provided by adapters and used internally by the exchange to support deal targeted campaigns.
// PbsOrtbBid.GeneratedBidID is unique bid id generated by prebid server if generate bid id option is enabled in config
type PbsOrtbBid struct {
	Bid            *openrtb2.Bid
	BidMeta        *openrtb_ext.ExtBidPrebidMeta
	BidType        openrtb_ext.BidType
	BidTargets     map[string]string
	BidVideo       *openrtb_ext.ExtBidPrebidVideo
	BidFloors      *PriceFloorInfo
	DealPriority   int
	GeneratedBidID string
	OriginalBidCPM float64
	OriginalBidCur string
	AdapterCode    openrtb_ext.BidderName
}

// PriceFloorInfo carries the floor the imp advertised when the bidder request
// was built, kept for rejection diagnostics.
type PriceFloorInfo struct {
	FloorValue    float64
	FloorCurrency string
}
