package exchange

import (
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/bidflare/exchange-core/adapters"
	"github.com/bidflare/exchange-core/openrtb_ext"
)

// MediaTypeProcessor filters a bidder response down to the media types the
// host can serve. Bids it removes come back described by the returned errors,
// which surface as warnings on the seat bid rather than silent drops. It must
// not mutate the request.
type MediaTypeProcessor interface {
	ProcessBidderResponse(bidRequest *openrtb2.BidRequest, bidderName openrtb_ext.BidderName, response *adapters.BidderResponse) (*adapters.BidderResponse, []error)
}

// NilMediaTypeProcessor accepts every media type.
type NilMediaTypeProcessor struct{}

func (NilMediaTypeProcessor) ProcessBidderResponse(bidRequest *openrtb2.BidRequest, bidderName openrtb_ext.BidderName, response *adapters.BidderResponse) (*adapters.BidderResponse, []error) {
	return response, nil
}
