package ortb

import (
	"github.com/prebid/openrtb/v20/openrtb2"
)

// RequestConverter rewrites a bid request into the OpenRTB version a bidder
// expects before handoff. Implementations must not retain the request.
type RequestConverter interface {
	Convert(bidRequest *openrtb2.BidRequest) error
}

// NopConverter leaves the request at its incoming OpenRTB version.
type NopConverter struct{}

func (NopConverter) Convert(bidRequest *openrtb2.BidRequest) error {
	return nil
}
