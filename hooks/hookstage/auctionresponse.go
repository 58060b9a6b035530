package hookstage

import (
	"github.com/prebid/openrtb/v20/openrtb2"
)

// AuctionResponsePayload consists of the final openrtb2.BidResponse
// object. Hooks are allowed to modify the response in place, including
// the response extension, except the ext.prebid.modules object.
//
// This stage can not reject the response, rejection is documented as a
// no-op for remaining hooks.
type AuctionResponsePayload struct {
	BidResponse *openrtb2.BidResponse
}
