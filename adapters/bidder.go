package adapters

import (
	"encoding/json"
	"net/http"

	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/bidflare/exchange-core/currency"
	"github.com/bidflare/exchange-core/openrtb_ext"
)

// Bidder is the interface which bidder adapters implement.
//
// Adapters should not assume that they'll be called in any particular order, or that the
// MakeRequests and MakeBids calls will happen on the same goroutine.
type Bidder interface {
	// MakeRequests makes the HTTP requests which should be made to fetch bids.
	//
	// Bidder implementations can assume that the incoming BidRequest has passed validation
	// of the OpenRTB rules, and that any sanitization required by the host has been applied.
	//
	// nil return values are acceptable, but nil elements *inside* those slices are not.
	//
	// The errors should contain a description of the reason an expected request was not
	// generated. A non-empty request slice and a non-empty error slice may both be returned,
	// to describe partial success.
	MakeRequests(request *openrtb2.BidRequest, reqInfo *ExtraRequestInfo) ([]*RequestData, []error)

	// MakeBids unpacks the server's response into Bids.
	//
	// The bids can be nil (for no bids), but should not contain nil elements.
	//
	// The errors should contain a description of the reason a bid could not be parsed.
	// A non-empty bid list and a non-empty error list may both be returned, to describe
	// partial success.
	MakeBids(internalRequest *openrtb2.BidRequest, externalRequest *RequestData, response *ResponseData) (*BidderResponse, []error)
}

// RequestData packages together the fields needed to make an http.Request.
type RequestData struct {
	Params  map[string]string
	Method  string
	Uri     string
	Body    []byte
	Headers http.Header
	ImpIDs  []string
}

// ResponseData packages together information from the server's http.Response.
type ResponseData struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// ExtraRequestInfo contains request-scoped state an adapter may need while
// building its outgoing requests.
type ExtraRequestInfo struct {
	BidderCoreName             openrtb_ext.BidderName
	GlobalPrivacyControlHeader string
	CurrencyConversions        currency.Conversions
}

func NewExtraRequestInfo(c currency.Conversions) ExtraRequestInfo {
	return ExtraRequestInfo{
		CurrencyConversions: c,
	}
}

// ConvertCurrency converts a given amount to USD from a given currency.
func (r ExtraRequestInfo) ConvertCurrency(value float64, from string) (float64, error) {
	if rate, err := r.CurrencyConversions.GetRate(from, "USD"); err == nil {
		return value * rate, nil
	} else {
		return 0, err
	}
}

// BidderResponse carries all the bids a bidder produced for one outgoing request.
type BidderResponse struct {
	Currency string
	Bids     []*TypedBid
}

// NewBidderResponseWithBidsCapacity makes a BidderResponse with the given capacity.
func NewBidderResponseWithBidsCapacity(bidsCapacity int) *BidderResponse {
	return &BidderResponse{
		Currency: "USD",
		Bids:     make([]*TypedBid, 0, bidsCapacity),
	}
}

// NewBidderResponse makes a BidderResponse with zero bids.
func NewBidderResponse() *BidderResponse {
	return NewBidderResponseWithBidsCapacity(0)
}

// TypedBid packages the openrtb2.Bid with any bidder-specific information that
// the rest of the auction pipeline needs.
//
// TypedBid.Bid.Ext will become "response.seatbid[i].bid.ext.bidder" in the final OpenRTB response.
// TypedBid.BidMeta will become "response.seatbid[i].bid.ext.prebid.meta" in the final OpenRTB response.
// TypedBid.BidType will become "response.seatbid[i].bid.ext.prebid.type" in the final OpenRTB response.
// TypedBid.BidVideo will become "response.seatbid[i].bid.ext.prebid.video" in the final OpenRTB response.
type TypedBid struct {
	Bid          *openrtb2.Bid
	BidMeta      *openrtb_ext.ExtBidPrebidMeta
	BidType      openrtb_ext.BidType
	BidVideo     *openrtb_ext.ExtBidPrebidVideo
	BidTargets   map[string]string
	DealPriority int
	Seat         openrtb_ext.BidderName
}

// ExtImpBidder can be used by Bidders to unmarshal any request.imp[i].ext.
type ExtImpBidder struct {
	Prebid *openrtb_ext.ExtImpPrebid `json:"prebid"`

	// Bidder contains the bidder-specific extension. Bidders should unmarshal this
	// using their corresponding openrtb_ext.ImpExt{Bidder} struct.
	//
	// For example, the Appnexus Bidder should unmarshal this with an openrtb_ext.ExtImpAppnexus object.
	Bidder json.RawMessage `json:"bidder"`
}
