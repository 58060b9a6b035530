package floors

import (
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/bidflare/exchange-core/config"
	"github.com/bidflare/exchange-core/currency"
)

// Price holds an imp floor at the time the bidder requests were built, used for
// rejection diagnostics after floor values have been adjusted downstream.
type Price struct {
	FloorMin    float64
	FloorMinCur string
}

// Enricher resolves price floors for a request and updates imp.bidfloor and
// imp.bidfloorcur in place. Implementations own floor data selection and rule
// matching; the auction core only invokes the boundary.
type Enricher interface {
	EnrichWithPriceFloors(bidRequest *openrtb2.BidRequest, account config.Account, conversions currency.Conversions) []error
}

// NilEnricher leaves every imp floor untouched.
type NilEnricher struct{}

func (NilEnricher) EnrichWithPriceFloors(bidRequest *openrtb2.BidRequest, account config.Account, conversions currency.Conversions) []error {
	return nil
}

// RequestFloors snapshots the floors of every imp in the request.
func RequestFloors(bidRequest *openrtb2.BidRequest) map[string]Price {
	if bidRequest == nil || len(bidRequest.Imp) == 0 {
		return nil
	}

	floors := make(map[string]Price, len(bidRequest.Imp))
	for _, imp := range bidRequest.Imp {
		floors[imp.ID] = Price{FloorMin: imp.BidFloor, FloorMinCur: imp.BidFloorCur}
	}
	return floors
}
