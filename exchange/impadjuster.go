package exchange

import (
	"github.com/prebid/openrtb/v20/openrtb2"
)

// ImpAdjuster rewrites bidder specific imp fields, such as floor currency
// conversions or param tweaks, on the outgoing bidder request. Implementations
// must treat the given imp as read-only and return a copy when changing
// anything.
type ImpAdjuster interface {
	Adjust(imp *openrtb2.Imp, bidder string) (*openrtb2.Imp, error)
}

// NilImpAdjuster returns imps unchanged.
type NilImpAdjuster struct{}

func (NilImpAdjuster) Adjust(imp *openrtb2.Imp, bidder string) (*openrtb2.Imp, error) {
	return imp, nil
}
