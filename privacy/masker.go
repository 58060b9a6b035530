package privacy

import (
	"context"

	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/bidflare/exchange-core/config"
)

// UserDevice carries the user and device objects a bidder would receive before masking.
type UserDevice struct {
	User   *openrtb2.User
	Device *openrtb2.Device
}

// BidderPrivacyResult is the masking outcome for a single bidder.
type BidderPrivacyResult struct {
	Bidder           string
	User             *openrtb2.User
	Device           *openrtb2.Device
	BlockedRequest   bool
	BlockedAnalytics bool
}

// Masker applies regulation-driven scrubbing to user and device data, batched
// across all participating bidders. An error aborts the auction.
type Masker interface {
	Mask(ctx context.Context, bidderUserDevice map[string]UserDevice, account config.Account) ([]BidderPrivacyResult, error)
}

// NilMasker passes user and device data through untouched. Used when the host
// runs without a privacy enforcement backend.
type NilMasker struct{}

func (NilMasker) Mask(ctx context.Context, bidderUserDevice map[string]UserDevice, account config.Account) ([]BidderPrivacyResult, error) {
	results := make([]BidderPrivacyResult, 0, len(bidderUserDevice))
	for bidder, ud := range bidderUserDevice {
		results = append(results, BidderPrivacyResult{
			Bidder: bidder,
			User:   ud.User,
			Device: ud.Device,
		})
	}
	return results, nil
}
