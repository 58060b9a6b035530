package openrtb_ext

import (
	"encoding/json"
)

// ExtImp defines the contract for bidrequest.imp[i].ext
type ExtImp struct {
	Prebid *ExtImpPrebid   `json:"prebid,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	GPID   string          `json:"gpid,omitempty"`
	Tid    string          `json:"tid,omitempty"`
	SKAdN  json.RawMessage `json:"skadn,omitempty"`
}

// ExtImpPrebid defines the contract for bidrequest.imp[i].ext.prebid
type ExtImpPrebid struct {
	// StoredRequest specifies which stored impression to use, if any.
	StoredRequest *ExtStoredRequest `json:"storedrequest,omitempty"`

	// StoredAuctionResponse specifies the stored auction response to be returned
	// for this impression instead of fanning out to bidders.
	StoredAuctionResponse *ExtStoredAuctionResponse `json:"storedauctionresponse,omitempty"`

	// StoredBidResponse specifies stored bid responses for given bidders for this impression.
	StoredBidResponse []ExtStoredBidResponse `json:"storedbidresponse,omitempty"`

	// IsRewardedInventory is a signal intended for video impressions. Must be 0 or 1.
	IsRewardedInventory *int8 `json:"is_rewarded_inventory,omitempty"`

	// Bidder is the preferred approach for providing parameters to be interpreted by the bidder's adapter.
	Bidder map[string]json.RawMessage `json:"bidder,omitempty"`

	Passthrough json.RawMessage `json:"passthrough,omitempty"`
}

// ExtStoredAuctionResponse defines the contract for
// bidrequest.imp[i].ext.prebid.storedauctionresponse
type ExtStoredAuctionResponse struct {
	ID string `json:"id"`
}

// ExtStoredBidResponse defines the contract for
// bidrequest.imp[i].ext.prebid.storedbidresponse
type ExtStoredBidResponse struct {
	ID           string `json:"id"`
	Bidder       string `json:"bidder"`
	ReplaceImpId *bool  `json:"replaceimpid"`
}
