package openrtb_ext

import (
	"encoding/json"
	"fmt"
)

// ExtBid defines the contract for bidresponse.seatbid.bid[i].ext
type ExtBid struct {
	Prebid *ExtBidPrebid `json:"prebid,omitempty"`
}

// ExtBidPrebid defines the contract for bidresponse.seatbid.bid[i].ext.prebid
type ExtBidPrebid struct {
	BidId             string             `json:"bidid,omitempty"`
	DealPriority      int                `json:"dealpriority,omitempty"`
	DealTierSatisfied bool               `json:"dealtiersatisfied,omitempty"`
	Meta              *ExtBidPrebidMeta  `json:"meta,omitempty"`
	Targeting         map[string]string  `json:"targeting,omitempty"`
	TargetBidderCode  string             `json:"targetbiddercode,omitempty"`
	Type              BidType            `json:"type"`
	Video             *ExtBidPrebidVideo `json:"video,omitempty"`
	Passthrough       json.RawMessage    `json:"passthrough,omitempty"`
}

// ExtBidPrebidMeta defines the contract for bidresponse.seatbid.bid[i].ext.prebid.meta
type ExtBidPrebidMeta struct {
	AdapterCode          string          `json:"adaptercode,omitempty"`
	AdvertiserDomains    []string        `json:"advertiserDomains,omitempty"`
	AdvertiserID         int             `json:"advertiserId,omitempty"`
	AgencyID             int             `json:"agencyId,omitempty"`
	BrandID              int             `json:"brandId,omitempty"`
	DemandSource         string          `json:"demandSource,omitempty"`
	DChain               json.RawMessage `json:"dchain,omitempty"`
	MediaType            string          `json:"mediaType,omitempty"`
	NetworkID            int             `json:"networkId,omitempty"`
	PrimaryCategoryID    string          `json:"primaryCatId,omitempty"`
	RendererName         string          `json:"rendererName,omitempty"`
	RendererVersion      string          `json:"rendererVersion,omitempty"`
	SecondaryCategoryIDs []string        `json:"secondaryCatIds,omitempty"`
}

// ExtBidPrebidVideo defines the contract for bidresponse.seatbid.bid[i].ext.prebid.video
type ExtBidPrebidVideo struct {
	Duration        int    `json:"duration"`
	PrimaryCategory string `json:"primary_category"`
}

// BidType describes the allowed values for bidresponse.seatbid.bid[i].ext.prebid.type
type BidType string

const (
	BidTypeBanner BidType = "banner"
	BidTypeVideo  BidType = "video"
	BidTypeAudio  BidType = "audio"
	BidTypeNative BidType = "native"
)

func BidTypes() []BidType {
	return []BidType{
		BidTypeBanner,
		BidTypeVideo,
		BidTypeAudio,
		BidTypeNative,
	}
}

func ParseBidType(bidType string) (BidType, error) {
	switch bidType {
	case "banner":
		return BidTypeBanner, nil
	case "video":
		return BidTypeVideo, nil
	case "audio":
		return BidTypeAudio, nil
	case "native":
		return BidTypeNative, nil
	default:
		return "", fmt.Errorf("invalid BidType: %s", bidType)
	}
}
