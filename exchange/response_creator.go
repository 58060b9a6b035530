package exchange

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/openrtb/v20/openrtb3"

	"github.com/bidflare/exchange-core/config"
	"github.com/bidflare/exchange-core/exchange/entities"
	"github.com/bidflare/exchange-core/openrtb_ext"
	"github.com/bidflare/exchange-core/util/jsonutil"
	"github.com/bidflare/exchange-core/util/maputil"
)

// BidRequestCacheInfo carries the caching instructions of request.ext.prebid.cache.
type BidRequestCacheInfo struct {
	CacheBids      bool
	CacheVAST      bool
	ReturnCreative bool
}

// getExtCacheInstructions reads the cache section of the request ext. Creatives
// are returned unless the request explicitly says otherwise. An account with
// caching disabled never caches, whatever the request asks for.
func getExtCacheInstructions(requestExtPrebid *openrtb_ext.ExtRequestPrebid, account *config.Account) BidRequestCacheInfo {
	instructions := BidRequestCacheInfo{ReturnCreative: true}

	cacheAllowed := account == nil || !account.Cache.Disabled

	var bidsRC, vastRC *bool
	if cacheAllowed && requestExtPrebid != nil && requestExtPrebid.Cache != nil {
		if requestExtPrebid.Cache.Bids != nil {
			instructions.CacheBids = true
			bidsRC = requestExtPrebid.Cache.Bids.ReturnCreative
		}
		if requestExtPrebid.Cache.VastXML != nil {
			instructions.CacheVAST = true
			vastRC = requestExtPrebid.Cache.VastXML.ReturnCreative
		}
	}

	switch {
	case bidsRC != nil && vastRC != nil:
		instructions.ReturnCreative = *bidsRC || *vastRC
	case bidsRC != nil:
		instructions.ReturnCreative = *bidsRC
	case vastRC != nil:
		instructions.ReturnCreative = *vastRC
	}

	return instructions
}

// buildMultiBidMap flattens the validated multibid config into a per bidder
// lookup. A single bidder entry wins over a bidders list naming the same code.
func buildMultiBidMap(multiBid []*openrtb_ext.ExtMultiBid) map[string]openrtb_ext.ExtMultiBid {
	if len(multiBid) == 0 {
		return nil
	}

	multiBidMap := make(map[string]openrtb_ext.ExtMultiBid)
	for _, entry := range multiBid {
		if entry == nil {
			continue
		}
		if entry.Bidder != "" {
			if normalized, ok := openrtb_ext.NormalizeBidderName(entry.Bidder); ok {
				multiBidMap[string(normalized)] = *entry
			} else {
				multiBidMap[entry.Bidder] = *entry
			}
		} else {
			for _, bidder := range entry.Bidders {
				if normalized, ok := openrtb_ext.NormalizeBidderName(bidder); ok {
					multiBidMap[string(normalized)] = *entry
				} else {
					multiBidMap[bidder] = *entry
				}
			}
		}
	}
	return multiBidMap
}

// BidResponseCreator assembles the final OpenRTB response from the collected
// auction participations.
type BidResponseCreator interface {
	Create(ctx context.Context, r *AuctionRequest, participations []AuctionParticipation, cacheInfo BidRequestCacheInfo, multiBid map[string]openrtb_ext.ExtMultiBid) (*openrtb2.BidResponse, error)
}

// PostProcessor runs host specific logic over the assembled response before
// the auction-response hooks. Errors demote to warnings; the response built so
// far is kept.
type PostProcessor interface {
	PostProcess(ctx context.Context, r *AuctionRequest, bidResponse *openrtb2.BidResponse) (*openrtb2.BidResponse, error)
}

// NopPostProcessor returns the response untouched.
type NopPostProcessor struct{}

func (NopPostProcessor) PostProcess(ctx context.Context, r *AuctionRequest, bidResponse *openrtb2.BidResponse) (*openrtb2.BidResponse, error) {
	return bidResponse, nil
}

// standardBidResponseCreator is the default response assembly: one seatbid per
// surviving seat, in the deterministic order the participations were built.
type standardBidResponseCreator struct {
	bidIDGenerator bidIDGenerator
}

func (c *standardBidResponseCreator) Create(ctx context.Context, r *AuctionRequest, participations []AuctionParticipation, cacheInfo BidRequestCacheInfo, multiBid map[string]openrtb_ext.ExtMultiBid) (*openrtb2.BidResponse, error) {
	bidResponse := &openrtb2.BidResponse{
		ID:      r.BidRequest.ID,
		SeatBid: make([]openrtb2.SeatBid, 0, len(participations)),
	}

	anyLiveBidders := false
	for _, participation := range participations {
		if len(participation.SeatBids) > 0 {
			anyLiveBidders = true
		}
		for _, seatBid := range participation.SeatBids {
			if seatBid == nil {
				continue
			}
			limitBidsPerImp(seatBid, multiBid, r.Account.DefaultBidLimit)
			if len(seatBid.Bids) == 0 {
				continue
			}

			openrtbSeatBid, err := c.makeSeatBid(seatBid, cacheInfo)
			if err != nil {
				return nil, err
			}
			bidResponse.SeatBid = append(bidResponse.SeatBid, *openrtbSeatBid)
			if bidResponse.Cur == "" {
				bidResponse.Cur = seatBid.Currency
			}
		}
	}

	if !anyLiveBidders {
		bidResponse.NBR = openrtb3.NoBidInvalidRequest.Ptr()
	}

	return bidResponse, nil
}

func (c *standardBidResponseCreator) makeSeatBid(seatBid *entities.PbsOrtbSeatBid, cacheInfo BidRequestCacheInfo) (*openrtb2.SeatBid, error) {
	openrtbSeatBid := &openrtb2.SeatBid{
		Seat: seatBid.Seat,
		Bid:  make([]openrtb2.Bid, 0, len(seatBid.Bids)),
	}

	for _, bid := range seatBid.Bids {
		if bid == nil || bid.Bid == nil {
			continue
		}

		generatedBidID := ""
		if c.bidIDGenerator != nil && c.bidIDGenerator.Enabled() {
			id, err := c.bidIDGenerator.New()
			if err != nil {
				return nil, err
			}
			generatedBidID = id
			bid.GeneratedBidID = generatedBidID
		}

		bidExt, err := makeBidExtJSON(bid, generatedBidID)
		if err != nil {
			return nil, err
		}

		openrtbBid := *bid.Bid
		openrtbBid.Ext = bidExt
		if !cacheInfo.ReturnCreative {
			openrtbBid.AdM = ""
		}
		openrtbSeatBid.Bid = append(openrtbSeatBid.Bid, openrtbBid)
	}

	return openrtbSeatBid, nil
}

// makeBidExtJSON builds the final bid.ext, keeping any keys the adapter put
// there and layering the prebid section plus the original price on top.
func makeBidExtJSON(bid *entities.PbsOrtbBid, generatedBidID string) (json.RawMessage, error) {
	extMap := make(map[string]interface{})
	if len(bid.Bid.Ext) > 0 {
		if err := jsonutil.Unmarshal(bid.Bid.Ext, &extMap); err != nil {
			return nil, err
		}
	}

	if bid.OriginalBidCPM >= 0 {
		extMap["origbidcpm"] = bid.OriginalBidCPM
	}
	if bid.OriginalBidCur != "" {
		extMap["origbidcur"] = bid.OriginalBidCur
	}

	// An adapter may have set meta on the bid ext directly instead of through
	// TypedBid.BidMeta. That meta survives unless BidMeta overrides it.
	meta := bid.BidMeta
	if meta == nil && maputil.HasElement(extMap, openrtb_ext.PrebidExtKey, "meta") {
		metaContainer := struct {
			Prebid struct {
				Meta openrtb_ext.ExtBidPrebidMeta `json:"meta"`
			} `json:"prebid"`
		}{}
		if err := jsonutil.Unmarshal(bid.Bid.Ext, &metaContainer); err != nil {
			return nil, err
		}
		meta = &metaContainer.Prebid.Meta
	}
	if meta == nil {
		meta = &openrtb_ext.ExtBidPrebidMeta{}
	}
	metaCopy := *meta
	metaCopy.AdapterCode = bid.AdapterCode.String()

	extMap[openrtb_ext.PrebidExtKey] = openrtb_ext.ExtBidPrebid{
		BidId:        generatedBidID,
		DealPriority: bid.DealPriority,
		Meta:         &metaCopy,
		Targeting:    bid.BidTargets,
		Type:         bid.BidType,
		Video:        bid.BidVideo,
	}

	return jsonutil.Marshal(extMap)
}

// limitBidsPerImp caps the number of bids a seat may return per imp. The cap
// comes from the multibid config for the bidder when present, then from the
// account default. Highest priced bids survive.
func limitBidsPerImp(seatBid *entities.PbsOrtbSeatBid, multiBid map[string]openrtb_ext.ExtMultiBid, accountDefaultBidLimit int) {
	limit := 0
	if entry, ok := multiBid[seatBid.Seat]; ok && entry.MaxBids != nil {
		limit = *entry.MaxBids
	} else if accountDefaultBidLimit > 0 {
		limit = accountDefaultBidLimit
	}
	if limit <= 0 {
		return
	}

	bidsByImp := make(map[string][]*entities.PbsOrtbBid)
	impOrder := make([]string, 0)
	for _, bid := range seatBid.Bids {
		if bid == nil || bid.Bid == nil {
			continue
		}
		if _, seen := bidsByImp[bid.Bid.ImpID]; !seen {
			impOrder = append(impOrder, bid.Bid.ImpID)
		}
		bidsByImp[bid.Bid.ImpID] = append(bidsByImp[bid.Bid.ImpID], bid)
	}

	kept := make(map[*entities.PbsOrtbBid]struct{})
	for _, impID := range impOrder {
		bids := bidsByImp[impID]
		if len(bids) > limit {
			sort.SliceStable(bids, func(i, j int) bool {
				return bids[i].Bid.Price > bids[j].Bid.Price
			})
			bids = bids[:limit]
		}
		for _, bid := range bids {
			kept[bid] = struct{}{}
		}
	}

	filtered := make([]*entities.PbsOrtbBid, 0, len(kept))
	for _, bid := range seatBid.Bids {
		if _, ok := kept[bid]; ok {
			filtered = append(filtered, bid)
		}
	}
	seatBid.Bids = filtered
}
