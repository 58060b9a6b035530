package exchange

import (
	"github.com/bidflare/exchange-core/exchange/entities"
)

// reduceDealBids collapses competing deal bids within one seat bid: when a
// bidder returns more than one bid for the same (imp, dealid) pair, only the
// highest priced one survives. Bids without a deal id always pass through, and
// a deal with no matching bid is simply absent from the result. The relative
// order of surviving bids is preserved.
func reduceDealBids(seatBid *entities.PbsOrtbSeatBid) {
	if seatBid == nil || len(seatBid.Bids) < 2 {
		return
	}

	type dealKey struct {
		impID  string
		dealID string
	}

	winners := make(map[dealKey]int)
	dropped := make(map[int]struct{})

	for i, bid := range seatBid.Bids {
		if bid == nil || bid.Bid == nil || bid.Bid.DealID == "" {
			continue
		}

		key := dealKey{impID: bid.Bid.ImpID, dealID: bid.Bid.DealID}
		winner, seen := winners[key]
		if !seen {
			winners[key] = i
			continue
		}

		if bid.Bid.Price > seatBid.Bids[winner].Bid.Price {
			dropped[winner] = struct{}{}
			winners[key] = i
		} else {
			dropped[i] = struct{}{}
		}
	}

	if len(dropped) == 0 {
		return
	}

	kept := make([]*entities.PbsOrtbBid, 0, len(seatBid.Bids)-len(dropped))
	for i, bid := range seatBid.Bids {
		if _, ok := dropped[i]; !ok {
			kept = append(kept, bid)
		}
	}
	seatBid.Bids = kept
}
