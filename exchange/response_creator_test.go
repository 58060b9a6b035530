package exchange

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/openrtb/v20/openrtb3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidflare/exchange-core/config"
	"github.com/bidflare/exchange-core/exchange/entities"
	"github.com/bidflare/exchange-core/openrtb_ext"
	"github.com/bidflare/exchange-core/util/ptrutil"
)

func TestGetExtCacheInstructions(t *testing.T) {
	testCases := []struct {
		name     string
		prebid   *openrtb_ext.ExtRequestPrebid
		account  config.Account
		expected BidRequestCacheInfo
	}{
		{
			name:     "nil-prebid",
			prebid:   nil,
			expected: BidRequestCacheInfo{ReturnCreative: true},
		},
		{
			name:     "no-cache-section",
			prebid:   &openrtb_ext.ExtRequestPrebid{},
			expected: BidRequestCacheInfo{ReturnCreative: true},
		},
		{
			name: "bids-cache",
			prebid: &openrtb_ext.ExtRequestPrebid{
				Cache: &openrtb_ext.ExtRequestPrebidCache{
					Bids: &openrtb_ext.ExtRequestPrebidCacheBids{},
				},
			},
			expected: BidRequestCacheInfo{CacheBids: true, ReturnCreative: true},
		},
		{
			name: "bids-cache-suppressing-creative",
			prebid: &openrtb_ext.ExtRequestPrebid{
				Cache: &openrtb_ext.ExtRequestPrebidCache{
					Bids: &openrtb_ext.ExtRequestPrebidCacheBids{ReturnCreative: ptrutil.ToPtr(false)},
				},
			},
			expected: BidRequestCacheInfo{CacheBids: true, ReturnCreative: false},
		},
		{
			name: "vast-cache",
			prebid: &openrtb_ext.ExtRequestPrebid{
				Cache: &openrtb_ext.ExtRequestPrebidCache{
					VastXML: &openrtb_ext.ExtRequestPrebidCacheVAST{ReturnCreative: ptrutil.ToPtr(true)},
				},
			},
			expected: BidRequestCacheInfo{CacheVAST: true, ReturnCreative: true},
		},
		{
			name: "either-section-keeps-creative",
			prebid: &openrtb_ext.ExtRequestPrebid{
				Cache: &openrtb_ext.ExtRequestPrebidCache{
					Bids:    &openrtb_ext.ExtRequestPrebidCacheBids{ReturnCreative: ptrutil.ToPtr(false)},
					VastXML: &openrtb_ext.ExtRequestPrebidCacheVAST{ReturnCreative: ptrutil.ToPtr(true)},
				},
			},
			expected: BidRequestCacheInfo{CacheBids: true, CacheVAST: true, ReturnCreative: true},
		},
		{
			name: "account-cache-disabled-overrides-request",
			prebid: &openrtb_ext.ExtRequestPrebid{
				Cache: &openrtb_ext.ExtRequestPrebidCache{
					Bids:    &openrtb_ext.ExtRequestPrebidCacheBids{},
					VastXML: &openrtb_ext.ExtRequestPrebidCacheVAST{ReturnCreative: ptrutil.ToPtr(false)},
				},
			},
			account:  config.Account{Cache: config.AccountCache{Disabled: true}},
			expected: BidRequestCacheInfo{ReturnCreative: true},
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, getExtCacheInstructions(test.prebid, &test.account))
		})
	}
}

func TestBuildMultiBidMap(t *testing.T) {
	maxBids := func(n int) *int { return &n }

	testCases := []struct {
		name     string
		multiBid []*openrtb_ext.ExtMultiBid
		expected map[string]openrtb_ext.ExtMultiBid
	}{
		{
			name:     "empty",
			multiBid: nil,
			expected: nil,
		},
		{
			name: "single-bidder",
			multiBid: []*openrtb_ext.ExtMultiBid{
				{Bidder: "appnexus", MaxBids: maxBids(3)},
			},
			expected: map[string]openrtb_ext.ExtMultiBid{
				"appnexus": {Bidder: "appnexus", MaxBids: maxBids(3)},
			},
		},
		{
			name: "bidders-list",
			multiBid: []*openrtb_ext.ExtMultiBid{
				{Bidders: []string{"appnexus", "rubicon"}, MaxBids: maxBids(2)},
			},
			expected: map[string]openrtb_ext.ExtMultiBid{
				"appnexus": {Bidders: []string{"appnexus", "rubicon"}, MaxBids: maxBids(2)},
				"rubicon":  {Bidders: []string{"appnexus", "rubicon"}, MaxBids: maxBids(2)},
			},
		},
		{
			name: "bidder-name-normalized",
			multiBid: []*openrtb_ext.ExtMultiBid{
				{Bidder: "AppNexus", MaxBids: maxBids(2)},
			},
			expected: map[string]openrtb_ext.ExtMultiBid{
				"appnexus": {Bidder: "AppNexus", MaxBids: maxBids(2)},
			},
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, buildMultiBidMap(test.multiBid))
		})
	}
}

func TestLimitBidsPerImp(t *testing.T) {
	bid := func(id, impID string, price float64) *entities.PbsOrtbBid {
		return &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ID: id, ImpID: impID, Price: price}}
	}

	testCases := []struct {
		name        string
		bids        []*entities.PbsOrtbBid
		multiBid    map[string]openrtb_ext.ExtMultiBid
		accountDef  int
		expectedIDs []string
	}{
		{
			name:        "no-limit",
			bids:        []*entities.PbsOrtbBid{bid("a", "imp-1", 1), bid("b", "imp-1", 2)},
			expectedIDs: []string{"a", "b"},
		},
		{
			name:        "account-default-keeps-highest",
			bids:        []*entities.PbsOrtbBid{bid("low", "imp-1", 1), bid("high", "imp-1", 2)},
			accountDef:  1,
			expectedIDs: []string{"high"},
		},
		{
			name: "multibid-config-overrides-account",
			bids: []*entities.PbsOrtbBid{bid("a", "imp-1", 1), bid("b", "imp-1", 2), bid("c", "imp-1", 3)},
			multiBid: map[string]openrtb_ext.ExtMultiBid{
				"appnexus": {Bidder: "appnexus", MaxBids: ptrutil.ToPtr(2)},
			},
			accountDef:  1,
			expectedIDs: []string{"b", "c"},
		},
		{
			name:        "limit-applies-per-imp",
			bids:        []*entities.PbsOrtbBid{bid("a", "imp-1", 1), bid("b", "imp-2", 2)},
			accountDef:  1,
			expectedIDs: []string{"a", "b"},
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			seatBid := &entities.PbsOrtbSeatBid{Seat: "appnexus", Bids: test.bids}
			limitBidsPerImp(seatBid, test.multiBid, test.accountDef)

			gotIDs := make([]string, 0, len(seatBid.Bids))
			for _, b := range seatBid.Bids {
				gotIDs = append(gotIDs, b.Bid.ID)
			}
			assert.Equal(t, test.expectedIDs, gotIDs)
		})
	}
}

func TestMakeBidExtJSON(t *testing.T) {
	bid := &entities.PbsOrtbBid{
		Bid: &openrtb2.Bid{
			ID:    "bid-1",
			ImpID: "imp-1",
			Price: 2.5,
			Ext:   json.RawMessage(`{"someField":"kept"}`),
		},
		BidType:        openrtb_ext.BidTypeBanner,
		OriginalBidCPM: 2.0,
		OriginalBidCur: "EUR",
		AdapterCode:    "appnexus",
	}

	ext, err := makeBidExtJSON(bid, "generated-id")
	require.NoError(t, err)

	var parsed struct {
		SomeField string `json:"someField"`
		Prebid    struct {
			BidID string `json:"bidid"`
			Type  string `json:"type"`
			Meta  struct {
				AdapterCode string `json:"adaptercode"`
			} `json:"meta"`
		} `json:"prebid"`
		OrigBidCPM float64 `json:"origbidcpm"`
		OrigBidCur string  `json:"origbidcur"`
	}
	require.NoError(t, json.Unmarshal(ext, &parsed))

	assert.Equal(t, "kept", parsed.SomeField)
	assert.Equal(t, "generated-id", parsed.Prebid.BidID)
	assert.Equal(t, "banner", parsed.Prebid.Type)
	assert.Equal(t, "appnexus", parsed.Prebid.Meta.AdapterCode)
	assert.Equal(t, 2.0, parsed.OrigBidCPM)
	assert.Equal(t, "EUR", parsed.OrigBidCur)
}

func TestMakeBidExtJSONKeepsAdapterMeta(t *testing.T) {
	bid := &entities.PbsOrtbBid{
		Bid: &openrtb2.Bid{
			ID:    "bid-1",
			ImpID: "imp-1",
			Price: 1.0,
			Ext:   json.RawMessage(`{"prebid":{"meta":{"advertiserDomains":["example.com"]}}}`),
		},
		BidType:        openrtb_ext.BidTypeBanner,
		OriginalBidCPM: -1,
		AdapterCode:    "appnexus",
	}

	ext, err := makeBidExtJSON(bid, "")
	require.NoError(t, err)

	var parsed struct {
		Prebid struct {
			Meta struct {
				AdapterCode       string   `json:"adaptercode"`
				AdvertiserDomains []string `json:"advertiserDomains"`
			} `json:"meta"`
		} `json:"prebid"`
	}
	require.NoError(t, json.Unmarshal(ext, &parsed))

	assert.Equal(t, []string{"example.com"}, parsed.Prebid.Meta.AdvertiserDomains)
	assert.Equal(t, "appnexus", parsed.Prebid.Meta.AdapterCode)
}

func TestStandardBidResponseCreator(t *testing.T) {
	creator := &standardBidResponseCreator{}

	r := &AuctionRequest{
		BidRequest: &openrtb2.BidRequest{ID: "req-1"},
		Account:    config.Account{},
	}
	participations := []AuctionParticipation{
		{
			Bidder: "appnexus",
			SeatBids: []*entities.PbsOrtbSeatBid{{
				Seat:     "appnexus",
				Currency: "USD",
				Bids: []*entities.PbsOrtbBid{
					{Bid: &openrtb2.Bid{ID: "bid-1", ImpID: "imp-1", Price: 1.5, AdM: "<creative/>"}, BidType: openrtb_ext.BidTypeBanner},
				},
			}},
		},
	}

	response, err := creator.Create(context.Background(), r, participations, BidRequestCacheInfo{ReturnCreative: true}, nil)
	require.NoError(t, err)

	assert.Equal(t, "req-1", response.ID)
	assert.Nil(t, response.NBR)
	assert.Equal(t, "USD", response.Cur)
	require.Len(t, response.SeatBid, 1)
	assert.Equal(t, "appnexus", response.SeatBid[0].Seat)
	require.Len(t, response.SeatBid[0].Bid, 1)
	assert.Equal(t, "<creative/>", response.SeatBid[0].Bid[0].AdM)
}

func TestStandardBidResponseCreatorSuppressesCreative(t *testing.T) {
	creator := &standardBidResponseCreator{}

	r := &AuctionRequest{BidRequest: &openrtb2.BidRequest{ID: "req-1"}}
	participations := []AuctionParticipation{
		{
			Bidder: "appnexus",
			SeatBids: []*entities.PbsOrtbSeatBid{{
				Seat: "appnexus",
				Bids: []*entities.PbsOrtbBid{
					{Bid: &openrtb2.Bid{ID: "bid-1", ImpID: "imp-1", Price: 1.5, AdM: "<creative/>"}},
				},
			}},
		},
	}

	response, err := creator.Create(context.Background(), r, participations, BidRequestCacheInfo{ReturnCreative: false}, nil)
	require.NoError(t, err)
	require.Len(t, response.SeatBid, 1)
	assert.Empty(t, response.SeatBid[0].Bid[0].AdM)
}

func TestStandardBidResponseCreatorNoBids(t *testing.T) {
	creator := &standardBidResponseCreator{}

	r := &AuctionRequest{BidRequest: &openrtb2.BidRequest{ID: "req-1"}}

	response, err := creator.Create(context.Background(), r, nil, BidRequestCacheInfo{ReturnCreative: true}, nil)
	require.NoError(t, err)

	assert.Empty(t, response.SeatBid)
	require.NotNil(t, response.NBR)
	assert.Equal(t, openrtb3.NoBidInvalidRequest, *response.NBR)
}
