package exchange

import (
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/bidflare/exchange-core/errortypes"
	"github.com/bidflare/exchange-core/exchange/entities"
	"github.com/bidflare/exchange-core/metrics"
)

func TestValidateBid(t *testing.T) {
	testCases := []struct {
		name        string
		bid         *entities.PbsOrtbBid
		expectValid bool
		expectedMsg string
	}{
		{
			name:        "positive-price",
			bid:         &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ID: "bid-1", ImpID: "imp-1", Price: 0.5}},
			expectValid: true,
		},
		{
			name:        "zero-price-with-deal",
			bid:         &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ID: "bid-1", ImpID: "imp-1", Price: 0, DealID: "deal-1"}},
			expectValid: true,
		},
		{
			name:        "zero-price-without-deal",
			bid:         &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ID: "bid-1", ImpID: "imp-1", Price: 0}},
			expectValid: false,
			expectedMsg: "Dropped bid 'bid-1'. Does not contain a positive (or zero if there is a deal) 'price'",
		},
		{
			name:        "negative-price",
			bid:         &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ID: "bid-2", ImpID: "imp-1", Price: -0.01, DealID: "deal-1"}},
			expectValid: false,
			expectedMsg: "Dropped bid 'bid-2'. Does not contain a positive (or zero if there is a deal) 'price'",
		},
		{
			name:        "nil-bid",
			bid:         &entities.PbsOrtbBid{},
			expectValid: false,
			expectedMsg: "Empty bid object submitted.",
		},
		{
			name:        "missing-id",
			bid:         &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ImpID: "imp-1", Price: 0.5}},
			expectValid: false,
			expectedMsg: "Bid missing required field 'id'",
		},
		{
			name:        "missing-impid",
			bid:         &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ID: "bid-1", Price: 0.5}},
			expectValid: false,
			expectedMsg: `Bid "bid-1" missing required field 'impid'`,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			valid, err := validateBid(test.bid)
			assert.Equal(t, test.expectValid, valid)
			if test.expectValid {
				assert.NoError(t, err)
			} else {
				assert.EqualError(t, err, test.expectedMsg)
			}
		})
	}
}

func TestValidateBidPriceDropIsDebugScoped(t *testing.T) {
	bid := &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ID: "bid-1", ImpID: "imp-1", Price: 0}}

	valid, err := validateBid(bid)

	assert.False(t, valid)
	assert.Equal(t, errortypes.ScopeDebug, errortypes.ReadScope(err))
	assert.False(t, errortypes.ContainsFatalError([]error{err}))
}

func TestRemoveInvalidBids(t *testing.T) {
	goodBid := &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ID: "good", ImpID: "imp-1", Price: 1.25}}
	zeroBid := &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ID: "zero", ImpID: "imp-2", Price: 0}}
	dealBid := &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ID: "deal", ImpID: "imp-3", Price: 0, DealID: "deal-1"}}

	seatBid := &entities.PbsOrtbSeatBid{
		Bids:     []*entities.PbsOrtbBid{goodBid, zeroBid, dealBid},
		Currency: "USD",
		Seat:     "appnexus",
	}

	me := &metrics.MetricsEngineMock{}
	me.On("RecordAdapterDroppedBid", mock.Anything).Once()
	nonBids := SeatNonBidBuilder{}

	errs := removeInvalidBids(nil, seatBid, me, metrics.AdapterLabels{}, &nonBids)

	assert.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "Dropped bid 'zero'. Does not contain a positive (or zero if there is a deal) 'price'")
	assert.Equal(t, []*entities.PbsOrtbBid{goodBid, dealBid}, seatBid.Bids)
	me.AssertExpectations(t)

	assert.Len(t, nonBids["appnexus"], 1)
	assert.Equal(t, "imp-2", nonBids["appnexus"][0].ImpId)
	assert.Equal(t, int(ResponseRejectedGeneral), nonBids["appnexus"][0].StatusCode)
}

func TestRemoveInvalidBidsBadCurrency(t *testing.T) {
	seatBid := &entities.PbsOrtbSeatBid{
		Bids:     []*entities.PbsOrtbBid{{Bid: &openrtb2.Bid{ID: "bid-1", ImpID: "imp-1", Price: 1.0}}},
		Currency: "EUR",
		Seat:     "appnexus",
	}
	nonBids := SeatNonBidBuilder{}

	errs := removeInvalidBids([]string{"USD"}, seatBid, &metrics.NilMetricsEngine{}, metrics.AdapterLabels{}, &nonBids)

	assert.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "Bid currency is not allowed. Was 'EUR', wants: ['USD']")
	assert.Empty(t, seatBid.Bids)
	assert.Len(t, nonBids["appnexus"], 1)
	assert.Equal(t, int(RequestBlockedUnacceptableCurrency), nonBids["appnexus"][0].StatusCode)
}

func TestValidateCurrency(t *testing.T) {
	testCases := []struct {
		name        string
		allowed     []string
		bidCurrency string
		expectError bool
	}{
		{name: "empty-defaults-to-usd", allowed: nil, bidCurrency: "", expectError: false},
		{name: "usd-allowed-implicitly", allowed: nil, bidCurrency: "USD", expectError: false},
		{name: "matching-request-cur", allowed: []string{"EUR"}, bidCurrency: "EUR", expectError: false},
		{name: "case-insensitive-match", allowed: []string{"eur"}, bidCurrency: "EUR", expectError: false},
		{name: "not-in-request-cur", allowed: []string{"EUR"}, bidCurrency: "USD", expectError: true},
		{name: "invalid-iso-code", allowed: nil, bidCurrency: "DOLLAR", expectError: true},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			err := validateCurrency(test.allowed, test.bidCurrency)
			if test.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
