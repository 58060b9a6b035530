package exchange

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidflare/exchange-core/adapters"
	"github.com/bidflare/exchange-core/config"
	"github.com/bidflare/exchange-core/currency"
	"github.com/bidflare/exchange-core/errortypes"
	"github.com/bidflare/exchange-core/exchange/entities"
	"github.com/bidflare/exchange-core/hooks/hookexecution"
	"github.com/bidflare/exchange-core/metrics"
	"github.com/bidflare/exchange-core/openrtb_ext"
)

type capturingBidder struct {
	calls    int32
	seatBids []*entities.PbsOrtbSeatBid
	errs     []error
}

func (b *capturingBidder) requestBid(ctx context.Context, bidderRequest BidderRequest, conversions currency.Conversions, reqInfo *adapters.ExtraRequestInfo, bidRequestOptions bidRequestOptions, hookExecutor hookexecution.StageExecutor) ([]*entities.PbsOrtbSeatBid, extraBidderRespInfo, []error) {
	atomic.AddInt32(&b.calls, 1)
	return b.seatBids, extraBidderRespInfo{}, b.errs
}

type recordingHookExecutor struct {
	hookexecution.EmptyHookExecutor
	auctionResponseCalls int
}

func (e *recordingHookExecutor) ExecuteAuctionResponseStage(response *openrtb2.BidResponse) {
	e.auctionResponseCalls++
	response.BidID = "hooked"
}

func newTestExchange(cfg *config.Configuration, bidders map[openrtb_ext.BidderName]AdaptedBidder) Exchange {
	if cfg == nil {
		cfg = &config.Configuration{DebugAllow: true}
	}
	return NewExchange(bidders, cfg, &metrics.NilMetricsEngine{}, nil, nil, nil, nil, nil, nil, nil, nil)
}

func newSingleBidderAuctionRequest() *AuctionRequest {
	return &AuctionRequest{
		BidRequest: &openrtb2.BidRequest{
			ID: "req-1",
			Imp: []openrtb2.Imp{
				{ID: "imp-1", Ext: json.RawMessage(`{"prebid":{"bidder":{"appnexus":{"placementId":1}}}}`)},
			},
		},
		Account:   config.Account{DebugAllow: true},
		UserSyncs: fakeIdFetcher{},
		StartTime: time.Now(),
	}
}

func TestHoldAuctionRejectedRequestShortCircuits(t *testing.T) {
	bidder := &capturingBidder{}
	e := newTestExchange(nil, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": bidder})

	hooks := &recordingHookExecutor{}
	r := newSingleBidderAuctionRequest()
	r.Rejected = true
	r.HookExecutor = hooks

	response, err := e.HoldAuction(context.Background(), r)

	require.NoError(t, err)
	require.NotNil(t, response)
	assert.NotNil(t, response.SeatBid)
	assert.Empty(t, response.SeatBid)
	assert.Zero(t, atomic.LoadInt32(&bidder.calls))
	assert.Equal(t, 1, hooks.auctionResponseCalls)
	assert.Equal(t, "hooked", response.BidID)
}

func TestHoldAuctionReturnsBids(t *testing.T) {
	bidder := &capturingBidder{
		seatBids: []*entities.PbsOrtbSeatBid{{
			Seat:     "appnexus",
			Currency: "USD",
			Bids: []*entities.PbsOrtbBid{
				{Bid: &openrtb2.Bid{ID: "bid-1", ImpID: "imp-1", Price: 1.5}, BidType: openrtb_ext.BidTypeBanner, AdapterCode: "appnexus"},
			},
		}},
	}
	e := newTestExchange(nil, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": bidder})

	response, err := e.HoldAuction(context.Background(), newSingleBidderAuctionRequest())

	require.NoError(t, err)
	require.NotNil(t, response)
	assert.Equal(t, int32(1), atomic.LoadInt32(&bidder.calls))

	require.Len(t, response.SeatBid, 1)
	assert.Equal(t, "appnexus", response.SeatBid[0].Seat)
	require.Len(t, response.SeatBid[0].Bid, 1)
	assert.Equal(t, "bid-1", response.SeatBid[0].Bid[0].ID)
	assert.Equal(t, "USD", response.Cur)

	require.NotNil(t, response.ExtBidResponse)
	assert.Contains(t, response.ExtBidResponse.ResponseTimeMillis, openrtb_ext.BidderName("appnexus"))
}

func TestHoldAuctionReducesDealBids(t *testing.T) {
	bidder := &capturingBidder{
		seatBids: []*entities.PbsOrtbSeatBid{{
			Seat:     "appnexus",
			Currency: "USD",
			Bids: []*entities.PbsOrtbBid{
				{Bid: &openrtb2.Bid{ID: "low", ImpID: "imp-1", DealID: "deal-1", Price: 1.0}, AdapterCode: "appnexus"},
				{Bid: &openrtb2.Bid{ID: "high", ImpID: "imp-1", DealID: "deal-1", Price: 3.0}, AdapterCode: "appnexus"},
			},
		}},
	}
	e := newTestExchange(nil, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": bidder})

	response, err := e.HoldAuction(context.Background(), newSingleBidderAuctionRequest())

	require.NoError(t, err)
	require.Len(t, response.SeatBid, 1)
	require.Len(t, response.SeatBid[0].Bid, 1)
	assert.Equal(t, "high", response.SeatBid[0].Bid[0].ID)
}

func TestHoldAuctionStrictEntityCheck(t *testing.T) {
	e := newTestExchange(&config.Configuration{StrictEntityCheck: true, DebugAllow: true}, nil)

	r := newSingleBidderAuctionRequest()
	r.BidRequest.App = &openrtb2.App{}
	r.BidRequest.Site = &openrtb2.Site{}

	response, err := e.HoldAuction(context.Background(), r)

	assert.Nil(t, response)
	require.Error(t, err)
	assert.EqualError(t, err, "app and site are present, but no more than one of site or app or dooh can be defined")
}

func TestHoldAuctionMalformedRequestExt(t *testing.T) {
	e := newTestExchange(nil, nil)

	r := newSingleBidderAuctionRequest()
	r.BidRequest.Ext = json.RawMessage(`malformed`)

	response, err := e.HoldAuction(context.Background(), r)

	assert.Nil(t, response)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Error decoding Request.ext")
}

func TestHoldAuctionStoredAuctionResponses(t *testing.T) {
	bidder := &capturingBidder{}
	e := newTestExchange(nil, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": bidder})

	r := newSingleBidderAuctionRequest()
	r.StoredAuctionResponses = map[string]json.RawMessage{
		"imp-1": json.RawMessage(`[{"seat":"appnexus","bid":[{"id":"stored-bid","price":2.0,"ext":{"prebid":{"type":"banner"}}}]}]`),
	}

	response, err := e.HoldAuction(context.Background(), r)

	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&bidder.calls))
	require.Len(t, response.SeatBid, 1)
	assert.Equal(t, "appnexus", response.SeatBid[0].Seat)
	require.Len(t, response.SeatBid[0].Bid, 1)
	assert.Equal(t, "stored-bid", response.SeatBid[0].Bid[0].ID)
	assert.Equal(t, "imp-1", response.SeatBid[0].Bid[0].ImpID)
}

func TestHoldAuctionAccountDebugDisabledWarning(t *testing.T) {
	bidder := &capturingBidder{}
	e := newTestExchange(nil, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": bidder})

	r := newSingleBidderAuctionRequest()
	r.BidRequest.Test = 1
	r.Account.DebugAllow = false

	response, err := e.HoldAuction(context.Background(), r)

	require.NoError(t, err)
	require.NotNil(t, response.ExtBidResponse)

	generalKey := openrtb_ext.BidderName(openrtb_ext.GeneralExtKey)
	require.Contains(t, response.ExtBidResponse.Warnings, generalKey)

	found := false
	for _, warning := range response.ExtBidResponse.Warnings[generalKey] {
		if warning.Message == "debug turned off for account" {
			found = true
		}
	}
	assert.True(t, found)
	assert.Nil(t, response.ExtBidResponse.Debug)
}

func TestHoldAuctionDebugOutput(t *testing.T) {
	bidder := &capturingBidder{
		seatBids: []*entities.PbsOrtbSeatBid{{
			Seat:     "appnexus",
			Currency: "USD",
			Bids: []*entities.PbsOrtbBid{
				{Bid: &openrtb2.Bid{ID: "bid-1", ImpID: "imp-1", Price: 1.5}, AdapterCode: "appnexus"},
			},
			HttpCalls: []*openrtb_ext.ExtHttpCall{{Uri: "https://bidder.example.com"}},
		}},
	}
	e := newTestExchange(nil, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": bidder})

	r := newSingleBidderAuctionRequest()
	r.BidRequest.Test = 1

	response, err := e.HoldAuction(context.Background(), r)

	require.NoError(t, err)
	require.NotNil(t, response.ExtBidResponse)
	require.NotNil(t, response.ExtBidResponse.Debug)
	assert.NotEmpty(t, response.ExtBidResponse.Debug.ResolvedRequest)
	require.Contains(t, response.ExtBidResponse.Debug.HttpCalls, openrtb_ext.BidderName("appnexus"))
}

func TestHoldAuctionBidderErrorsSurfaceInExt(t *testing.T) {
	bidder := &capturingBidder{
		errs: []error{assert.AnError},
	}
	e := newTestExchange(nil, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": bidder})

	response, err := e.HoldAuction(context.Background(), newSingleBidderAuctionRequest())

	require.NoError(t, err)
	require.NotNil(t, response.ExtBidResponse)
	require.Contains(t, response.ExtBidResponse.Errors, openrtb_ext.BidderName("appnexus"))
	assert.Equal(t, assert.AnError.Error(), response.ExtBidResponse.Errors[openrtb_ext.BidderName("appnexus")][0].Message)
}

func TestHoldAuctionMultiBidValidationWarns(t *testing.T) {
	bidder := &capturingBidder{}
	e := newTestExchange(nil, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": bidder})

	r := newSingleBidderAuctionRequest()
	r.BidRequest.Ext = json.RawMessage(`{"prebid":{"multibid":[{"bidder":"appnexus"}]}}`)

	response, err := e.HoldAuction(context.Background(), r)

	require.NoError(t, err)
	require.NotNil(t, response.ExtBidResponse)

	general := openrtb_ext.BidderName(openrtb_ext.GeneralExtKey)
	assert.NotContains(t, response.ExtBidResponse.Errors, general)
	require.Contains(t, response.ExtBidResponse.Warnings, general)
	warnings := response.ExtBidResponse.Warnings[general]
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "maxBids not defined")
	assert.Equal(t, errortypes.MultiBidWarningCode, warnings[0].Code)
}

func TestHoldAuctionDroppedBidWarningIsDebugGated(t *testing.T) {
	droppedMsg := "Dropped bid 'bid-1'. Does not contain a positive (or zero if there is a deal) 'price'"
	newBidder := func() *capturingBidder {
		return &capturingBidder{errs: []error{&errortypes.DebugWarning{Message: droppedMsg}}}
	}

	t.Run("debug-off", func(t *testing.T) {
		e := newTestExchange(nil, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": newBidder()})

		response, err := e.HoldAuction(context.Background(), newSingleBidderAuctionRequest())

		require.NoError(t, err)
		require.NotNil(t, response.ExtBidResponse)
		assert.Empty(t, response.ExtBidResponse.Warnings[openrtb_ext.BidderName("appnexus")])
	})

	t.Run("debug-on", func(t *testing.T) {
		e := newTestExchange(nil, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": newBidder()})

		r := newSingleBidderAuctionRequest()
		r.BidRequest.Test = 1
		response, err := e.HoldAuction(context.Background(), r)

		require.NoError(t, err)
		require.NotNil(t, response.ExtBidResponse)
		warnings := response.ExtBidResponse.Warnings[openrtb_ext.BidderName("appnexus")]
		require.Len(t, warnings, 1)
		assert.Equal(t, droppedMsg, warnings[0].Message)
	})
}

func TestBuildStoredAuctionResponse(t *testing.T) {
	stored := map[string]json.RawMessage{
		"imp-1": json.RawMessage(`[{"seat":"appnexus","bid":[{"id":"bid-1","price":1.0,"ext":{"prebid":{"type":"banner"}}}]}]`),
		"imp-2": json.RawMessage(`[{"seat":"appnexus","bid":[{"id":"bid-2","price":2.0,"ext":{"prebid":{"type":"video"}}}]},{"seat":"rubicon","bid":[{"id":"bid-3","price":3.0,"ext":{"prebid":{"type":"banner"}}}]}]`),
	}

	participations, err := buildStoredAuctionResponse(stored)

	require.NoError(t, err)
	require.Len(t, participations, 2)

	byBidder := map[openrtb_ext.BidderName]AuctionParticipation{}
	for _, p := range participations {
		byBidder[p.Bidder] = p
	}

	appnexus := byBidder["appnexus"]
	require.Len(t, appnexus.SeatBids, 1)
	require.Len(t, appnexus.SeatBids[0].Bids, 2)
	assert.Equal(t, "imp-1", appnexus.SeatBids[0].Bids[0].Bid.ImpID)
	assert.Equal(t, openrtb_ext.BidTypeBanner, appnexus.SeatBids[0].Bids[0].BidType)
	assert.Equal(t, "imp-2", appnexus.SeatBids[0].Bids[1].Bid.ImpID)

	rubicon := byBidder["rubicon"]
	require.Len(t, rubicon.SeatBids, 1)
	require.Len(t, rubicon.SeatBids[0].Bids, 1)
}

func TestBuildStoredAuctionResponseMissingBidType(t *testing.T) {
	stored := map[string]json.RawMessage{
		"imp-1": json.RawMessage(`[{"seat":"appnexus","bid":[{"id":"bid-1","price":1.0}]}]`),
	}

	participations, err := buildStoredAuctionResponse(stored)

	assert.Nil(t, participations)
	require.Error(t, err)
	assert.EqualError(t, err, `Failed to parse bid mediatype for impression "imp-1"`)
}

func TestGetMediaTypeForBid(t *testing.T) {
	bidType, err := getMediaTypeForBid(openrtb2.Bid{ImpID: "imp-1", Ext: json.RawMessage(`{"prebid":{"type":"video"}}`)})
	require.NoError(t, err)
	assert.Equal(t, openrtb_ext.BidTypeVideo, bidType)

	_, err = getMediaTypeForBid(openrtb2.Bid{ImpID: "imp-1"})
	assert.Error(t, err)
}

func TestBidIDGenerator(t *testing.T) {
	disabled := &bidIDGenerated{enabled: false}
	assert.False(t, disabled.Enabled())

	enabled := &bidIDGenerated{enabled: true}
	assert.True(t, enabled.Enabled())

	first, err := enabled.New()
	require.NoError(t, err)
	second, err := enabled.New()
	require.NoError(t, err)
	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}

func TestErrorsToMetric(t *testing.T) {
	assert.Nil(t, errorsToMetric(nil))

	got := errorsToMetric([]error{
		&errortypes.Timeout{Message: "timed out"},
		&errortypes.BadInput{Message: "bad input"},
		&errortypes.BadServerResponse{Message: "bad response"},
		assert.AnError,
	})

	assert.Equal(t, map[metrics.AdapterError]struct{}{
		metrics.AdapterErrorTimeout:           {},
		metrics.AdapterErrorBadInput:          {},
		metrics.AdapterErrorBadServerResponse: {},
		metrics.AdapterErrorUnknown:           {},
	}, got)
}
