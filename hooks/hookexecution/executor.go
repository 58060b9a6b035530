package hookexecution

import (
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/bidflare/exchange-core/adapters"
	"github.com/bidflare/exchange-core/config"
)

// StageExecutor executes the hook stages the auction invokes.
type StageExecutor interface {
	// ExecuteBidderRequestStage runs the bidder-request hooks for one outgoing
	// bidder request. A non-nil RejectError means the bidder must be skipped.
	ExecuteBidderRequestStage(req *openrtb2.BidRequest, bidder string) *RejectError
	// ExecuteRawBidderResponseStage runs the raw-bidder-response hooks over a
	// bidder's parsed response. A non-nil RejectError means the bidder's bids
	// must be discarded.
	ExecuteRawBidderResponseStage(response *adapters.BidderResponse, bidder string) *RejectError
	// ExecuteAuctionResponseStage runs the auction-response hooks over the
	// final response. The stage cannot reject.
	ExecuteAuctionResponseStage(response *openrtb2.BidResponse)
}

// HookStageExecutor is the complete executor surface handed to the auction.
type HookStageExecutor interface {
	StageExecutor
	SetAccount(account *config.Account)
	GetOutcomes() []StageOutcome
}

// EmptyHookExecutor executes no hooks at all.
type EmptyHookExecutor struct{}

func (executor EmptyHookExecutor) SetAccount(_ *config.Account) {}

func (executor EmptyHookExecutor) GetOutcomes() []StageOutcome {
	return []StageOutcome{}
}

func (executor EmptyHookExecutor) ExecuteBidderRequestStage(_ *openrtb2.BidRequest, _ string) *RejectError {
	return nil
}

func (executor EmptyHookExecutor) ExecuteRawBidderResponseStage(_ *adapters.BidderResponse, _ string) *RejectError {
	return nil
}

func (executor EmptyHookExecutor) ExecuteAuctionResponseStage(_ *openrtb2.BidResponse) {}
