package hooks

// Names of the available stages.
const (
	StageBidderRequest     = "bidder_request"
	StageRawBidderResponse = "raw_bidder_response"
	StageAuctionResponse   = "auction_response"
)
