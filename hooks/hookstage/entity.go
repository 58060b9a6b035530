package hookstage

// Entity specifies the type of object that was processed during the execution of the stage.
type Entity string

const (
	EntityAuctionRequest  Entity = "auction_request"
	EntityAuctionResponse Entity = "auction_response"
	EntityBidderRequest   Entity = "bidder_request"
	EntityBidderResponse  Entity = "bidder_response"
)
