package stored_responses

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/bidflare/exchange-core/openrtb_ext"
	"github.com/bidflare/exchange-core/util/jsonutil"
)

type ImpsWithAuctionResponseIDs map[string]string
type ImpBiddersWithBidResponseIDs map[string]map[string]string
type StoredResponseIDs []string
type StoredResponseIdToStoredResponse map[string]json.RawMessage
type BidderImpsWithBidResponses map[openrtb_ext.BidderName]map[string]json.RawMessage
type ImpsWithBidResponses map[string]json.RawMessage
type ImpBidderStoredResp map[string]map[string]json.RawMessage
type ImpBidderReplaceImpID map[string]map[string]bool
type BidderImpReplaceImpID map[string]map[string]bool

// Fetcher knows how to fetch stored response data by id.
type Fetcher interface {
	// FetchResponses fetches the stored responses for the given ids.
	// The returned map will have keys for every id in the argument, unless errors exist.
	FetchResponses(ctx context.Context, ids []string) (StoredResponseIdToStoredResponse, []error)
}

// InitStoredBidResponses organizes the stored bid responses by bidder.
func InitStoredBidResponses(req *openrtb2.BidRequest, storedBidResponses ImpBidderStoredResp) BidderImpsWithBidResponses {
	return buildStoredResp(storedBidResponses)
}

// RemoveImpsWithStoredResponses deletes imps that have a stored bid response from
// a single bidder's outgoing request. An empty imp list indicates the bidder has
// no real requests left.
func RemoveImpsWithStoredResponses(req *openrtb2.BidRequest, impsWithStoredResp map[string]json.RawMessage) {
	imps := req.Imp
	req.Imp = nil //to indicate this bidder doesn't have real requests
	for _, imp := range imps {
		if _, ok := impsWithStoredResp[imp.ID]; !ok {
			//add real imp back to request
			req.Imp = append(req.Imp, imp)
		}
	}
}

func buildStoredResp(storedBidResponses ImpBidderStoredResp) BidderImpsWithBidResponses {
	// bidder -> imp id -> stored bid resp
	bidderToImpToResponses := BidderImpsWithBidResponses{}
	for impID, storedData := range storedBidResponses {
		for bidderName, storedResp := range storedData {
			if _, ok := bidderToImpToResponses[openrtb_ext.BidderName(bidderName)]; !ok {
				//new bidder with stored bid responses
				impToStoredResp := ImpsWithBidResponses{}
				impToStoredResp[impID] = storedResp
				bidderToImpToResponses[openrtb_ext.BidderName(bidderName)] = impToStoredResp
			} else {
				bidderToImpToResponses[openrtb_ext.BidderName(bidderName)][impID] = storedResp
			}
		}
	}
	return bidderToImpToResponses
}

func extractStoredResponsesIds(imps []openrtb2.Imp) (
	StoredResponseIDs,
	ImpBiddersWithBidResponseIDs,
	ImpsWithAuctionResponseIDs,
	ImpBidderReplaceImpID,
	error,
) {
	// extractStoredResponsesIds returns:
	// 1) all stored responses ids from all imps
	allStoredResponseIDs := StoredResponseIDs{}
	// 2) stored bid responses: imp id to bidder to stored response id
	impBiddersWithBidResponseIDs := ImpBiddersWithBidResponseIDs{}
	// 3) imp id to stored resp id
	impAuctionResponseIDs := ImpsWithAuctionResponseIDs{}
	// 4) imp id to bidder to bool replace imp in response
	impBidderReplaceImp := ImpBidderReplaceImpID{}

	for index, imp := range imps {
		if len(imp.Ext) == 0 {
			continue
		}

		var impExt openrtb_ext.ExtImp
		if err := jsonutil.Unmarshal(imp.Ext, &impExt); err != nil {
			return nil, nil, nil, nil, err
		}
		impExtPrebid := impExt.Prebid
		if impExtPrebid == nil {
			continue
		}

		if impExtPrebid.StoredAuctionResponse != nil {
			if len(impExtPrebid.StoredAuctionResponse.ID) == 0 {
				return nil, nil, nil, nil, fmt.Errorf("request.imp[%d] has ext.prebid.storedauctionresponse specified, but \"id\" field is missing ", index)
			}
			allStoredResponseIDs = append(allStoredResponseIDs, impExtPrebid.StoredAuctionResponse.ID)

			impAuctionResponseIDs[imp.ID] = impExtPrebid.StoredAuctionResponse.ID
		}

		if len(impExtPrebid.StoredBidResponse) > 0 {
			// bidders can be specified in imp.ext and in imp.ext.prebid.bidder
			allBidderNames := make([]string, 0)
			for bidderName := range impExtPrebid.Bidder {
				allBidderNames = append(allBidderNames, bidderName)
			}
			for _, bidderName := range topLevelExtBidders(imp.Ext) {
				allBidderNames = append(allBidderNames, bidderName)
			}

			bidderStoredRespId := make(map[string]string)
			bidderReplaceImpId := make(map[string]bool)
			for _, bidderResp := range impExtPrebid.StoredBidResponse {
				if len(bidderResp.ID) == 0 || len(bidderResp.Bidder) == 0 {
					return nil, nil, nil, nil, fmt.Errorf("request.imp[%d] has ext.prebid.storedbidresponse specified, but \"id\" or/and \"bidder\" fields are missing ", index)
				}

				for _, bidderName := range allBidderNames {
					if _, found := bidderStoredRespId[bidderName]; !found && strings.EqualFold(bidderName, bidderResp.Bidder) {
						bidderStoredRespId[bidderName] = bidderResp.ID
						impBiddersWithBidResponseIDs[imp.ID] = bidderStoredRespId

						// stored response config can specify if imp id should be replaced with imp id from request
						replaceImpId := true
						if bidderResp.ReplaceImpId != nil {
							// replaceimpid is true if not specified
							replaceImpId = *bidderResp.ReplaceImpId
						}
						bidderReplaceImpId[bidderName] = replaceImpId
						impBidderReplaceImp[imp.ID] = bidderReplaceImpId

						//storedAuctionResponseIds are not unique, but fetch will return single data for repeated ids
						allStoredResponseIDs = append(allStoredResponseIDs, bidderResp.ID)
					}
				}
			}
		}
	}
	return allStoredResponseIDs, impBiddersWithBidResponseIDs, impAuctionResponseIDs, impBidderReplaceImp, nil
}

// topLevelExtBidders returns the non-reserved top level keys of the imp ext.
func topLevelExtBidders(impExt json.RawMessage) []string {
	extMap := map[string]json.RawMessage{}
	if err := jsonutil.Unmarshal(impExt, &extMap); err != nil {
		return nil
	}

	bidders := make([]string, 0, len(extMap))
	for key := range extMap {
		if !openrtb_ext.IsBidderNameReserved(key) {
			bidders = append(bidders, key)
		}
	}
	return bidders
}

// ProcessStoredResponses takes the incoming request with any stored requests/imps already merged into it,
// scans it to find any stored auction response ids and stored bid response ids in the request/imps and
// produces a map of imp IDs to stored auction responses and map of imp to bidder to stored response.
// Note that ProcessStoredResponses must be called after stored requests processing because stored imps
// and stored requests can contain stored auction responses and stored bid responses, so the stored
// requests/imps have to be merged into the incoming request prior to processing stored auction responses.
func ProcessStoredResponses(ctx context.Context, req *openrtb2.BidRequest, storedRespFetcher Fetcher) (ImpsWithBidResponses, ImpBidderStoredResp, BidderImpReplaceImpID, []error) {
	storedResponsesIds, impBidderToStoredBidResponseId, impIdToRespId, impBidderReplaceImp, err := extractStoredResponsesIds(req.Imp)
	if err != nil {
		return nil, nil, nil, []error{err}
	}

	if len(storedResponsesIds) > 0 {
		storedResponses, errs := storedRespFetcher.FetchResponses(ctx, storedResponsesIds)
		if len(errs) > 0 {
			return nil, nil, nil, errs
		}
		bidderImpIdReplaceImp := flipMap(impBidderReplaceImp)

		impIdToStoredResp, impBidderToStoredBidResponse, errs := buildStoredResponsesMaps(storedResponses, impBidderToStoredBidResponseId, impIdToRespId)

		return impIdToStoredResp, impBidderToStoredBidResponse, bidderImpIdReplaceImp, errs
	}
	return nil, nil, nil, nil
}

// flipMap takes map[impID][bidderName]replaceImpId and modifies it to map[bidderName][impId]replaceImpId
func flipMap(impBidderReplaceImpId ImpBidderReplaceImpID) BidderImpReplaceImpID {
	flippedMap := BidderImpReplaceImpID{}
	for impId, impData := range impBidderReplaceImpId {
		for bidder, replaceImpId := range impData {
			if _, ok := flippedMap[bidder]; !ok {
				flippedMap[bidder] = make(map[string]bool)
			}
			flippedMap[bidder][impId] = replaceImpId
		}
	}
	return flippedMap
}

func buildStoredResponsesMaps(storedResponses StoredResponseIdToStoredResponse, impBidderToStoredBidResponseId ImpBiddersWithBidResponseIDs, impIdToRespId ImpsWithAuctionResponseIDs) (ImpsWithBidResponses, ImpBidderStoredResp, []error) {
	var errs []error
	//imp id to stored resp body
	impIdToStoredResp := ImpsWithBidResponses{}
	//stored bid responses: imp id to bidder to stored response body
	impBidderToStoredBidResponse := ImpBidderStoredResp{}

	for impId, respId := range impIdToRespId {
		if len(storedResponses[respId]) == 0 {
			errs = append(errs, fmt.Errorf("failed to fetch stored auction response for impId = %s and storedAuctionResponse id = %s", impId, respId))
		} else {
			impIdToStoredResp[impId] = storedResponses[respId]
		}
	}

	for impId, bidderStoredResp := range impBidderToStoredBidResponseId {
		bidderStoredResponses := StoredResponseIdToStoredResponse{}
		for bidderName, id := range bidderStoredResp {
			if len(storedResponses[id]) == 0 {
				errs = append(errs, fmt.Errorf("failed to fetch stored bid response for impId = %s, bidder = %s and storedBidResponse id = %s", impId, bidderName, id))
			} else {
				bidderStoredResponses[bidderName] = storedResponses[id]
			}
		}
		impBidderToStoredBidResponse[impId] = bidderStoredResponses
	}
	return impIdToStoredResp, impBidderToStoredBidResponse, errs
}
