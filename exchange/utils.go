package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/prebid/go-gdpr/vendorconsent"
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/bidflare/exchange-core/errortypes"
	"github.com/bidflare/exchange-core/firstpartydata"
	"github.com/bidflare/exchange-core/floors"
	"github.com/bidflare/exchange-core/metrics"
	"github.com/bidflare/exchange-core/openrtb_ext"
	"github.com/bidflare/exchange-core/ortb"
	"github.com/bidflare/exchange-core/privacy"
	"github.com/bidflare/exchange-core/schain"
	"github.com/bidflare/exchange-core/stored_responses"
	"github.com/bidflare/exchange-core/util/jsonutil"
)

// BidderRequest holds the bid request and meta data for a single bidder.
type BidderRequest struct {
	BidRequest            *openrtb2.BidRequest
	BidderName            openrtb_ext.BidderName
	BidderCoreName        openrtb_ext.BidderName
	IsRequestAlias        bool
	BidderLabels          metrics.AdapterLabels
	BidderStoredResponses map[string]json.RawMessage
	ImpReplaceImpId       map[string]bool
	OriginalFloors        map[string]floors.Price
}

type requestSplitter struct {
	me                metrics.MetricsEngine
	masker            privacy.Masker
	hostSChainNode    *openrtb2.SupplyChainNode
	requestConverter  ortb.RequestConverter
	impAdjuster       ImpAdjuster
	uidUpdater        UidUpdater
	strictEntityCheck bool
}

// cleanOpenRTBRequests splits the input request into requests which are sanitized for each bidder. Intended behavior is:
//
//  1. BidRequest.Imp[].Ext will only contain the "bidder" params for the intended Bidder plus reserved sibling sections.
//  2. Every BidRequest.Imp[] requested Bids from the Bidder who keys it.
//  3. BidRequest.User.BuyerUID will be set to that Bidder's ID.
func (rs *requestSplitter) cleanOpenRTBRequests(ctx context.Context,
	auctionReq AuctionRequest,
	requestExt *openrtb_ext.ExtRequest,
	resolvedFPD map[openrtb_ext.BidderName]*firstpartydata.ResolvedFirstPartyData,
	originalFloors map[string]floors.Price,
	nonBids SeatNonBidBuilder,
) (allowedBidderRequests []BidderRequest, privacyLabels metrics.PrivacyLabels, errs []error) {

	req := auctionReq.BidRequest
	if err := validateRequestEntities(req, rs.strictEntityCheck, rs.me); err != nil {
		errs = []error{err}
		return
	}

	aliases := parseAliases(requestExt)
	if aliasErrs := validateAliases(aliases); len(aliasErrs) > 0 {
		errs = aliasErrs
		return
	}

	impsByBidder, splitErrs := splitImps(req.Imp, aliases)
	errs = append(errs, splitErrs...)
	if errortypes.ContainsFatalError(splitErrs) {
		return
	}

	explicitBuyerUIDs, err := extractBuyerUIDs(req.User)
	if err != nil {
		errs = append(errs, err)
		return
	}

	bidders := make([]string, 0, len(impsByBidder))
	for bidder := range impsByBidder {
		bidders = append(bidders, bidder)
	}
	sort.Strings(bidders)

	bidderUserDevice := make(map[string]privacy.UserDevice, len(bidders))
	for _, bidder := range bidders {
		bidderUserDevice[bidder] = privacy.UserDevice{User: req.User, Device: req.Device}
	}
	maskResults, err := rs.masker.Mask(ctx, bidderUserDevice, auctionReq.Account)
	if err != nil {
		errs = append(errs, err)
		return
	}
	maskByBidder := make(map[string]privacy.BidderPrivacyResult, len(maskResults))
	for _, result := range maskResults {
		maskByBidder[result.Bidder] = result
	}

	sChainWriter, err := schain.NewSChainWriter(requestExt, rs.hostSChainNode)
	if err != nil {
		errs = append(errs, err)
		return
	}

	bidderToStoredResp := stored_responses.InitStoredBidResponses(req, auctionReq.StoredBidResponses)

	stripTids := !auctionReq.Activities.Allow(privacy.ActivityTransmitTIDs, privacy.Component{Type: privacy.ComponentTypeGeneral, Name: "exchange"})
	if requestExt != nil && requestExt.Prebid.CreateTids != nil && !*requestExt.Prebid.CreateTids {
		stripTids = true
	}

	uidUpdater := rs.uidUpdater
	if uidUpdater == nil {
		uidUpdater = standardUidUpdater{}
	}

	allowedBidderRequests = make([]BidderRequest, 0, len(bidders))
	for _, bidder := range bidders {
		coreBidder, isRequestAlias := resolveBidder(bidder, aliases)
		component := privacy.Component{Type: privacy.ComponentTypeBidder, Name: bidder}

		if !auctionReq.Activities.Allow(privacy.ActivityFetchBids, component) {
			nonBids.rejectImps(impIDs(impsByBidder[bidder]), RequestBlockedGeneral, bidder)
			continue
		}
		maskResult := maskByBidder[bidder]
		if maskResult.BlockedRequest {
			nonBids.rejectImps(impIDs(impsByBidder[bidder]), RequestBlockedPrivacy, bidder)
			continue
		}

		reqCopy := ortb.CloneBidRequestPartial(req)
		reqCopy.Imp = impsByBidder[bidder]
		reqCopy.User = ortb.CloneUser(maskResult.User)
		reqCopy.Device = ortb.CloneDevice(maskResult.Device)

		if uidResult := uidUpdater.UpdateUid(bidder, coreBidder, explicitBuyerUIDs, auctionReq.UserSyncs); uidResult.Changed {
			reqCopy.User = copyWithBuyerUID(reqCopy.User, uidResult.Value)
		}

		if fpd := resolvedFPD[openrtb_ext.BidderName(bidder)]; fpd != nil {
			if fpd.Site != nil {
				reqCopy.Site = fpd.Site
			}
			if fpd.App != nil {
				reqCopy.App = fpd.App
			}
			if fpd.DOOH != nil {
				reqCopy.DOOH = fpd.DOOH
			}
			if fpd.User != nil {
				reqCopy.User = fpd.User
			}
		}

		removeUnpermissionedEids(reqCopy.User, bidder, requestExt)
		sChainWriter.Write(reqCopy, bidder)
		prepareExt(reqCopy, requestExt)

		if stripTids || !auctionReq.Activities.Allow(privacy.ActivityTransmitTIDs, component) {
			scrubTids(reqCopy)
		}

		if rs.impAdjuster != nil {
			for i := range reqCopy.Imp {
				adjusted, err := rs.impAdjuster.Adjust(&reqCopy.Imp[i], bidder)
				if err != nil {
					errs = append(errs, &errortypes.Warning{
						Message:     fmt.Sprintf("unable to adjust imp %s for bidder %s: %v", reqCopy.Imp[i].ID, bidder, err),
						WarningCode: errortypes.UnknownWarningCode,
					})
					continue
				}
				if adjusted != nil {
					reqCopy.Imp[i] = *adjusted
				}
			}
		}

		if err := rs.requestConverter.Convert(reqCopy); err != nil {
			errs = append(errs, &errortypes.Warning{
				Message:     fmt.Sprintf("unable to convert request for bidder %s: %v", bidder, err),
				WarningCode: errortypes.UnknownWarningCode,
			})
			continue
		}

		storedForBidder := bidderToStoredResp[openrtb_ext.BidderName(bidder)]
		if len(storedForBidder) > 0 {
			stored_responses.RemoveImpsWithStoredResponses(reqCopy, storedForBidder)
		}
		if len(reqCopy.Imp) == 0 && len(storedForBidder) == 0 {
			continue
		}

		allowedBidderRequests = append(allowedBidderRequests, BidderRequest{
			BidRequest:            reqCopy,
			BidderName:            openrtb_ext.BidderName(bidder),
			BidderCoreName:        coreBidder,
			IsRequestAlias:        isRequestAlias,
			BidderStoredResponses: storedForBidder,
			ImpReplaceImpId:       auctionReq.BidderImpReplaceImpID[bidder],
			OriginalFloors:        originalFloors,
			BidderLabels: metrics.AdapterLabels{
				Source:      auctionReq.LegacyLabels.Source,
				RType:       auctionReq.LegacyLabels.RType,
				Adapter:     coreBidder,
				PubID:       auctionReq.LegacyLabels.PubID,
				AdapterBids: metrics.AdapterBidPresent,
			},
		})
	}

	privacyLabels = buildPrivacyLabels(req)
	return
}

func impIDs(imps []openrtb2.Imp) []string {
	ids := make([]string, len(imps))
	for i := range imps {
		ids[i] = imps[i].ID
	}
	return ids
}

// validateRequestEntities enforces that at most one of site, app and dooh is
// defined. In strict mode a violation fails the request; otherwise the extra
// entities are trimmed with precedence app, then site, then dooh.
func validateRequestEntities(req *openrtb2.BidRequest, strict bool, me metrics.MetricsEngine) error {
	present := make([]string, 0, 3)
	if req.App != nil {
		present = append(present, "app")
	}
	if req.DOOH != nil {
		present = append(present, "dooh")
	}
	if req.Site != nil {
		present = append(present, "site")
	}
	if len(present) < 2 {
		return nil
	}

	if strict {
		return &errortypes.BadInput{
			Message: strings.Join(present, " and ") + " are present, but no more than one of site or app or dooh can be defined",
		}
	}

	if req.App != nil {
		req.Site = nil
		req.DOOH = nil
	} else {
		req.DOOH = nil
	}
	me.RecordGeneralAlert("multiple_entity_objects")
	return nil
}

// parseAliases returns the alias map from request.ext.prebid.aliases.
func parseAliases(requestExt *openrtb_ext.ExtRequest) map[string]string {
	if requestExt == nil {
		return nil
	}
	return requestExt.Prebid.Aliases
}

func validateAliases(aliases map[string]string) []error {
	var errs []error
	for alias, coreBidder := range aliases {
		if _, known := openrtb_ext.NormalizeBidderName(coreBidder); !known {
			errs = append(errs, &errortypes.BadInput{
				Message: fmt.Sprintf("request.ext.prebid.aliases.%s refers to unknown bidder: %s", alias, coreBidder),
			})
		}
	}
	return errs
}

// resolveBidder returns the core BidderName a bidder code maps to, and whether
// the code is an alias defined on the request.
func resolveBidder(bidder string, requestAliases map[string]string) (openrtb_ext.BidderName, bool) {
	normalisedBidderName, _ := openrtb_ext.NormalizeBidderName(bidder)

	if coreBidder, ok := requestAliases[bidder]; ok {
		return openrtb_ext.NormalizeBidderNameOrUnchanged(coreBidder), true
	}
	if parent, ok := openrtb_ext.GetAliasBidderToParent()[normalisedBidderName]; ok {
		return parent, false
	}
	return normalisedBidderName, false
}

// splitImps takes a list of Imps and returns a map of imps which have been sanitized for each bidder.
//
// For example, suppose imps has two elements. One goes to rubicon, while the other goes to appnexus and ix.
// The returned map will have three keys: rubicon, appnexus, and ix, each with one Imp.
// The "imp.ext" of each produced Imp holds that bidder's params under "bidder" plus any reserved
// first party sections (data, gpid, tid, skadn) carried over unchanged.
//
// The goal here is so that Bidders only get Imps and Imp.Ext values which are intended for them.
func splitImps(imps []openrtb2.Imp, requestAliases map[string]string) (map[string][]openrtb2.Imp, []error) {
	impsByBidder := make(map[string][]openrtb2.Imp, len(imps))
	var errs []error

	for i, imp := range imps {
		var impExt map[string]json.RawMessage
		if err := jsonutil.Unmarshal(imp.Ext, &impExt); err != nil {
			return nil, []error{fmt.Errorf("Error unpacking extensions for Imp[%d]: %s", i, err.Error())}
		}

		bidderParams := extractBidderParams(impExt)
		sharedSections := extractReservedSections(impExt)

		for bidder, params := range bidderParams {
			if !isKnownBidder(bidder, requestAliases) {
				errs = append(errs, &errortypes.Warning{
					Message:     fmt.Sprintf("request.imp[%d].ext.prebid.bidder contains unknown bidder: %s. Did you forget an alias in request.ext.prebid.aliases?", i, bidder),
					WarningCode: errortypes.UnknownWarningCode,
				})
				continue
			}

			sanitizedExt := make(map[string]json.RawMessage, len(sharedSections)+1)
			for section, value := range sharedSections {
				sanitizedExt[section] = value
			}
			sanitizedExt[openrtb_ext.PrebidExtBidderKey] = params

			rawExt, err := jsonutil.Marshal(sanitizedExt)
			if err != nil {
				errs = append(errs, err)
				continue
			}

			impCopy := imp
			impCopy.Ext = rawExt
			impsByBidder[bidder] = append(impsByBidder[bidder], impCopy)
		}
	}

	return impsByBidder, errs
}

// extractBidderParams returns the per-bidder params of one imp ext. The
// preferred location is ext.prebid.bidder; top level non-reserved keys are the
// legacy fallback.
func extractBidderParams(impExt map[string]json.RawMessage) map[string]json.RawMessage {
	if rawPrebid, ok := impExt[openrtb_ext.PrebidExtKey]; ok {
		var prebid openrtb_ext.ExtImpPrebid
		if err := jsonutil.Unmarshal(rawPrebid, &prebid); err == nil && len(prebid.Bidder) > 0 {
			return prebid.Bidder
		}
	}

	params := make(map[string]json.RawMessage, len(impExt))
	for key, value := range impExt {
		if openrtb_ext.IsBidderNameReserved(key) {
			continue
		}
		params[key] = value
	}
	return params
}

func extractReservedSections(impExt map[string]json.RawMessage) map[string]json.RawMessage {
	sections := make(map[string]json.RawMessage, len(impExt))
	for key, value := range impExt {
		if openrtb_ext.IsBidderNameReserved(key) && strings.ToLower(key) != openrtb_ext.PrebidExtKey {
			sections[key] = value
		}
	}
	return sections
}

func isKnownBidder(bidder string, requestAliases map[string]string) bool {
	if _, ok := requestAliases[bidder]; ok {
		return true
	}
	_, known := openrtb_ext.NormalizeBidderName(bidder)
	return known
}

// prepareExt rewrites the request ext for one bidder, dropping the schains
// section so a bidder cannot see the chains intended for others.
func prepareExt(req *openrtb2.BidRequest, requestExt *openrtb_ext.ExtRequest) {
	if len(req.Ext) == 0 || requestExt == nil {
		return
	}
	extCopy := *requestExt
	extCopy.Prebid.SChains = nil
	rawExt, err := jsonutil.Marshal(extCopy)
	if err == nil {
		req.Ext = rawExt
	}
}

// scrubTids removes the transaction ids from source.tid and every imp.ext.tid.
func scrubTids(req *openrtb2.BidRequest) {
	if req.Source != nil {
		req.Source.TID = ""
	}
	for i := range req.Imp {
		if len(req.Imp[i].Ext) == 0 {
			continue
		}
		req.Imp[i].Ext = jsonparser.Delete(req.Imp[i].Ext, openrtb_ext.TIDExtKey)
	}
}

// extractBuyerUIDs parses the values from user.ext.prebid.buyeruids, and then deletes those values from the ext.
// This prevents a Bidder from using these values to figure out who else is involved in the Auction.
func extractBuyerUIDs(user *openrtb2.User) (map[string]string, error) {
	if user == nil || len(user.Ext) == 0 {
		return nil, nil
	}

	var userExt openrtb_ext.ExtUser
	if err := jsonutil.Unmarshal(user.Ext, &userExt); err != nil {
		return nil, err
	}
	if userExt.Prebid == nil {
		return nil, nil
	}

	buyerUIDs := userExt.Prebid.BuyerUIDs
	userExt.Prebid = nil
	if userExt.Consent != "" || userExt.Data != nil || len(userExt.Eids) > 0 {
		newUserExtBytes, err := jsonutil.Marshal(userExt)
		if err != nil {
			return nil, err
		}
		user.Ext = newUserExtBytes
	} else {
		user.Ext = nil
	}
	return buyerUIDs, nil
}

// copyWithBuyerUID either overwrites the BuyerUID property on user with the argument, or returns
// a new (empty) User with the BuyerUID already set.
func copyWithBuyerUID(user *openrtb2.User, buyerUID string) *openrtb2.User {
	if user == nil {
		return &openrtb2.User{
			BuyerUID: buyerUID,
		}
	}
	if user.BuyerUID == "" {
		clone := *user
		clone.BuyerUID = buyerUID
		return &clone
	}
	return user
}

// removeUnpermissionedEids drops every user.eids element whose source carries
// an eid permission list that does not name the bidder. Sources with no
// permission entry pass through untouched.
func removeUnpermissionedEids(user *openrtb2.User, bidder string, requestExt *openrtb_ext.ExtRequest) {
	if user == nil || len(user.EIDs) == 0 {
		return
	}
	if requestExt == nil || requestExt.Prebid.Data == nil || len(requestExt.Prebid.Data.EidPermissions) == 0 {
		return
	}

	eidRules := make(map[string][]string, len(requestExt.Prebid.Data.EidPermissions))
	for _, permission := range requestExt.Prebid.Data.EidPermissions {
		eidRules[permission.Source] = permission.Bidders
	}

	eidsAllowed := make([]openrtb2.EID, 0, len(user.EIDs))
	for _, eid := range user.EIDs {
		allowedBidders, hasRule := eidRules[eid.Source]
		if !hasRule || bidderInList(allowedBidders, bidder) {
			eidsAllowed = append(eidsAllowed, eid)
		}
	}
	if len(eidsAllowed) == 0 {
		user.EIDs = nil
	} else {
		user.EIDs = eidsAllowed
	}
}

func bidderInList(bidders []string, bidder string) bool {
	for _, b := range bidders {
		if b == "*" || strings.EqualFold(b, bidder) {
			return true
		}
	}
	return false
}

func buildPrivacyLabels(req *openrtb2.BidRequest) metrics.PrivacyLabels {
	var labels metrics.PrivacyLabels

	if req.Regs != nil {
		labels.COPPAEnforced = req.Regs.COPPA == 1
		if req.Regs.GDPR != nil && *req.Regs.GDPR == 1 {
			labels.GDPREnforced = true
			if req.User != nil && req.User.Consent != "" {
				if parsedConsent, err := vendorconsent.ParseString(req.User.Consent); err == nil {
					labels.GDPRTCFVersion = metrics.TCFVersionToValue(int(parsedConsent.Version()))
				}
			}
		}
	}
	if req.Device != nil && req.Device.Lmt != nil && *req.Device.Lmt == 1 {
		labels.LMTEnforced = true
	}

	return labels
}
