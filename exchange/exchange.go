package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang/glog"
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/bidflare/exchange-core/adapters"
	"github.com/bidflare/exchange-core/config"
	"github.com/bidflare/exchange-core/currency"
	"github.com/bidflare/exchange-core/errortypes"
	"github.com/bidflare/exchange-core/exchange/entities"
	"github.com/bidflare/exchange-core/firstpartydata"
	"github.com/bidflare/exchange-core/floors"
	"github.com/bidflare/exchange-core/hooks/hookexecution"
	"github.com/bidflare/exchange-core/metrics"
	"github.com/bidflare/exchange-core/openrtb_ext"
	"github.com/bidflare/exchange-core/ortb"
	"github.com/bidflare/exchange-core/privacy"
	"github.com/bidflare/exchange-core/stored_responses"
	"github.com/bidflare/exchange-core/util/jsonutil"
)

// Exchange runs auctions. Implementations must be safe for concurrent use.
type Exchange interface {
	HoldAuction(ctx context.Context, r *AuctionRequest) (*AuctionResponse, error)
}

// IdFetcher can find the user's ID for a specific Bidder.
type IdFetcher interface {
	GetUID(key string) (uid string, exists bool, notExpired bool)
}

// UidUpdateResult reports whether a buyeruid was resolved for a bidder and
// what value it takes.
type UidUpdateResult struct {
	Changed bool
	Value   string
}

// UidUpdater resolves the outgoing user.buyeruid for one bidder. The given
// bidder may be an alias; coreBidder never is.
type UidUpdater interface {
	UpdateUid(bidder string, coreBidder openrtb_ext.BidderName, explicitBuyerUIDs map[string]string, syncs IdFetcher) UidUpdateResult
}

// standardUidUpdater prefers an explicit uid from
// request.user.ext.prebid.buyeruids over the sync cookie.
type standardUidUpdater struct{}

func (standardUidUpdater) UpdateUid(bidder string, coreBidder openrtb_ext.BidderName, explicitBuyerUIDs map[string]string, syncs IdFetcher) UidUpdateResult {
	if uid, ok := explicitBuyerUIDs[bidder]; ok {
		return UidUpdateResult{Changed: true, Value: uid}
	}
	if syncs != nil {
		if uid, found, _ := syncs.GetUID(string(coreBidder)); found {
			return UidUpdateResult{Changed: true, Value: uid}
		}
	}
	return UidUpdateResult{}
}

// AuctionRequest holds the bid request for the auction and all other information
// needed to process that request.
type AuctionRequest struct {
	BidRequest                 *openrtb2.BidRequest
	Account                    config.Account
	UserSyncs                  IdFetcher
	LegacyLabels               metrics.Labels
	Warnings                   []error
	GlobalPrivacyControlHeader string
	StartTime                  time.Time

	// Rejected is set when an entity ahead of the auction decided this request
	// must not reach any bidder. The exchange still produces a hook processed
	// empty response.
	Rejected bool

	HookExecutor hookexecution.StageExecutor
	Activities   privacy.ActivityControl

	StoredAuctionResponses stored_responses.ImpsWithBidResponses
	StoredBidResponses     stored_responses.ImpBidderStoredResp
	BidderImpReplaceImpID  stored_responses.BidderImpReplaceImpID

	TmaxAdjustments *TmaxAdjustmentsPreprocessed
}

// AuctionResponse contains OpenRTB Bid Response object and its extension (un-marshalled) object
type AuctionResponse struct {
	*openrtb2.BidResponse
	ExtBidResponse *openrtb_ext.ExtBidResponse
}

// AuctionParticipation is the outcome of one bidder's part in the auction: the
// request it was sent and everything it returned.
type AuctionParticipation struct {
	Bidder             openrtb_ext.BidderName
	Request            BidderRequest
	SeatBids           []*entities.PbsOrtbSeatBid
	ResponseTimeMillis int
	Errors             []openrtb_ext.ExtBidderMessage
	Warnings           []openrtb_ext.ExtBidderMessage

	nonBids SeatNonBidBuilder
}

type bidIDGenerator interface {
	New() (string, error)
	Enabled() bool
}

type bidIDGenerated struct {
	enabled bool
}

func (big *bidIDGenerated) Enabled() bool {
	return big.enabled
}

func (big *bidIDGenerated) New() (string, error) {
	rawUuid, err := uuid.NewV4()
	return rawUuid.String(), err
}

type exchange struct {
	adapterMap        map[openrtb_ext.BidderName]AdaptedBidder
	me                metrics.MetricsEngine
	currencyConverter *currency.RateConverter
	requestSplitter   requestSplitter
	floorEnricher     floors.Enricher
	bidIDGenerator    bidIDGenerator
	responseCreator   BidResponseCreator
	postProcessor     PostProcessor
	storedRespFetcher stored_responses.Fetcher
	tmaxAdjustments   *TmaxAdjustmentsPreprocessed
	hostDebugAllowed  bool
}

// NewExchange builds an Exchange from the given adapters and host services.
// Nil masker, floor enricher, request converter and post processor arguments
// fall back to pass-through implementations.
func NewExchange(
	adapterMap map[openrtb_ext.BidderName]AdaptedBidder,
	cfg *config.Configuration,
	me metrics.MetricsEngine,
	currencyConverter *currency.RateConverter,
	masker privacy.Masker,
	floorEnricher floors.Enricher,
	requestConverter ortb.RequestConverter,
	impAdjuster ImpAdjuster,
	uidUpdater UidUpdater,
	storedRespFetcher stored_responses.Fetcher,
	postProcessor PostProcessor,
) Exchange {
	if masker == nil {
		masker = privacy.NilMasker{}
	}
	if floorEnricher == nil {
		floorEnricher = floors.NilEnricher{}
	}
	if requestConverter == nil {
		requestConverter = ortb.NopConverter{}
	}
	if impAdjuster == nil {
		impAdjuster = NilImpAdjuster{}
	}
	if uidUpdater == nil {
		uidUpdater = standardUidUpdater{}
	}
	if postProcessor == nil {
		postProcessor = NopPostProcessor{}
	}

	gen := &bidIDGenerated{enabled: cfg.GenerateBidID}

	return &exchange{
		adapterMap:        adapterMap,
		me:                me,
		currencyConverter: currencyConverter,
		requestSplitter: requestSplitter{
			me:                me,
			masker:            masker,
			hostSChainNode:    cfg.HostSChainNode,
			requestConverter:  requestConverter,
			impAdjuster:       impAdjuster,
			uidUpdater:        uidUpdater,
			strictEntityCheck: cfg.StrictEntityCheck,
		},
		floorEnricher:     floorEnricher,
		bidIDGenerator:    gen,
		responseCreator:   &standardBidResponseCreator{bidIDGenerator: gen},
		postProcessor:     postProcessor,
		storedRespFetcher: storedRespFetcher,
		tmaxAdjustments:   ProcessTMaxAdjustments(cfg.TmaxAdjustments),
		hostDebugAllowed:  cfg.DebugAllow,
	}
}

func (e *exchange) HoldAuction(ctx context.Context, r *AuctionRequest) (*AuctionResponse, error) {
	if r == nil || r.BidRequest == nil {
		return nil, nil
	}
	if r.HookExecutor == nil {
		r.HookExecutor = hookexecution.EmptyHookExecutor{}
	}
	if r.TmaxAdjustments == nil {
		r.TmaxAdjustments = e.tmaxAdjustments
	}

	var requestExt *openrtb_ext.ExtRequest
	if len(r.BidRequest.Ext) > 0 {
		requestExt = &openrtb_ext.ExtRequest{}
		if err := jsonutil.Unmarshal(r.BidRequest.Ext, requestExt); err != nil {
			return nil, fmt.Errorf("Error decoding Request.ext : %s", err.Error())
		}
	}
	var requestExtPrebid *openrtb_ext.ExtRequestPrebid
	if requestExt != nil {
		requestExtPrebid = &requestExt.Prebid
	}

	if r.Rejected {
		return e.buildRejectedAuctionResponse(r, requestExtPrebid)
	}

	cacheInstructions := getExtCacheInstructions(requestExtPrebid, &r.Account)

	requestDebug := r.BidRequest.Test == 1 || (requestExtPrebid != nil && requestExtPrebid.Debug)
	accountDebugAllow := r.Account.DebugAllow && e.hostDebugAllowed
	responseDebugAllow := requestDebug && accountDebugAllow

	var requestRates *openrtb_ext.ExtRequestCurrency
	if requestExtPrebid != nil {
		requestRates = requestExtPrebid.CurrencyConversions
	}
	conversions := currency.GetAuctionCurrencyRates(e.currencyConverter, requestRates)

	errList := make([]error, 0)
	errList = append(errList, r.Warnings...)

	originalFloors := floors.RequestFloors(r.BidRequest)
	errList = append(errList, e.floorEnricher.EnrichWithPriceFloors(r.BidRequest, r.Account, conversions)...)

	resolvedFPD, fpdErrors := firstpartydata.ExtractFPDForBidders(r.BidRequest, requestExtPrebid)
	if len(fpdErrors) > 0 {
		var errMessages []string
		for _, fpdError := range fpdErrors {
			errMessages = append(errMessages, fpdError.Error())
		}
		return nil, &errortypes.BadInput{
			Message: strings.Join(errMessages, ","),
		}
	}

	multiBidCfg, multiBidErrs := openrtb_ext.ValidateAndBuildExtMultiBid(requestExtPrebid)
	for _, multiBidErr := range multiBidErrs {
		errList = append(errList, &errortypes.Warning{
			WarningCode: errortypes.MultiBidWarningCode,
			Message:     multiBidErr.Error(),
		})
	}

	if e.storedRespFetcher != nil && len(r.StoredAuctionResponses) == 0 && len(r.StoredBidResponses) == 0 {
		storedAuctionResponses, storedBidResponses, bidderImpReplaceImpID, storedErrs := stored_responses.ProcessStoredResponses(ctx, r.BidRequest, e.storedRespFetcher)
		if fatal := errortypes.FatalOnly(storedErrs); len(fatal) > 0 {
			return nil, fatal[0]
		}
		errList = append(errList, storedErrs...)
		r.StoredAuctionResponses = storedAuctionResponses
		r.StoredBidResponses = storedBidResponses
		r.BidderImpReplaceImpID = bidderImpReplaceImpID
	}
	if len(r.StoredAuctionResponses) > 0 || len(r.StoredBidResponses) > 0 {
		e.me.RecordStoredResponse(r.LegacyLabels.PubID)
	}

	recordImpMetrics(r.BidRequest, e.me)

	nonBids := &SeatNonBidBuilder{}

	bidderRequests, privacyLabels, cleanErrs := e.requestSplitter.cleanOpenRTBRequests(ctx, *r, requestExt, resolvedFPD, originalFloors, *nonBids)
	if fatal := errortypes.FatalOnly(cleanErrs); len(fatal) > 0 {
		return nil, fatal[0]
	}
	errList = append(errList, cleanErrs...)
	e.me.RecordRequestPrivacy(privacyLabels)

	var participations []AuctionParticipation
	if len(r.StoredAuctionResponses) > 0 {
		var err error
		participations, err = buildStoredAuctionResponse(r.StoredAuctionResponses)
		if err != nil {
			return nil, err
		}
	} else {
		participations = e.getAllBids(ctx, bidderRequests, conversions, r, responseDebugAllow, nonBids)
	}

	for i := range participations {
		for _, seatBid := range participations[i].SeatBids {
			reduceDealBids(seatBid)
		}
	}

	bidResponse, err := e.responseCreator.Create(ctx, r, participations, cacheInstructions, buildMultiBidMap(multiBidCfg))
	if err != nil {
		return nil, err
	}

	if processed, ppErr := e.postProcessor.PostProcess(ctx, r, bidResponse); ppErr != nil {
		errList = append(errList, &errortypes.Warning{
			Message:     fmt.Sprintf("response post processing failed: %v", ppErr),
			WarningCode: errortypes.UnknownWarningCode,
		})
	} else if processed != nil {
		bidResponse = processed
	}

	r.HookExecutor.ExecuteAuctionResponseStage(bidResponse)

	respProcessingStart := time.Now()
	bidResponseExt := e.makeExtBidResponse(participations, r, requestExtPrebid, responseDebugAllow, errList)

	if requestDebug && !r.Account.DebugAllow {
		generalKey := openrtb_ext.BidderName(openrtb_ext.GeneralExtKey)
		if bidResponseExt.Warnings == nil {
			bidResponseExt.Warnings = make(map[openrtb_ext.BidderName][]openrtb_ext.ExtBidderMessage)
		}
		bidResponseExt.Warnings[generalKey] = append(bidResponseExt.Warnings[generalKey], openrtb_ext.ExtBidderMessage{
			Code:    errortypes.AccountLevelDebugDisabledWarningCode,
			Message: "debug turned off for account",
		})
	}

	e.attachModuleOutcomes(r, requestExtPrebid, bidResponseExt)
	attachSeatNonBids(participations, nonBids, bidResponseExt)

	encodedExt, err := encodeBidResponseExt(bidResponseExt)
	if err != nil {
		return nil, err
	}
	bidResponse.Ext = encodedExt

	if !r.StartTime.IsZero() {
		e.me.RecordRequestTime(r.LegacyLabels, time.Since(r.StartTime))
	}
	e.me.RecordOverheadTime(metrics.MakeAuctionResponse, time.Since(respProcessingStart))

	return &AuctionResponse{
		BidResponse:    bidResponse,
		ExtBidResponse: bidResponseExt,
	}, nil
}

// buildRejectedAuctionResponse produces the response for a request a module
// rejected before the auction. No bidder is called; the auction response hooks
// still run over the empty response.
func (e *exchange) buildRejectedAuctionResponse(r *AuctionRequest, requestExtPrebid *openrtb_ext.ExtRequestPrebid) (*AuctionResponse, error) {
	bidResponse := &openrtb2.BidResponse{
		ID:      r.BidRequest.ID,
		SeatBid: []openrtb2.SeatBid{},
	}

	r.HookExecutor.ExecuteAuctionResponseStage(bidResponse)

	bidResponseExt := &openrtb_ext.ExtBidResponse{}
	e.attachModuleOutcomes(r, requestExtPrebid, bidResponseExt)

	encodedExt, err := encodeBidResponseExt(bidResponseExt)
	if err != nil {
		return nil, err
	}
	bidResponse.Ext = encodedExt

	return &AuctionResponse{
		BidResponse:    bidResponse,
		ExtBidResponse: bidResponseExt,
	}, nil
}

// getAllBids executes the auction for each bidder concurrently. The returned
// participations keep the order of bidderRequests regardless of which bidder
// responds first.
func (e *exchange) getAllBids(
	ctx context.Context,
	bidderRequests []BidderRequest,
	conversions currency.Conversions,
	r *AuctionRequest,
	responseDebugAllow bool,
	nonBids *SeatNonBidBuilder,
) []AuctionParticipation {
	participations := make([]AuctionParticipation, len(bidderRequests))
	chBids := make(chan int, len(bidderRequests))

	for i, bidderRequest := range bidderRequests {
		go func(slot int, bidderRequest BidderRequest) {
			start := time.Now()
			labels := bidderRequest.BidderLabels
			defer func() {
				e.me.RecordAdapterRequest(labels)
				e.me.RecordAdapterTime(labels, time.Since(start))
				chBids <- slot
			}()
			defer e.recoverSafely(bidderRequests, &labels)

			participation := AuctionParticipation{
				Bidder:  bidderRequest.BidderName,
				Request: bidderRequest,
			}

			bidder, ok := e.adapterMap[bidderRequest.BidderCoreName]
			if !ok {
				participation.Errors = []openrtb_ext.ExtBidderMessage{{
					Code:    errortypes.UnknownErrorCode,
					Message: fmt.Sprintf("no adapter registered for bidder %s", bidderRequest.BidderCoreName),
				}}
				participations[slot] = participation
				return
			}

			reqInfo := adapters.NewExtraRequestInfo(conversions)
			reqInfo.BidderCoreName = bidderRequest.BidderCoreName
			reqInfo.GlobalPrivacyControlHeader = r.GlobalPrivacyControlHeader

			seatBids, extraInfo, errs := bidder.requestBid(ctx, bidderRequest, conversions, &reqInfo, bidRequestOptions{
				accountDebugAllowed:    responseDebugAllow,
				headerDebugAllowed:     false,
				tmaxAdjustments:        r.TmaxAdjustments,
				bidderRequestStartTime: start,
			}, r.HookExecutor)

			participation.SeatBids = seatBids
			participation.ResponseTimeMillis = int(time.Since(start).Milliseconds())
			participation.Errors = errsToBidderErrors(errs)
			participation.Warnings = errsToBidderWarnings(errs, responseDebugAllow)
			participation.nonBids = extraInfo.seatNonBidBuilder

			labels.AdapterBids = bidsToMetric(seatBids)
			labels.AdapterErrors = errorsToMetric(errs)
			for _, seatBid := range seatBids {
				for _, bid := range seatBid.Bids {
					var cpm = float64(bid.Bid.Price * 1000)
					e.me.RecordAdapterPrice(labels, cpm)
					e.me.RecordAdapterBidReceived(labels, bid.BidType, bid.Bid.AdM != "")
				}
			}

			participations[slot] = participation
		}(i, bidderRequest)
	}

	for i := 0; i < len(bidderRequests); i++ {
		<-chBids
	}

	for i := range participations {
		nonBids.append(participations[i].nonBids)
	}

	return participations
}

func (e *exchange) recoverSafely(bidderRequests []BidderRequest, labels *metrics.AdapterLabels) {
	if r := recover(); r != nil {
		allBidders := ""
		sb := strings.Builder{}
		for _, bidder := range bidderRequests {
			sb.WriteString(bidder.BidderName.String())
			sb.WriteString(",")
		}
		if sb.Len() > 0 {
			allBidders = sb.String()[:sb.Len()-1]
		}

		glog.Errorf("OpenRTB auction recovered panic from Bidder %s: %v. "+
			"Account id: %s, All Bidders: %s, Stack trace is: %v",
			labels.Adapter, r, labels.PubID, allBidders, string(debug.Stack()))
		e.me.RecordAdapterPanic(*labels)
	}
}

func bidsToMetric(seatBids []*entities.PbsOrtbSeatBid) metrics.AdapterBid {
	for _, seatBid := range seatBids {
		if seatBid != nil && len(seatBid.Bids) != 0 {
			return metrics.AdapterBidPresent
		}
	}
	return metrics.AdapterBidNone
}

func errorsToMetric(errs []error) map[metrics.AdapterError]struct{} {
	if len(errs) == 0 {
		return nil
	}
	ret := make(map[metrics.AdapterError]struct{}, len(errs))
	for _, err := range errs {
		switch errortypes.ReadCode(err) {
		case errortypes.TimeoutErrorCode:
			ret[metrics.AdapterErrorTimeout] = struct{}{}
		case errortypes.BadInputErrorCode:
			ret[metrics.AdapterErrorBadInput] = struct{}{}
		case errortypes.BadServerResponseErrorCode:
			ret[metrics.AdapterErrorBadServerResponse] = struct{}{}
		case errortypes.FailedToRequestBidsErrorCode:
			ret[metrics.AdapterErrorFailedToRequestBids] = struct{}{}
		case errortypes.TmaxTimeoutErrorCode:
			ret[metrics.AdapterErrorTmaxTimeout] = struct{}{}
		default:
			ret[metrics.AdapterErrorUnknown] = struct{}{}
		}
	}
	return ret
}

func errsToBidderErrors(errs []error) []openrtb_ext.ExtBidderMessage {
	sErr := make([]openrtb_ext.ExtBidderMessage, 0)
	for _, err := range errortypes.FatalOnly(errs) {
		newErr := openrtb_ext.ExtBidderMessage{
			Code:    errortypes.ReadCode(err),
			Message: err.Error(),
		}
		sErr = append(sErr, newErr)
	}
	return sErr
}

// errsToBidderWarnings converts warnings for the response ext. Warnings scoped
// to debug only appear when the response is allowed to carry debug data.
func errsToBidderWarnings(errs []error, debugInfo bool) []openrtb_ext.ExtBidderMessage {
	sWarn := make([]openrtb_ext.ExtBidderMessage, 0)
	for _, warn := range errortypes.WarningOnly(errs) {
		if !debugInfo && errortypes.ReadScope(warn) == errortypes.ScopeDebug {
			continue
		}
		newErr := openrtb_ext.ExtBidderMessage{
			Code:    errortypes.ReadCode(warn),
			Message: warn.Error(),
		}
		sWarn = append(sWarn, newErr)
	}
	return sWarn
}

// makeExtBidResponse creates the bidResponse extension object. Warnings carrying
// a debug scope are dropped unless the response is allowed to carry debug data.
func (e *exchange) makeExtBidResponse(participations []AuctionParticipation, r *AuctionRequest, requestExtPrebid *openrtb_ext.ExtRequestPrebid, debugInfo bool, errList []error) *openrtb_ext.ExtBidResponse {
	bidResponseExt := &openrtb_ext.ExtBidResponse{
		Errors:               make(map[openrtb_ext.BidderName][]openrtb_ext.ExtBidderMessage, len(participations)),
		Warnings:             make(map[openrtb_ext.BidderName][]openrtb_ext.ExtBidderMessage, len(participations)),
		ResponseTimeMillis:   make(map[openrtb_ext.BidderName]int, len(participations)),
		RequestTimeoutMillis: r.BidRequest.TMax,
	}
	if debugInfo {
		bidResponseExt.Debug = &openrtb_ext.ExtResponseDebug{
			HttpCalls: make(map[openrtb_ext.BidderName][]*openrtb_ext.ExtHttpCall),
		}
		if resolvedRequest, err := jsonutil.Marshal(r.BidRequest); err == nil {
			bidResponseExt.Debug.ResolvedRequest = resolvedRequest
		}
	}

	if !r.StartTime.IsZero() {
		bidResponseExt.Prebid = &openrtb_ext.ExtResponsePrebid{
			AuctionTimestamp: r.StartTime.UnixMilli(),
		}
	}
	if requestExtPrebid != nil && len(requestExtPrebid.Passthrough) > 0 {
		if bidResponseExt.Prebid == nil {
			bidResponseExt.Prebid = &openrtb_ext.ExtResponsePrebid{}
		}
		bidResponseExt.Prebid.Passthrough = requestExtPrebid.Passthrough
	}

	for _, participation := range participations {
		bidderName := participation.Bidder
		bidResponseExt.ResponseTimeMillis[bidderName] = participation.ResponseTimeMillis

		if len(participation.Errors) > 0 {
			bidResponseExt.Errors[bidderName] = append(bidResponseExt.Errors[bidderName], participation.Errors...)
		}
		if len(participation.Warnings) > 0 {
			bidResponseExt.Warnings[bidderName] = append(bidResponseExt.Warnings[bidderName], participation.Warnings...)
		}
		if debugInfo {
			for _, seatBid := range participation.SeatBids {
				if seatBid != nil && len(seatBid.HttpCalls) > 0 {
					bidResponseExt.Debug.HttpCalls[bidderName] = append(bidResponseExt.Debug.HttpCalls[bidderName], seatBid.HttpCalls...)
				}
			}
		}
	}

	generalKey := openrtb_ext.BidderName(openrtb_ext.GeneralExtKey)
	for _, err := range errortypes.FatalOnly(errList) {
		bidResponseExt.Errors[generalKey] = append(bidResponseExt.Errors[generalKey], openrtb_ext.ExtBidderMessage{
			Code:    errortypes.ReadCode(err),
			Message: err.Error(),
		})
	}
	for _, warn := range errortypes.WarningOnly(errList) {
		if !debugInfo && errortypes.ReadScope(warn) == errortypes.ScopeDebug {
			continue
		}
		bidResponseExt.Warnings[generalKey] = append(bidResponseExt.Warnings[generalKey], openrtb_ext.ExtBidderMessage{
			Code:    errortypes.ReadCode(warn),
			Message: warn.Error(),
		})
	}

	if len(bidResponseExt.Errors) == 0 {
		bidResponseExt.Errors = nil
	}
	if len(bidResponseExt.Warnings) == 0 {
		bidResponseExt.Warnings = nil
	}

	return bidResponseExt
}

// attachModuleOutcomes adds the hook module trace when the executor kept stage
// outcomes and the request asked for tracing.
func (e *exchange) attachModuleOutcomes(r *AuctionRequest, requestExtPrebid *openrtb_ext.ExtRequestPrebid, bidResponseExt *openrtb_ext.ExtBidResponse) {
	stageExecutor, ok := r.HookExecutor.(hookexecution.HookStageExecutor)
	if !ok {
		return
	}
	traceLevel := openrtb_ext.TraceLevelNone
	if requestExtPrebid != nil {
		traceLevel = requestExtPrebid.Trace
	}
	modules, err := hookexecution.GetModulesJSON(stageExecutor.GetOutcomes(), traceLevel)
	if err != nil {
		glog.Errorf("Failed to marshal hook module outcomes: %v", err)
		return
	}
	if modules == nil {
		return
	}
	if bidResponseExt.Prebid == nil {
		bidResponseExt.Prebid = &openrtb_ext.ExtResponsePrebid{}
	}
	bidResponseExt.Prebid.Modules = modules
}

func attachSeatNonBids(participations []AuctionParticipation, nonBids *SeatNonBidBuilder, bidResponseExt *openrtb_ext.ExtBidResponse) {
	seatNonBid := nonBids.Slice()
	if len(seatNonBid) == 0 {
		return
	}
	if bidResponseExt.Prebid == nil {
		bidResponseExt.Prebid = &openrtb_ext.ExtResponsePrebid{}
	}
	bidResponseExt.Prebid.SeatNonBid = seatNonBid
}

func encodeBidResponseExt(bidResponseExt *openrtb_ext.ExtBidResponse) ([]byte, error) {
	buffer := &bytes.Buffer{}
	enc := json.NewEncoder(buffer)

	enc.SetEscapeHTML(false)
	err := enc.Encode(bidResponseExt)

	return buffer.Bytes(), err
}

func recordImpMetrics(bidRequest *openrtb2.BidRequest, metricsEngine metrics.MetricsEngine) {
	for _, impInRequest := range bidRequest.Imp {
		var impLabels metrics.ImpLabels = metrics.ImpLabels{
			BannerImps: impInRequest.Banner != nil,
			VideoImps:  impInRequest.Video != nil,
			AudioImps:  impInRequest.Audio != nil,
			NativeImps: impInRequest.Native != nil,
		}
		metricsEngine.RecordImps(impLabels)
	}
}

// buildStoredAuctionResponse replaces the auction outcome for each imp that
// carries a stored response. Seats repeating across imps merge into one
// participation.
func buildStoredAuctionResponse(storedAuctionResponses map[string]json.RawMessage) ([]AuctionParticipation, error) {
	impIDs := make([]string, 0, len(storedAuctionResponses))
	for impID := range storedAuctionResponses {
		impIDs = append(impIDs, impID)
	}
	sort.Strings(impIDs)

	seatOrder := make([]openrtb_ext.BidderName, 0)
	seatBids := make(map[openrtb_ext.BidderName]*entities.PbsOrtbSeatBid)

	for _, impID := range impIDs {
		var storedSeatBids []openrtb2.SeatBid
		if err := jsonutil.Unmarshal(storedAuctionResponses[impID], &storedSeatBids); err != nil {
			return nil, err
		}

		for _, seat := range storedSeatBids {
			var bidsToAdd []*entities.PbsOrtbBid
			for i := range seat.Bid {
				seat.Bid[i].ImpID = impID
				bidType, err := getMediaTypeForBid(seat.Bid[i])
				if err != nil {
					return nil, err
				}
				bidsToAdd = append(bidsToAdd, &entities.PbsOrtbBid{Bid: &seat.Bid[i], BidType: bidType})
			}

			bidderName := openrtb_ext.BidderName(seat.Seat)
			if existing, ok := seatBids[bidderName]; ok {
				existing.Bids = append(existing.Bids, bidsToAdd...)
			} else {
				seatOrder = append(seatOrder, bidderName)
				seatBids[bidderName] = &entities.PbsOrtbSeatBid{
					Bids:     bidsToAdd,
					Currency: "USD",
					Seat:     seat.Seat,
				}
			}
		}
	}

	participations := make([]AuctionParticipation, 0, len(seatOrder))
	for _, bidderName := range seatOrder {
		participations = append(participations, AuctionParticipation{
			Bidder:   bidderName,
			SeatBids: []*entities.PbsOrtbSeatBid{seatBids[bidderName]},
		})
	}
	return participations, nil
}

func getMediaTypeForBid(bid openrtb2.Bid) (openrtb_ext.BidType, error) {
	if len(bid.Ext) > 0 {
		var bidExt struct {
			Prebid struct {
				Type openrtb_ext.BidType `json:"type"`
			} `json:"prebid"`
		}
		if err := jsonutil.Unmarshal(bid.Ext, &bidExt); err == nil && bidExt.Prebid.Type != "" {
			return bidExt.Prebid.Type, nil
		}
	}
	return "", &errortypes.BadServerResponse{
		Message: fmt.Sprintf("Failed to parse bid mediatype for impression \"%s\"", bid.ImpID),
	}
}
