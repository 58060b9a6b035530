package exchange

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/context/ctxhttp"

	"github.com/bidflare/exchange-core/adapters"
	"github.com/bidflare/exchange-core/config"
	"github.com/bidflare/exchange-core/currency"
	"github.com/bidflare/exchange-core/errortypes"
	"github.com/bidflare/exchange-core/exchange/entities"
	"github.com/bidflare/exchange-core/hooks/hookexecution"
	"github.com/bidflare/exchange-core/metrics"
	"github.com/bidflare/exchange-core/openrtb_ext"
)

// AdaptedBidder defines the contract needed to participate in an Auction within an Exchange.
//
// This interface exists to help segregate core auction logic.
//
// Any logic which can be done _within a single Seat_ goes inside one of these.
// Any logic which _requires responses from all Seats_ goes inside the Exchange.
//
// This interface differs from adapters.Bidder to help minimize code duplication across the
// adapters.Bidder implementations.
type AdaptedBidder interface {
	// requestBid fetches bids for the given request.
	//
	// An AdaptedBidder *may* return two non-nil values here. Errors should describe situations which
	// make the bid (or no-bid) "less than ideal." Common examples include:
	//
	// 1. Connection issues.
	// 2. Imps with Media Types which this Bidder doesn't support.
	// 3. The Context timeout expired before all expected bids were returned.
	// 4. The Server sent back an unexpected Response, so some bids were ignored.
	//
	// Any errors will be user-facing in the API.
	// Error messages should help publishers understand what might account for "bad" bids.
	requestBid(ctx context.Context, bidderRequest BidderRequest, conversions currency.Conversions, reqInfo *adapters.ExtraRequestInfo, bidRequestOptions bidRequestOptions, hookExecutor hookexecution.StageExecutor) ([]*entities.PbsOrtbSeatBid, extraBidderRespInfo, []error)
}

// bidRequestOptions holds additional options for bid request execution to maintain clean code and reasonable number of parameters
type bidRequestOptions struct {
	accountDebugAllowed    bool
	headerDebugAllowed     bool
	tmaxAdjustments        *TmaxAdjustmentsPreprocessed
	bidderRequestStartTime time.Time
}

type extraBidderRespInfo struct {
	respProcessingStartTime time.Time
	seatNonBidBuilder       SeatNonBidBuilder
}

const ImpIdReqBody = "Stored bid response for impression id: "

// Possible values of compression types the exchange can support for bidder compression
const (
	Gzip string = "GZIP"
)

// AdaptBidder converts an adapters.Bidder into an exchange.AdaptedBidder.
//
// The name refers to the "Adapter" architecture pattern, and should not be confused with a
// bidder adapter implementation.
func AdaptBidder(bidder adapters.Bidder, client *http.Client, cfg *config.Configuration, me metrics.MetricsEngine, name openrtb_ext.BidderName, debugAllowed bool, endpointCompression string, mediaTypeProcessor MediaTypeProcessor) AdaptedBidder {
	if mediaTypeProcessor == nil {
		mediaTypeProcessor = NilMediaTypeProcessor{}
	}
	return &BidderAdapter{
		Bidder:             bidder,
		BidderName:         name,
		Client:             client,
		me:                 me,
		mediaTypeProcessor: mediaTypeProcessor,
		config: bidderAdapterConfig{
			DebugAllowed:        debugAllowed,
			EndpointCompression: endpointCompression,
		},
	}
}

type BidderAdapter struct {
	Bidder             adapters.Bidder
	BidderName         openrtb_ext.BidderName
	Client             *http.Client
	me                 metrics.MetricsEngine
	mediaTypeProcessor MediaTypeProcessor
	config             bidderAdapterConfig
}

type bidderAdapterConfig struct {
	DebugAllowed        bool
	EndpointCompression string
}

func (bidder *BidderAdapter) requestBid(ctx context.Context, bidderRequest BidderRequest, conversions currency.Conversions, reqInfo *adapters.ExtraRequestInfo, bidRequestOptions bidRequestOptions, hookExecutor hookexecution.StageExecutor) ([]*entities.PbsOrtbSeatBid, extraBidderRespInfo, []error) {
	reject := hookExecutor.ExecuteBidderRequestStage(bidderRequest.BidRequest, string(bidderRequest.BidderName))
	seatNonBidBuilder := SeatNonBidBuilder{}
	if reject != nil {
		seatNonBidBuilder.rejectImps(impIDs(bidderRequest.BidRequest.Imp), RequestBlockedGeneral, string(bidderRequest.BidderName))
		return nil, extraBidderRespInfo{seatNonBidBuilder: seatNonBidBuilder}, []error{reject}
	}

	var (
		reqData         []*adapters.RequestData
		errs            []error
		responseChannel chan *httpCallInfo
		extraRespInfo   extraBidderRespInfo
	)

	// A bidder with only stored responses carries no imps at all.
	dataLen := 0
	if len(bidderRequest.BidRequest.Imp) > 0 {
		if bidRequestOptions.tmaxAdjustments != nil && bidRequestOptions.tmaxAdjustments.IsEnforced {
			bidderRequest.BidRequest.TMax = getBidderTmax(&bidderTmaxCtx{ctx}, bidderRequest.BidRequest.TMax, *bidRequestOptions.tmaxAdjustments)
		}
		reqData, errs = bidder.Bidder.MakeRequests(bidderRequest.BidRequest, reqInfo)

		if len(reqData) == 0 {
			// If the adapter failed to generate both requests and errors, this is an error.
			if len(errs) == 0 {
				errs = append(errs, &errortypes.FailedToRequestBids{Message: "The adapter failed to generate any bid requests, but also failed to generate an error explaining why"})
			}
			return nil, extraBidderRespInfo{}, errs
		}

		for i := 0; i < len(reqData); i++ {
			if reqData[i].Headers != nil {
				reqData[i].Headers = reqData[i].Headers.Clone()
			} else {
				reqData[i].Headers = http.Header{}
			}
			if reqInfo.GlobalPrivacyControlHeader == "1" {
				reqData[i].Headers.Add("Sec-GPC", reqInfo.GlobalPrivacyControlHeader)
			}
		}

		// Make any HTTP requests in parallel.
		// If the bidder only needs to make one, save some cycles by just using the current one.
		dataLen = len(reqData) + len(bidderRequest.BidderStoredResponses)
		responseChannel = make(chan *httpCallInfo, dataLen)
		if len(reqData) == 1 {
			responseChannel <- bidder.doRequest(ctx, reqData[0], bidRequestOptions.bidderRequestStartTime, bidRequestOptions.tmaxAdjustments)
		} else {
			for _, oneReqData := range reqData {
				go func(data *adapters.RequestData) {
					responseChannel <- bidder.doRequest(ctx, data, bidRequestOptions.bidderRequestStartTime, bidRequestOptions.tmaxAdjustments)
				}(oneReqData) // Method arg avoids a race condition on oneReqData
			}
		}
	}
	if len(bidderRequest.BidderStoredResponses) > 0 {
		// Stored bid responses skip the wire and enter the channel as fake completed calls.
		if responseChannel == nil {
			dataLen = dataLen + len(bidderRequest.BidderStoredResponses)
			responseChannel = make(chan *httpCallInfo, dataLen)
		}
		for impId, bidResp := range bidderRequest.BidderStoredResponses {
			go func(id string, resp json.RawMessage) {
				responseChannel <- prepareStoredResponse(id, resp)
			}(impId, bidResp)
		}
	}

	defaultCurrency := "USD"
	seatBidMap := map[openrtb_ext.BidderName]*entities.PbsOrtbSeatBid{
		bidderRequest.BidderName: {
			Bids:      make([]*entities.PbsOrtbBid, 0, dataLen),
			Currency:  defaultCurrency,
			HttpCalls: make([]*openrtb_ext.ExtHttpCall, 0, dataLen),
			Seat:      string(bidderRequest.BidderName),
		},
	}

	// If the bidder made multiple requests, we still want them to enter as many bids as possible...
	// even if the timeout occurs sometime halfway through.
	for i := 0; i < dataLen; i++ {
		httpInfo := <-responseChannel
		// If this is a test bid, capture debugging info from the requests.
		// Write debug data to ext in case if:
		// - headerDebugAllowed (debug override header specified correct) - it overrides all other debug restrictions
		// - account debug is allowed
		// - bidder debug is allowed
		if bidRequestOptions.headerDebugAllowed {
			seatBidMap[bidderRequest.BidderName].HttpCalls = append(seatBidMap[bidderRequest.BidderName].HttpCalls, makeExt(httpInfo))
		} else {
			if bidRequestOptions.accountDebugAllowed {
				if bidder.config.DebugAllowed {
					seatBidMap[bidderRequest.BidderName].HttpCalls = append(seatBidMap[bidderRequest.BidderName].HttpCalls, makeExt(httpInfo))
				} else {
					debugDisabledWarning := errortypes.Warning{
						WarningCode: errortypes.BidderLevelDebugDisabledWarningCode,
						Message:     "debug turned off for bidder",
					}
					errs = append(errs, &debugDisabledWarning)
				}
			}
		}

		if httpInfo.err != nil {
			errs = append(errs, httpInfo.err)
			nonBidReason := httpInfoToNonBidReason(httpInfo)
			seatNonBidBuilder.rejectImps(httpInfo.request.ImpIDs, nonBidReason, string(bidderRequest.BidderName))
			continue
		}

		extraRespInfo.respProcessingStartTime = time.Now()
		bidResponse, moreErrs := bidder.Bidder.MakeBids(bidderRequest.BidRequest, httpInfo.request, httpInfo.response)
		errs = append(errs, moreErrs...)

		if bidResponse == nil {
			continue
		}

		reject := hookExecutor.ExecuteRawBidderResponseStage(bidResponse, string(bidder.BidderName))
		if reject != nil {
			errs = append(errs, reject)
			continue
		}

		if bidder.mediaTypeProcessor != nil {
			var processErrs []error
			bidResponse, processErrs = bidder.mediaTypeProcessor.ProcessBidderResponse(bidderRequest.BidRequest, bidderRequest.BidderName, bidResponse)
			errs = append(errs, processErrs...)
			if bidResponse == nil || len(bidResponse.Bids) == 0 {
				continue
			}
		}

		// Setup default currency as `USD` if not set in bid request nor bid response
		if bidResponse.Currency == "" {
			bidResponse.Currency = defaultCurrency
		}
		if len(bidderRequest.BidRequest.Cur) == 0 {
			bidderRequest.BidRequest.Cur = []string{defaultCurrency}
		}

		// Try to get the first currency from request.cur having a match in the rate
		// converter, and use it as the seat currency.
		var conversionRate float64
		var conversionErr error
		for _, bidReqCur := range bidderRequest.BidRequest.Cur {
			if conversionRate, conversionErr = conversions.GetRate(bidResponse.Currency, bidReqCur); conversionErr == nil {
				seatBidMap[bidderRequest.BidderName].Currency = bidReqCur
				break
			}
		}

		if conversionErr != nil {
			// If no conversion found, do not handle the bids.
			errs = append(errs, conversionErr)
			impIDs := make([]string, 0, len(bidResponse.Bids))
			for _, typedBid := range bidResponse.Bids {
				if typedBid.Bid != nil {
					impIDs = append(impIDs, typedBid.Bid.ImpID)
				}
			}
			seatNonBidBuilder.rejectImps(impIDs, RequestBlockedUnacceptableCurrency, string(bidderRequest.BidderName))
			continue
		}

		if len(bidderRequest.BidderStoredResponses) > 0 {
			// Restore the original imp ids on bids born from stored responses.
			for i := 0; i < len(bidResponse.Bids); i++ {
				if httpInfo.request.Uri == "" {
					reqBody := string(httpInfo.request.Body)
					re := regexp.MustCompile(ImpIdReqBody)
					reqBodySplit := re.Split(reqBody, -1)
					reqImpId := reqBodySplit[1]
					// replace impId if "replaceimpid" is true or not specified
					if bidderRequest.ImpReplaceImpId[reqImpId] {
						bidResponse.Bids[i].Bid.ImpID = reqImpId
					}
				}
			}
		}

		for i := 0; i < len(bidResponse.Bids); i++ {
			bidderName := bidderRequest.BidderName
			if bidResponse.Bids[i].Seat != "" {
				bidderName = bidResponse.Bids[i].Seat
			}

			originalBidCpm := 0.0
			var bidFloors *entities.PriceFloorInfo
			if bidResponse.Bids[i].Bid != nil {
				originalBidCpm = bidResponse.Bids[i].Bid.Price
				bidResponse.Bids[i].Bid.Price = bidResponse.Bids[i].Bid.Price * conversionRate

				if floor, ok := bidderRequest.OriginalFloors[bidResponse.Bids[i].Bid.ImpID]; ok {
					bidFloors = &entities.PriceFloorInfo{
						FloorValue:    floor.FloorMin,
						FloorCurrency: floor.FloorMinCur,
					}
				}
			}

			if _, ok := seatBidMap[bidderName]; !ok {
				// Initialize seatBidMap entry as this is the first extra bid with seat bidderName
				seatBidMap[bidderName] = &entities.PbsOrtbSeatBid{
					Bids:      make([]*entities.PbsOrtbBid, 0, dataLen),
					Currency:  seatBidMap[bidderRequest.BidderName].Currency,
					HttpCalls: seatBidMap[bidderRequest.BidderName].HttpCalls,
					Seat:      bidderName.String(),
				}
			}

			seatBidMap[bidderName].Bids = append(seatBidMap[bidderName].Bids, &entities.PbsOrtbBid{
				Bid:            bidResponse.Bids[i].Bid,
				BidMeta:        bidResponse.Bids[i].BidMeta,
				BidType:        bidResponse.Bids[i].BidType,
				BidTargets:     bidResponse.Bids[i].BidTargets,
				BidVideo:       bidResponse.Bids[i].BidVideo,
				BidFloors:      bidFloors,
				DealPriority:   bidResponse.Bids[i].DealPriority,
				OriginalBidCPM: originalBidCpm,
				OriginalBidCur: bidResponse.Currency,
				AdapterCode:    bidderRequest.BidderCoreName,
			})
		}
	}

	seatBids := make([]*entities.PbsOrtbSeatBid, 0, len(seatBidMap))
	for _, seatBid := range seatBidMap {
		if validationErrs := removeInvalidBids(bidderRequest.BidRequest.Cur, seatBid, bidder.me, bidderRequest.BidderLabels, &seatNonBidBuilder); len(validationErrs) > 0 {
			errs = append(errs, validationErrs...)
		}
		seatBids = append(seatBids, seatBid)
	}

	extraRespInfo.seatNonBidBuilder = seatNonBidBuilder
	return seatBids, extraRespInfo, errs
}

var authorizationHeader = http.CanonicalHeaderKey("authorization")

func filterHeader(h http.Header) http.Header {
	clone := h.Clone()
	clone.Del(authorizationHeader)
	return clone
}

// makeExt transforms information about the HTTP call into the contract class for the response ext.
func makeExt(httpInfo *httpCallInfo) *openrtb_ext.ExtHttpCall {
	ext := &openrtb_ext.ExtHttpCall{}

	if httpInfo != nil && httpInfo.request != nil {
		ext.Uri = httpInfo.request.Uri
		ext.RequestBody = string(httpInfo.request.Body)
		ext.RequestHeaders = filterHeader(httpInfo.request.Headers)

		if httpInfo.err == nil && httpInfo.response != nil {
			ext.ResponseBody = string(httpInfo.response.Body)
			ext.Status = httpInfo.response.StatusCode
		}
	}

	return ext
}

// doRequest makes a request, handles the response, and returns the data needed by the
// Bidder interface.
func (bidder *BidderAdapter) doRequest(ctx context.Context, req *adapters.RequestData, bidderRequestStartTime time.Time, tmaxAdjustments *TmaxAdjustmentsPreprocessed) *httpCallInfo {
	requestBody, err := getRequestBody(req, bidder.config.EndpointCompression)
	if err != nil {
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}
	httpReq, err := http.NewRequest(req.Method, req.Uri, requestBody)
	if err != nil {
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}
	httpReq.Header = req.Headers

	bidder.me.RecordOverheadTime(metrics.PreBidder, time.Since(bidderRequestStartTime))

	if tmaxAdjustments != nil && tmaxAdjustments.IsEnforced {
		if hasShorterDurationThanTmax(&bidderTmaxCtx{ctx}, *tmaxAdjustments) {
			return &httpCallInfo{
				request: req,
				err:     &errortypes.TmaxTimeout{Message: "exceeded tmax duration"},
			}
		}
	}

	httpResp, err := ctxhttp.Do(ctx, bidder.Client, httpReq)
	if err != nil {
		if err == context.DeadlineExceeded {
			err = &errortypes.Timeout{Message: err.Error()}
		}
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 400 {
		err = &errortypes.BadServerResponse{
			Message: fmt.Sprintf("Server responded with failure status: %d. Set request.test = 1 for debugging info.", httpResp.StatusCode),
		}
	}

	return &httpCallInfo{
		request: req,
		response: &adapters.ResponseData{
			StatusCode: httpResp.StatusCode,
			Body:       respBody,
			Headers:    httpResp.Header,
		},
		err: err,
	}
}

type httpCallInfo struct {
	request  *adapters.RequestData
	response *adapters.ResponseData
	err      error
}

func prepareStoredResponse(impId string, bidResp json.RawMessage) *httpCallInfo {
	// Always one element in reqData because a stored response is mapped to a single imp.
	body := fmt.Sprintf("%s%s", ImpIdReqBody, impId)
	reqDataForStoredResp := adapters.RequestData{
		Method: "POST",
		Uri:    "",
		Body:   []byte(body),
		ImpIDs: []string{impId},
	}
	respData := &httpCallInfo{
		request: &reqDataForStoredResp,
		response: &adapters.ResponseData{
			StatusCode: 200,
			Body:       bidResp,
		},
		err: nil,
	}
	return respData
}

func getRequestBody(req *adapters.RequestData, endpointCompression string) (*bytes.Buffer, error) {
	switch strings.ToUpper(endpointCompression) {
	case Gzip:
		b := bytes.NewBuffer(make([]byte, 0, len(req.Body)))

		w := gzipWriterPool.Get().(*gzip.Writer)
		defer gzipWriterPool.Put(w)

		w.Reset(b)
		_, err := w.Write(req.Body)
		if err != nil {
			return nil, err
		}
		err = w.Close()
		if err != nil {
			return nil, err
		}

		req.Headers.Set("Content-Encoding", "gzip")

		return b, nil
	default:
		return bytes.NewBuffer(req.Body), nil
	}
}

var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		return gzip.NewWriter(nil)
	},
}
