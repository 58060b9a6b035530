package exchange

import (
	"errors"
	"net"
	"syscall"

	"github.com/bidflare/exchange-core/errortypes"
)

// NonBidReason is the status code explaining why a bid (or an entire bidder
// request) did not result in a positive bid.
// Reference:  https://github.com/InteractiveAdvertisingBureau/openrtb/blob/master/extensions/community_extensions/seat-non-bid.md#list-non-bid-status-codes
type NonBidReason int64

const (
	NoBidUnknownError                      NonBidReason = 0   // No Bid - General
	ErrorGeneral                           NonBidReason = 100 // Error - General
	ErrorTimeout                           NonBidReason = 101 // Error - Timeout
	ErrorBidderUnreachable                 NonBidReason = 103 // Error - Bidder Unreachable
	RequestBlockedGeneral                  NonBidReason = 200 // Request Blocked - General
	RequestBlockedPrivacy                  NonBidReason = 202 // Request Blocked - Privacy
	RequestBlockedUnacceptableCurrency     NonBidReason = 205 // Request Blocked - Currency not accepted
	ResponseRejectedGeneral                NonBidReason = 300
	ResponseRejectedBelowFloor             NonBidReason = 301 // Response Rejected - Below Floor
	ResponseRejectedBelowDealFloor         NonBidReason = 304 // Response Rejected - Bid was Below Deal Floor
	ResponseRejectedCreativeSizeNotAllowed NonBidReason = 351 // Response Rejected - Invalid Creative (Size Not Allowed)
	ResponseRejectedCreativeNotSecure      NonBidReason = 352 // Response Rejected - Invalid Creative (Not Secure)
)

// Ptr returns pointer to own value.
func (n NonBidReason) Ptr() *NonBidReason {
	return &n
}

// Val safely dereferences pointer, returning default value (NoBidUnknownError) for nil.
func (n *NonBidReason) Val() NonBidReason {
	if n == nil {
		return NoBidUnknownError
	}
	return *n
}

func errorToNonBidReason(err error) NonBidReason {
	switch errortypes.ReadCode(err) {
	case errortypes.TimeoutErrorCode, errortypes.TmaxTimeoutErrorCode:
		return ErrorTimeout
	case errortypes.NoConversionRateErrorCode:
		return RequestBlockedUnacceptableCurrency
	}
	return ErrorGeneral
}

// httpInfoToNonBidReason maps a failed bidder http call to a non-bid status code.
func httpInfoToNonBidReason(httpInfo *httpCallInfo) NonBidReason {
	nonBidReason := errorToNonBidReason(httpInfo.err)
	if nonBidReason != ErrorGeneral {
		return nonBidReason
	}
	var sysErr syscall.Errno
	var opErr *net.OpError
	if errors.As(httpInfo.err, &opErr) && errors.As(opErr.Err, &sysErr) && sysErr == syscall.ECONNREFUSED {
		return ErrorBidderUnreachable
	}
	return ErrorGeneral
}
