package errortypes

import "github.com/prebid/openrtb/v20/openrtb3"

// GetNBRCodeFromError maps a well-known error to the openrtb3 no-bid reason
// reported when the auction produces no seat bids.
func GetNBRCodeFromError(err error) openrtb3.NoBidReason {
	switch ReadCode(err) {
	case TimeoutErrorCode, TmaxTimeoutErrorCode:
		return openrtb3.NoBidInsufficientTime
	case BadInputErrorCode, InvalidImpFirstPartyDataErrorCode:
		return openrtb3.NoBidInvalidRequest
	case BadServerResponseErrorCode, FailedToRequestBidsErrorCode, BidderTemporarilyDisabledErrorCode, NoConversionRateErrorCode:
		fallthrough
	case ModuleRejectionErrorCode:
		fallthrough
	case FailedToUnmarshalErrorCode, FailedToMarshalErrorCode:
		return openrtb3.NoBidTechnicalError
	default:
		return openrtb3.NoBidUnknownError
	}
}
