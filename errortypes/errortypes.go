package errortypes

// Timeout should be used to flag that a bidder failed to return a response because the
// timeout timer expired before a result was received.
//
// Timeouts will not be written to the app log, since it's not an actionable item for the hosts.
type Timeout struct {
	Message string
}

func (err *Timeout) Error() string {
	return err.Message
}

func (err *Timeout) Code() int {
	return TimeoutErrorCode
}

func (err *Timeout) Severity() Severity {
	return SeverityFatal
}

// TmaxTimeout should be used to flag that remaining duration is shorter than the bidder's
// configured minimum request duration, so the outbound call was never attempted.
type TmaxTimeout struct {
	Message string
}

func (err *TmaxTimeout) Error() string {
	return err.Message
}

func (err *TmaxTimeout) Code() int {
	return TmaxTimeoutErrorCode
}

func (err *TmaxTimeout) Severity() Severity {
	return SeverityFatal
}

// BadInput should be used when returning errors which are caused by bad input.
// It should _not_ be used if the error is a server-side issue (e.g. failed to send the external request).
//
// BadInputs will not be written to the app log, since it's not an actionable item for the hosts.
type BadInput struct {
	Message string
}

func (err *BadInput) Error() string {
	return err.Message
}

func (err *BadInput) Code() int {
	return BadInputErrorCode
}

func (err *BadInput) Severity() Severity {
	return SeverityFatal
}

// BadServerResponse should be used when returning errors which are caused by bad/unexpected behavior on the remote server.
//
// For example:
//
//   - The external server responded with a 500
//   - The external server gave a malformed or unexpected response.
//
// These should not be used to log _connection_ errors (e.g. "couldn't find host"),
// which may indicate config issues for the host company
type BadServerResponse struct {
	Message string
}

func (err *BadServerResponse) Error() string {
	return err.Message
}

func (err *BadServerResponse) Code() int {
	return BadServerResponseErrorCode
}

func (err *BadServerResponse) Severity() Severity {
	return SeverityFatal
}

// FailedToRequestBids is an error to cover the case where an adapter failed to generate any http requests to get bids,
// but did not generate any error messages. This should not happen in practice and will signal that an adapter is poorly
// coded. If there was something wrong with a request such that an adapter could not generate a bid, then it should
// generate an error explaining the deficiency. Otherwise it will be extremely difficult to debug the reason why an
// adapter is not bidding.
type FailedToRequestBids struct {
	Message string
}

func (err *FailedToRequestBids) Error() string {
	return err.Message
}

func (err *FailedToRequestBids) Code() int {
	return FailedToRequestBidsErrorCode
}

func (err *FailedToRequestBids) Severity() Severity {
	return SeverityFatal
}

// FailedToMarshal should be used to flag that marshaling a structure to JSON failed.
type FailedToMarshal struct {
	Message string
}

func (err *FailedToMarshal) Error() string {
	return err.Message
}

func (err *FailedToMarshal) Code() int {
	return FailedToMarshalErrorCode
}

func (err *FailedToMarshal) Severity() Severity {
	return SeverityFatal
}

// FailedToUnmarshal should be used to flag that unmarshaling of JSON to a structure failed.
type FailedToUnmarshal struct {
	Message string
}

func (err *FailedToUnmarshal) Error() string {
	return err.Message
}

func (err *FailedToUnmarshal) Code() int {
	return FailedToUnmarshalErrorCode
}

func (err *FailedToUnmarshal) Severity() Severity {
	return SeverityFatal
}

// InvalidImpFirstPartyData should be used when the first party data for an imp is invalid.
type InvalidImpFirstPartyData struct {
	Message string
}

func (err *InvalidImpFirstPartyData) Error() string {
	return err.Message
}

func (err *InvalidImpFirstPartyData) Code() int {
	return InvalidImpFirstPartyDataErrorCode
}

func (err *InvalidImpFirstPartyData) Severity() Severity {
	return SeverityFatal
}

// Warning is a generic non-fatal error.
type Warning struct {
	Message     string
	WarningCode int
}

func (err *Warning) Error() string {
	return err.Message
}

func (err *Warning) Code() int {
	return err.WarningCode
}

func (err *Warning) Severity() Severity {
	return SeverityWarning
}

// DebugWarning is a non-fatal error only surfaced when debug mode is enabled.
type DebugWarning struct {
	Message     string
	WarningCode int
}

func (err *DebugWarning) Error() string {
	return err.Message
}

func (err *DebugWarning) Code() int {
	return err.WarningCode
}

func (err *DebugWarning) Severity() Severity {
	return SeverityWarning
}

func (err *DebugWarning) Scope() Scope {
	return ScopeDebug
}
