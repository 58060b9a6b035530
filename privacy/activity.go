package privacy

// Activity defines auction actions which can be controlled directly
// by the publisher or via privacy policies.
type Activity int

const (
	ActivityFetchBids Activity = iota + 1
	ActivityReportAnalytics
	ActivityTransmitUserFPD
	ActivityTransmitPreciseGeo
	ActivityTransmitUniqueRequestIDs
	ActivityTransmitTIDs
)

func (a Activity) String() string {
	switch a {
	case ActivityFetchBids:
		return "fetchBids"
	case ActivityReportAnalytics:
		return "reportAnalytics"
	case ActivityTransmitUserFPD:
		return "transmitUfpd"
	case ActivityTransmitPreciseGeo:
		return "transmitPreciseGeo"
	case ActivityTransmitUniqueRequestIDs:
		return "transmitUniqueRequestIds"
	case ActivityTransmitTIDs:
		return "transmitTid"
	}

	return ""
}
