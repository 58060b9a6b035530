package metrics

import (
	"time"

	"github.com/bidflare/exchange-core/openrtb_ext"
)

// NilMetricsEngine implements the MetricsEngine interface where no metrics are actually captured.
// Useful for tests and hosts that wish to turn off metrics collection.
type NilMetricsEngine struct{}

func (me *NilMetricsEngine) RecordRequest(labels Labels) {
}

func (me *NilMetricsEngine) RecordImps(labels ImpLabels) {
}

func (me *NilMetricsEngine) RecordRequestTime(labels Labels, length time.Duration) {
}

func (me *NilMetricsEngine) RecordAdapterRequest(labels AdapterLabels) {
}

func (me *NilMetricsEngine) RecordAdapterPanic(labels AdapterLabels) {
}

func (me *NilMetricsEngine) RecordAdapterBidReceived(labels AdapterLabels, bidType openrtb_ext.BidType, hasAdm bool) {
}

func (me *NilMetricsEngine) RecordAdapterPrice(labels AdapterLabels, cpm float64) {
}

func (me *NilMetricsEngine) RecordAdapterDroppedBid(labels AdapterLabels) {
}

func (me *NilMetricsEngine) RecordAdapterTime(labels AdapterLabels, length time.Duration) {
}

func (me *NilMetricsEngine) RecordOverheadTime(overhead OverheadType, length time.Duration) {
}

func (me *NilMetricsEngine) RecordRequestPrivacy(privacy PrivacyLabels) {
}

func (me *NilMetricsEngine) RecordStoredResponse(pubId string) {
}

func (me *NilMetricsEngine) RecordGeneralAlert(alert string) {
}
