package metrics

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/bidflare/exchange-core/openrtb_ext"
)

// MetricsEngineMock is mock for the MetricsEngine interface
type MetricsEngineMock struct {
	mock.Mock
}

func (me *MetricsEngineMock) RecordRequest(labels Labels) {
	me.Called(labels)
}

func (me *MetricsEngineMock) RecordImps(labels ImpLabels) {
	me.Called(labels)
}

func (me *MetricsEngineMock) RecordRequestTime(labels Labels, length time.Duration) {
	me.Called(labels, length)
}

func (me *MetricsEngineMock) RecordAdapterRequest(labels AdapterLabels) {
	me.Called(labels)
}

func (me *MetricsEngineMock) RecordAdapterPanic(labels AdapterLabels) {
	me.Called(labels)
}

func (me *MetricsEngineMock) RecordAdapterBidReceived(labels AdapterLabels, bidType openrtb_ext.BidType, hasAdm bool) {
	me.Called(labels, bidType, hasAdm)
}

func (me *MetricsEngineMock) RecordAdapterPrice(labels AdapterLabels, cpm float64) {
	me.Called(labels, cpm)
}

func (me *MetricsEngineMock) RecordAdapterDroppedBid(labels AdapterLabels) {
	me.Called(labels)
}

func (me *MetricsEngineMock) RecordAdapterTime(labels AdapterLabels, length time.Duration) {
	me.Called(labels, length)
}

func (me *MetricsEngineMock) RecordOverheadTime(overhead OverheadType, length time.Duration) {
	me.Called(overhead, length)
}

func (me *MetricsEngineMock) RecordRequestPrivacy(privacy PrivacyLabels) {
	me.Called(privacy)
}

func (me *MetricsEngineMock) RecordStoredResponse(pubId string) {
	me.Called(pubId)
}

func (me *MetricsEngineMock) RecordGeneralAlert(alert string) {
	me.Called(alert)
}
