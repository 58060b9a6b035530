package metrics

import (
	"testing"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"

	"github.com/bidflare/exchange-core/openrtb_ext"
)

func newTestMetrics() *Metrics {
	registry := gometrics.NewRegistry()
	return NewMetrics(registry, []openrtb_ext.BidderName{openrtb_ext.BidderAppnexus, openrtb_ext.BidderRubicon})
}

func TestNewMetrics(t *testing.T) {
	m := newTestMetrics()

	ensureContains(t, m.MetricsRegistry, "request_time", m.RequestTimer)
	ensureContains(t, m.MetricsRegistry, "imps_requested", m.ImpMeter)
	ensureContains(t, m.MetricsRegistry, "adapter.appnexus.request_time", m.AdapterMetrics[openrtb_ext.BidderAppnexus].RequestTimer)
	ensureContains(t, m.MetricsRegistry, "adapter.rubicon.bids_received", m.AdapterMetrics[openrtb_ext.BidderRubicon].BidsReceivedMeter)
}

func ensureContains(t *testing.T, registry gometrics.Registry, name string, metric interface{}) {
	t.Helper()
	if inRegistry := registry.Get(name); inRegistry != metric {
		t.Errorf("Bad value in registry at %s.", name)
	}
}

func TestRecordRequest(t *testing.T) {
	m := newTestMetrics()

	m.RecordRequest(Labels{RType: ReqTypeORTB2Web, RequestStatus: RequestStatusOK})
	m.RecordRequest(Labels{RType: ReqTypeORTB2App, RequestStatus: RequestStatusBadInput})

	assert.Equal(t, int64(1), m.RequestStatuses[ReqTypeORTB2Web][RequestStatusOK].Count())
	assert.Equal(t, int64(1), m.RequestStatuses[ReqTypeORTB2App][RequestStatusBadInput].Count())
	assert.Equal(t, int64(0), m.RequestStatuses[ReqTypeORTB2Web][RequestStatusErr].Count())
}

func TestRecordImps(t *testing.T) {
	m := newTestMetrics()

	m.RecordImps(ImpLabels{BannerImps: true, VideoImps: true})

	assert.Equal(t, int64(1), m.ImpMeter.Count())
	assert.Equal(t, int64(1), m.ImpsTypeBanner.Count())
	assert.Equal(t, int64(1), m.ImpsTypeVideo.Count())
	assert.Equal(t, int64(0), m.ImpsTypeNative.Count())
}

func TestRecordAdapterRequest(t *testing.T) {
	m := newTestMetrics()

	m.RecordAdapterRequest(AdapterLabels{
		Adapter:     openrtb_ext.BidderAppnexus,
		AdapterBids: AdapterBidPresent,
	})
	m.RecordAdapterRequest(AdapterLabels{
		Adapter:       openrtb_ext.BidderRubicon,
		AdapterBids:   AdapterBidNone,
		AdapterErrors: map[AdapterError]struct{}{AdapterErrorTimeout: {}},
	})

	appnexus := m.AdapterMetrics[openrtb_ext.BidderAppnexus]
	rubicon := m.AdapterMetrics[openrtb_ext.BidderRubicon]
	assert.Equal(t, int64(1), appnexus.RequestMeter.Count())
	assert.Equal(t, int64(0), appnexus.NoBidMeter.Count())
	assert.Equal(t, int64(1), rubicon.NoBidMeter.Count())
	assert.Equal(t, int64(1), rubicon.ErrorMeters[AdapterErrorTimeout].Count())
}

func TestRecordAdapterPanic(t *testing.T) {
	m := newTestMetrics()

	m.RecordAdapterPanic(AdapterLabels{Adapter: openrtb_ext.BidderAppnexus})

	assert.Equal(t, int64(1), m.AdapterMetrics[openrtb_ext.BidderAppnexus].PanicMeter.Count())
}

func TestRecordAdapterBidReceived(t *testing.T) {
	m := newTestMetrics()

	m.RecordAdapterBidReceived(AdapterLabels{Adapter: openrtb_ext.BidderAppnexus}, openrtb_ext.BidTypeBanner, true)
	m.RecordAdapterBidReceived(AdapterLabels{Adapter: openrtb_ext.BidderAppnexus}, openrtb_ext.BidTypeVideo, false)

	am := m.AdapterMetrics[openrtb_ext.BidderAppnexus]
	assert.Equal(t, int64(2), am.BidsReceivedMeter.Count())
	assert.Equal(t, int64(1), am.MarkupMetrics[openrtb_ext.BidTypeBanner].AdmMeter.Count())
	assert.Equal(t, int64(1), am.MarkupMetrics[openrtb_ext.BidTypeVideo].NurlMeter.Count())
}

func TestRecordAdapterTime(t *testing.T) {
	m := newTestMetrics()

	m.RecordAdapterTime(AdapterLabels{Adapter: openrtb_ext.BidderAppnexus}, 100*time.Millisecond)

	assert.Equal(t, int64(1), m.AdapterMetrics[openrtb_ext.BidderAppnexus].RequestTimer.Count())
}

func TestRecordGeneralAlert(t *testing.T) {
	m := newTestMetrics()

	m.RecordGeneralAlert("general")
	m.RecordGeneralAlert("general")

	assert.Equal(t, int64(2), m.generalAlertMeters["general"].Count())
}

func TestRecordRequestPrivacy(t *testing.T) {
	m := newTestMetrics()

	m.RecordRequestPrivacy(PrivacyLabels{
		COPPAEnforced:  true,
		GDPREnforced:   true,
		GDPRTCFVersion: TCFVersionV2,
		LMTEnforced:    true,
	})

	assert.Equal(t, int64(1), m.PrivacyCOPPAMeter.Count())
	assert.Equal(t, int64(1), m.PrivacyLMTMeter.Count())
	assert.Equal(t, int64(1), m.PrivacyTCFVersions[TCFVersionV2].Count())
}

func TestUnknownAdapterIgnored(t *testing.T) {
	m := newTestMetrics()

	// no panic for a bidder without preallocated metrics
	m.RecordAdapterRequest(AdapterLabels{Adapter: openrtb_ext.BidderName("unknown")})
	m.RecordAdapterTime(AdapterLabels{Adapter: openrtb_ext.BidderName("unknown")}, time.Second)
}
