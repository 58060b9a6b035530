package metrics

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	gometrics "github.com/rcrowley/go-metrics"

	"github.com/bidflare/exchange-core/openrtb_ext"
)

// Metrics records auction metrics into a go-metrics registry.
type Metrics struct {
	MetricsRegistry gometrics.Registry

	RequestStatuses map[RequestType]map[RequestStatus]gometrics.Meter
	RequestTimer    gometrics.Timer
	ImpMeter        gometrics.Meter
	ImpsTypeBanner  gometrics.Meter
	ImpsTypeVideo   gometrics.Meter
	ImpsTypeAudio   gometrics.Meter
	ImpsTypeNative  gometrics.Meter

	PrivacyCOPPAMeter  gometrics.Meter
	PrivacyLMTMeter    gometrics.Meter
	PrivacyTCFVersions map[TCFVersionValue]gometrics.Meter

	OverheadTimer        map[OverheadType]gometrics.Timer
	StoredResponsesMeter gometrics.Meter

	generalAlertMeters  map[string]gometrics.Meter
	generalAlertRWMutex sync.RWMutex

	AdapterMetrics map[openrtb_ext.BidderName]*AdapterMetrics

	exchanges []openrtb_ext.BidderName
}

// AdapterMetrics houses the metrics for a particular adapter
type AdapterMetrics struct {
	ErrorMeters       map[AdapterError]gometrics.Meter
	NoBidMeter        gometrics.Meter
	PanicMeter        gometrics.Meter
	RequestMeter      gometrics.Meter
	RequestTimer      gometrics.Timer
	PriceHistogram    gometrics.Histogram
	BidsReceivedMeter gometrics.Meter
	MarkupMetrics     map[openrtb_ext.BidType]*MarkupDeliveryMetrics
}

type MarkupDeliveryMetrics struct {
	AdmMeter  gometrics.Meter
	NurlMeter gometrics.Meter
}

// NewMetrics creates a new Metrics object backed by the given registry, with
// per-adapter metrics preallocated for every exchange in the list.
func NewMetrics(registry gometrics.Registry, exchanges []openrtb_ext.BidderName) *Metrics {
	m := &Metrics{
		MetricsRegistry: registry,
		RequestStatuses: make(map[RequestType]map[RequestStatus]gometrics.Meter),
		RequestTimer:    gometrics.GetOrRegisterTimer("request_time", registry),
		ImpMeter:        gometrics.GetOrRegisterMeter("imps_requested", registry),
		ImpsTypeBanner:  gometrics.GetOrRegisterMeter("imp_banner", registry),
		ImpsTypeVideo:   gometrics.GetOrRegisterMeter("imp_video", registry),
		ImpsTypeAudio:   gometrics.GetOrRegisterMeter("imp_audio", registry),
		ImpsTypeNative:  gometrics.GetOrRegisterMeter("imp_native", registry),

		PrivacyCOPPAMeter:  gometrics.GetOrRegisterMeter("privacy.request.coppa", registry),
		PrivacyLMTMeter:    gometrics.GetOrRegisterMeter("privacy.request.lmt", registry),
		PrivacyTCFVersions: make(map[TCFVersionValue]gometrics.Meter),

		OverheadTimer:        make(map[OverheadType]gometrics.Timer),
		StoredResponsesMeter: gometrics.GetOrRegisterMeter("stored_responses", registry),
		generalAlertMeters:   make(map[string]gometrics.Meter),

		AdapterMetrics: make(map[openrtb_ext.BidderName]*AdapterMetrics, len(exchanges)),

		exchanges: exchanges,
	}

	for _, t := range RequestTypes() {
		m.RequestStatuses[t] = make(map[RequestStatus]gometrics.Meter)
		for _, s := range RequestStatuses() {
			m.RequestStatuses[t][s] = gometrics.GetOrRegisterMeter(fmt.Sprintf("requests.%s.%s", s, t), registry)
		}
	}

	for _, v := range TCFVersions() {
		m.PrivacyTCFVersions[v] = gometrics.GetOrRegisterMeter(fmt.Sprintf("privacy.request.tcf.%s", v), registry)
	}

	for _, o := range OverheadTypes() {
		m.OverheadTimer[o] = gometrics.GetOrRegisterTimer(fmt.Sprintf("request_over_head_time.%s", o), registry)
	}

	for _, a := range exchanges {
		m.AdapterMetrics[a] = makeAdapterMetrics(registry, strings.ToLower(string(a)))
	}

	return m
}

func makeAdapterMetrics(registry gometrics.Registry, adapter string) *AdapterMetrics {
	am := &AdapterMetrics{
		ErrorMeters:       make(map[AdapterError]gometrics.Meter),
		NoBidMeter:        gometrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.requests.nobid", adapter), registry),
		PanicMeter:        gometrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.requests.panic", adapter), registry),
		RequestMeter:      gometrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.requests.gotbids", adapter), registry),
		RequestTimer:      gometrics.GetOrRegisterTimer(fmt.Sprintf("adapter.%s.request_time", adapter), registry),
		PriceHistogram:    gometrics.GetOrRegisterHistogram(fmt.Sprintf("adapter.%s.prices", adapter), registry, gometrics.NewExpDecaySample(1028, 0.015)),
		BidsReceivedMeter: gometrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.bids_received", adapter), registry),
		MarkupMetrics:     make(map[openrtb_ext.BidType]*MarkupDeliveryMetrics),
	}

	for _, err := range AdapterErrors() {
		am.ErrorMeters[err] = gometrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.requests.%s", adapter, err), registry)
	}

	for _, t := range openrtb_ext.BidTypes() {
		am.MarkupMetrics[t] = &MarkupDeliveryMetrics{
			AdmMeter:  gometrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.%s.adm_bids_received", adapter, t), registry),
			NurlMeter: gometrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.%s.nurl_bids_received", adapter, t), registry),
		}
	}

	return am
}

func (me *Metrics) getAdapterMetrics(adapter openrtb_ext.BidderName) *AdapterMetrics {
	am, ok := me.AdapterMetrics[adapter]
	if !ok {
		glog.Errorf("Trying to run adapter metrics on %s: adapter metrics not found", string(adapter))
		return nil
	}
	return am
}

func (me *Metrics) RecordRequest(labels Labels) {
	if statuses, ok := me.RequestStatuses[labels.RType]; ok {
		if meter, ok := statuses[labels.RequestStatus]; ok {
			meter.Mark(1)
		}
	}
}

func (me *Metrics) RecordImps(labels ImpLabels) {
	me.ImpMeter.Mark(1)
	if labels.BannerImps {
		me.ImpsTypeBanner.Mark(1)
	}
	if labels.VideoImps {
		me.ImpsTypeVideo.Mark(1)
	}
	if labels.AudioImps {
		me.ImpsTypeAudio.Mark(1)
	}
	if labels.NativeImps {
		me.ImpsTypeNative.Mark(1)
	}
}

func (me *Metrics) RecordRequestTime(labels Labels, length time.Duration) {
	// Only record times for successful requests, as we don't have labels to screen out bad requests.
	if labels.RequestStatus == RequestStatusOK {
		me.RequestTimer.Update(length)
	}
}

func (me *Metrics) RecordAdapterRequest(labels AdapterLabels) {
	am := me.getAdapterMetrics(labels.Adapter)
	if am == nil {
		return
	}

	switch labels.AdapterBids {
	case AdapterBidNone:
		am.NoBidMeter.Mark(1)
	case AdapterBidPresent:
		am.RequestMeter.Mark(1)
	}

	for errType := range labels.AdapterErrors {
		if meter, ok := am.ErrorMeters[errType]; ok {
			meter.Mark(1)
		}
	}
}

func (me *Metrics) RecordAdapterPanic(labels AdapterLabels) {
	am := me.getAdapterMetrics(labels.Adapter)
	if am == nil {
		return
	}
	am.PanicMeter.Mark(1)
}

func (me *Metrics) RecordAdapterBidReceived(labels AdapterLabels, bidType openrtb_ext.BidType, hasAdm bool) {
	am := me.getAdapterMetrics(labels.Adapter)
	if am == nil {
		return
	}

	// Adapter metrics
	am.BidsReceivedMeter.Mark(1)
	if metricsForType, ok := am.MarkupMetrics[bidType]; ok {
		if hasAdm {
			metricsForType.AdmMeter.Mark(1)
		} else {
			metricsForType.NurlMeter.Mark(1)
		}
	} else {
		glog.Errorf("bid/adm metrics map entry does not exist for type %s. This is a bug, and should be reported.", bidType)
	}
}

func (me *Metrics) RecordAdapterPrice(labels AdapterLabels, cpm float64) {
	am := me.getAdapterMetrics(labels.Adapter)
	if am == nil {
		return
	}
	am.PriceHistogram.Update(int64(cpm))
}

func (me *Metrics) RecordAdapterDroppedBid(labels AdapterLabels) {
	am := me.getAdapterMetrics(labels.Adapter)
	if am == nil {
		return
	}
	if meter, ok := am.ErrorMeters[AdapterErrorUnknown]; ok {
		meter.Mark(1)
	}
}

func (me *Metrics) RecordAdapterTime(labels AdapterLabels, length time.Duration) {
	am := me.getAdapterMetrics(labels.Adapter)
	if am == nil {
		return
	}
	am.RequestTimer.Update(length)
}

func (me *Metrics) RecordOverheadTime(overhead OverheadType, length time.Duration) {
	if timer, ok := me.OverheadTimer[overhead]; ok {
		timer.Update(length)
	}
}

func (me *Metrics) RecordRequestPrivacy(privacy PrivacyLabels) {
	if privacy.COPPAEnforced {
		me.PrivacyCOPPAMeter.Mark(1)
	}
	if privacy.LMTEnforced {
		me.PrivacyLMTMeter.Mark(1)
	}
	if privacy.GDPREnforced {
		if meter, ok := me.PrivacyTCFVersions[privacy.GDPRTCFVersion]; ok {
			meter.Mark(1)
		}
	}
}

func (me *Metrics) RecordStoredResponse(pubId string) {
	me.StoredResponsesMeter.Mark(1)
}

func (me *Metrics) RecordGeneralAlert(alert string) {
	me.generalAlertRWMutex.RLock()
	meter, ok := me.generalAlertMeters[alert]
	me.generalAlertRWMutex.RUnlock()

	if !ok {
		me.generalAlertRWMutex.Lock()
		meter, ok = me.generalAlertMeters[alert]
		if !ok {
			meter = gometrics.GetOrRegisterMeter(fmt.Sprintf("general.alert.%s", alert), me.MetricsRegistry)
			me.generalAlertMeters[alert] = meter
		}
		me.generalAlertRWMutex.Unlock()
	}

	meter.Mark(1)
}
