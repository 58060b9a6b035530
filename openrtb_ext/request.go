package openrtb_ext

import (
	"encoding/json"

	"github.com/prebid/openrtb/v20/openrtb2"
)

// ExtRequest defines the contract for bidrequest.ext
type ExtRequest struct {
	Prebid ExtRequestPrebid `json:"prebid"`
}

// ExtRequestPrebid defines the contract for bidrequest.ext.prebid
type ExtRequestPrebid struct {
	Aliases             map[string]string         `json:"aliases,omitempty"`
	AliasGVLIDs         map[string]uint16         `json:"aliasgvlids,omitempty"`
	BidderConfigs       []BidderConfig            `json:"bidderconfig,omitempty"`
	BidderParams        json.RawMessage           `json:"bidderparams,omitempty"`
	Cache               *ExtRequestPrebidCache    `json:"cache,omitempty"`
	Channel             *ExtRequestPrebidChannel  `json:"channel,omitempty"`
	CreateTids          *bool                     `json:"createtids,omitempty"`
	CurrencyConversions *ExtRequestCurrency       `json:"currency,omitempty"`
	Data                *ExtRequestPrebidData     `json:"data,omitempty"`
	Debug               bool                      `json:"debug,omitempty"`
	MultiBid            []*ExtMultiBid            `json:"multibid,omitempty"`
	Passthrough         json.RawMessage           `json:"passthrough,omitempty"`
	SChains             []*ExtRequestPrebidSChain `json:"schains,omitempty"`
	StoredRequest       *ExtStoredRequest         `json:"storedrequest,omitempty"`
	Targeting           *ExtRequestTargeting      `json:"targeting,omitempty"`
	Trace               string                    `json:"trace,omitempty"`
}

// Trace levels accepted in bidrequest.ext.prebid.trace.
const (
	TraceLevelNone    = ""
	TraceLevelBasic   = "basic"
	TraceLevelVerbose = "verbose"
)

// ExtRequestPrebidChannel defines the contract for bidrequest.ext.prebid.channel
type ExtRequestPrebidChannel struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ExtRequestCurrency defines the contract for bidrequest.ext.prebid.currency
type ExtRequestCurrency struct {
	ConversionRates map[string]map[string]float64 `json:"rates"`
	UsePBSRates     *bool                         `json:"usepbsrates"`
}

// ExtRequestPrebidSChain defines the contract for bidrequest.ext.prebid.schains
type ExtRequestPrebidSChain struct {
	Bidders []string             `json:"bidders,omitempty"`
	SChain  openrtb2.SupplyChain `json:"schain"`
}

// BidderConfig defines the contract for bidrequest.ext.prebid.bidderconfig
type BidderConfig struct {
	Bidders []string `json:"bidders,omitempty"`
	Config  *Config  `json:"config,omitempty"`
}

// Config defines the contract for bidrequest.ext.prebid.bidderconfig.config
type Config struct {
	ORTB2 *ORTB2 `json:"ortb2,omitempty"`
}

// ORTB2 defines the contract for bidrequest.ext.prebid.bidderconfig.config.ortb2
type ORTB2 struct {
	Site *openrtb2.Site `json:"site,omitempty"`
	App  *openrtb2.App  `json:"app,omitempty"`
	DOOH *openrtb2.DOOH `json:"dooh,omitempty"`
	User *openrtb2.User `json:"user,omitempty"`
}

// ExtRequestPrebidCache defines the contract for bidrequest.ext.prebid.cache
type ExtRequestPrebidCache struct {
	Bids    *ExtRequestPrebidCacheBids `json:"bids,omitempty"`
	VastXML *ExtRequestPrebidCacheVAST `json:"vastxml,omitempty"`
}

// ExtRequestPrebidCacheBids defines the contract for bidrequest.ext.prebid.cache.bids
type ExtRequestPrebidCacheBids struct {
	ReturnCreative *bool `json:"returnCreative,omitempty"`
}

// ExtRequestPrebidCacheVAST defines the contract for bidrequest.ext.prebid.cache.vastxml
type ExtRequestPrebidCacheVAST struct {
	ReturnCreative *bool `json:"returnCreative,omitempty"`
}

// ExtRequestPrebidData defines the contract for bidrequest.ext.prebid.data
type ExtRequestPrebidData struct {
	EidPermissions []ExtRequestPrebidDataEidPermission `json:"eidpermissions"`
	Bidders        []string                            `json:"bidders,omitempty"`
}

// ExtRequestPrebidDataEidPermission defines the contract for
// bidrequest.ext.prebid.data.eidpermissions
type ExtRequestPrebidDataEidPermission struct {
	Source  string   `json:"source"`
	Bidders []string `json:"bidders"`
}

// ExtRequestTargeting defines the contract for bidrequest.ext.prebid.targeting
type ExtRequestTargeting struct {
	IncludeWinners    *bool `json:"includewinners,omitempty"`
	IncludeBidderKeys *bool `json:"includebidderkeys,omitempty"`
	PreferDeals       bool  `json:"preferdeals,omitempty"`
}

// ExtStoredRequest defines the contract for bidrequest.ext.prebid.storedrequest
type ExtStoredRequest struct {
	ID string `json:"id"`
}

// Clone returns a deep copy of ExtRequestPrebidSChain for the masking pass.
func (s *ExtRequestPrebidSChain) Clone() *ExtRequestPrebidSChain {
	if s == nil {
		return nil
	}

	clone := *s
	if s.Bidders != nil {
		clone.Bidders = make([]string, len(s.Bidders))
		copy(clone.Bidders, s.Bidders)
	}
	if s.SChain.Nodes != nil {
		clone.SChain.Nodes = make([]openrtb2.SupplyChainNode, len(s.SChain.Nodes))
		copy(clone.SChain.Nodes, s.SChain.Nodes)
	}
	return &clone
}
