package openrtb_ext

import (
	"strings"
)

// BidderName refers to a core bidder id or an alias id.
type BidderName string

func (name BidderName) MarshalJSON() ([]byte, error) {
	return []byte(name), nil
}

func (name *BidderName) String() string {
	if name == nil {
		return ""
	}
	return string(*name)
}

// Names of reserved bid request ext fields. These names may not be used by a bidder alias.
const (
	PrebidExtKey       = "prebid"
	PrebidExtBidderKey = "bidder"

	AllExtKey     = "all"
	BidderExtKey  = "bidder"
	ContextExtKey = "context"
	DataExtKey    = "data"
	GeneralExtKey = "general"
	GPIDExtKey    = "gpid"
	SKAdNExtKey   = "skadn"
	TIDExtKey     = "tid"
	AuctionEnvKey = "ae"
)

// IsBidderNameReserved returns true if the specified name is a case insensitive match for a reserved bidder name.
func IsBidderNameReserved(name string) bool {
	switch strings.ToLower(name) {
	case AllExtKey, ContextExtKey, DataExtKey, GeneralExtKey, GPIDExtKey, PrebidExtKey, SKAdNExtKey, TIDExtKey, AuctionEnvKey:
		return true
	}
	return false
}

// Core bidder names, mirrored in the static/bidder-info config directory.
const (
	BidderAdf           BidderName = "adf"
	BidderAdtelligent   BidderName = "adtelligent"
	BidderAppnexus      BidderName = "appnexus"
	BidderBeachfront    BidderName = "beachfront"
	BidderCriteo        BidderName = "criteo"
	BidderGrid          BidderName = "grid"
	BidderGumGum        BidderName = "gumgum"
	BidderHuaweiAds     BidderName = "huaweiads"
	BidderIx            BidderName = "ix"
	BidderMedianet      BidderName = "medianet"
	BidderOpenx         BidderName = "openx"
	BidderOutbrain      BidderName = "outbrain"
	BidderPubmatic      BidderName = "pubmatic"
	BidderRtbhouse      BidderName = "rtbhouse"
	BidderRubicon       BidderName = "rubicon"
	BidderSharethrough  BidderName = "sharethrough"
	BidderSmaato        BidderName = "smaato"
	BidderSovrn         BidderName = "sovrn"
	BidderTaboola       BidderName = "taboola"
	BidderTelaria       BidderName = "telaria"
	BidderTriplelift    BidderName = "triplelift"
	BidderUnruly        BidderName = "unruly"
	BidderYahooAds      BidderName = "yahooAds"
	BidderYandex        BidderName = "yandex"
	BidderYieldmo       BidderName = "yieldmo"
)

var coreBidderNames = []BidderName{
	BidderAdf,
	BidderAdtelligent,
	BidderAppnexus,
	BidderBeachfront,
	BidderCriteo,
	BidderGrid,
	BidderGumGum,
	BidderHuaweiAds,
	BidderIx,
	BidderMedianet,
	BidderOpenx,
	BidderOutbrain,
	BidderPubmatic,
	BidderRtbhouse,
	BidderRubicon,
	BidderSharethrough,
	BidderSmaato,
	BidderSovrn,
	BidderTaboola,
	BidderTelaria,
	BidderTriplelift,
	BidderUnruly,
	BidderYahooAds,
	BidderYandex,
	BidderYieldmo,
}

// aliasBidderToParent maps hardcoded aliases to their parent core bidder.
var aliasBidderToParent = map[BidderName]BidderName{
	BidderName("districtm"):    BidderAppnexus,
	BidderName("emxdigital"):   BidderAppnexus,
	BidderName("viewdeos"):     BidderAdtelligent,
	BidderName("yahoossp"):     BidderYahooAds,
	BidderName("trafficgate"):  BidderOpenx,
	BidderName("themediagrid"): BidderGrid,
}

// CoreBidderNames returns a slice of all core bidders.
func CoreBidderNames() []BidderName {
	return coreBidderNames
}

// GetAliasBidderToParent returns the static alias table.
func GetAliasBidderToParent() map[BidderName]BidderName {
	return aliasBidderToParent
}

// SetAliasBidderName adds an alias to the known bidder name lookup table. Returns
// an error if the alias name collides with a reserved ext field.
func SetAliasBidderName(aliasBidderName string, parentBidderName BidderName) error {
	if IsBidderNameReserved(aliasBidderName) {
		return errReservedName{name: aliasBidderName}
	}

	bidderName := BidderName(aliasBidderName)
	coreBidderNames = append(coreBidderNames, bidderName)
	aliasBidderToParent[bidderName] = parentBidderName
	bidderNameLookup[strings.ToLower(aliasBidderName)] = bidderName
	return nil
}

type errReservedName struct {
	name string
}

func (e errReservedName) Error() string {
	return "alias " + e.name + " is a reserved bidder name and cannot be used"
}

var bidderNameLookup = func() map[string]BidderName {
	lookup := make(map[string]BidderName, len(coreBidderNames)+len(aliasBidderToParent))
	for _, name := range coreBidderNames {
		lookup[strings.ToLower(string(name))] = name
	}
	for alias, parent := range aliasBidderToParent {
		lookup[strings.ToLower(string(alias))] = alias
		lookup[strings.ToLower(string(parent))] = parent
	}
	return lookup
}()

// NormalizeBidderName returns the canonical-cased bidder name for any case
// permutation of a known bidder, along with a flag indicating the name is known.
func NormalizeBidderName(name string) (BidderName, bool) {
	nameNormalized, exists := bidderNameLookup[strings.ToLower(name)]
	return nameNormalized, exists
}

// NormalizeBidderNameOrUnchanged returns the canonical bidder name when known
// and the unchanged original name otherwise.
func NormalizeBidderNameOrUnchanged(name string) BidderName {
	if normalized, exists := NormalizeBidderName(name); exists {
		return normalized
	}
	return BidderName(name)
}
