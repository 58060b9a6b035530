package config

// Account defines the publisher level settings resolved for one auction.
// Fetching accounts from a backing store is out of scope here; hosts inject
// the resolved struct.
type Account struct {
	ID              string         `mapstructure:"id" json:"id"`
	DebugAllow      bool           `mapstructure:"debug_allow" json:"debug_allow"`
	DefaultBidLimit int            `mapstructure:"default_bid_limit" json:"default_bid_limit"`
	Cache           AccountCache   `mapstructure:"cache" json:"cache"`
	Privacy         AccountPrivacy `mapstructure:"privacy" json:"privacy"`
}

// AccountCache controls whether bids for this account may be cached. When
// disabled, request level cache instructions are ignored.
type AccountCache struct {
	Disabled bool `mapstructure:"disabled" json:"disabled"`
}

// AccountPrivacy holds the account level activity rules.
type AccountPrivacy struct {
	AllowActivities *AllowActivities `mapstructure:"allowactivities" json:"allowactivities,omitempty"`
}

// AllowActivities maps each controllable activity to its rule plan.
type AllowActivities struct {
	FetchBids                Activity `mapstructure:"fetchBids" json:"fetchBids"`
	ReportAnalytics          Activity `mapstructure:"reportAnalytics" json:"reportAnalytics"`
	TransmitUserFPD          Activity `mapstructure:"transmitUfpd" json:"transmitUfpd"`
	TransmitPreciseGeo       Activity `mapstructure:"transmitPreciseGeo" json:"transmitPreciseGeo"`
	TransmitUniqueRequestIDs Activity `mapstructure:"transmitUniqueRequestIds" json:"transmitUniqueRequestIds"`
	TransmitTIDs             Activity `mapstructure:"transmitTid" json:"transmitTid"`
}

type Activity struct {
	Default *bool          `mapstructure:"default" json:"default,omitempty"`
	Rules   []ActivityRule `mapstructure:"rules" json:"rules,omitempty"`
}

type ActivityRule struct {
	Condition ActivityCondition `mapstructure:"condition" json:"condition"`
	Allow     bool              `mapstructure:"allow" json:"allow"`
}

type ActivityCondition struct {
	ComponentName []string `mapstructure:"componentName" json:"componentName,omitempty"`
	ComponentType []string `mapstructure:"componentType" json:"componentType,omitempty"`
}
