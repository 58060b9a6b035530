package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/spf13/viper"
)

// Configuration carries the exchange level settings.
type Configuration struct {
	// AuctionTimeouts bounds the tmax of incoming requests.
	AuctionTimeouts AuctionTimeouts `mapstructure:"auction_timeouts_ms"`
	// TmaxAdjustments reduces the deadline handed to bidders to leave room for
	// exchange overhead and network latency.
	TmaxAdjustments TmaxAdjustments `mapstructure:"tmax_adjustments"`
	// CurrencyConverter configures the periodic conversion rate fetch.
	CurrencyConverter CurrencyConverter `mapstructure:"currency_converter"`
	// GenerateBidID enables generating a fresh UUID per bid in the response ext.
	GenerateBidID bool `mapstructure:"generate_bid_id"`
	// HostSChainNode is appended to every outgoing supply chain when set.
	HostSChainNode *openrtb2.SupplyChainNode `mapstructure:"host_schain_node"`
	// StrictEntityCheck rejects requests defining more than one of site, app and dooh.
	StrictEntityCheck bool `mapstructure:"strict_entity_check"`
	// StrictFPD fails imp processing when first party data cannot be applied.
	StrictFPD bool `mapstructure:"strict_fpd"`
	// DebugAllow gates the debug http call collection at the host level.
	DebugAllow bool `mapstructure:"debug_allow"`
	// CacheExpectedTimeMillis is reported in bid targeting when caching is expected.
	CacheExpectedTimeMillis int `mapstructure:"cache_expected_time_ms"`
	// EEACountries lists the country codes treated as within GDPR scope.
	EEACountries []string `mapstructure:"eea_countries"`
}

type AuctionTimeouts struct {
	// The default timeout is used if the user's request didn't define one. Use 0 if there's no default.
	Default uint64 `mapstructure:"default"`
	// The max timeout is used as an absolute cap, to prevent excessively long ones. Use 0 for no cap
	Max uint64 `mapstructure:"max"`
}

// LimitAuctionTimeout returns the min of requested or cfg.MaxAuctionTimeout.
// Both values treat "0" as "infinite".
func (cfg *AuctionTimeouts) LimitAuctionTimeout(requested time.Duration) time.Duration {
	if requested == 0 && cfg.Default != 0 {
		return time.Duration(cfg.Default) * time.Millisecond
	}
	if cfg.Max != 0 {
		maxTimeout := time.Duration(cfg.Max) * time.Millisecond
		if requested == 0 || requested > maxTimeout {
			return maxTimeout
		}
	}
	return requested
}

// TmaxAdjustments specifies the buffers subtracted from the request tmax before
// handing the remainder to bidders.
type TmaxAdjustments struct {
	Enabled bool `mapstructure:"enabled"`
	// BidderNetworkLatencyBuffer accounts for network delay between the exchange and the bidder, in milliseconds.
	BidderNetworkLatencyBuffer uint `mapstructure:"bidder_network_latency_buffer_ms"`
	// PBSResponsePreparationDuration accounts for the time the exchange needs to assemble the response, in milliseconds.
	PBSResponsePreparationDuration uint `mapstructure:"pbs_response_preparation_duration_ms"`
	// BidderResponseDurationMin is the minimum time a bidder must be given, in milliseconds.
	// If the remaining time is below this value the bidder call is skipped.
	BidderResponseDurationMin uint `mapstructure:"bidder_response_duration_min_ms"`
}

type CurrencyConverter struct {
	FetchURL             string `mapstructure:"fetch_url"`
	FetchIntervalSeconds int    `mapstructure:"fetch_interval_seconds"`
	StaleRatesSeconds    int    `mapstructure:"stale_rates_seconds"`
}

func (cfg *CurrencyConverter) validate(errs []error) []error {
	if cfg.FetchIntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("currency_converter.fetch_interval_seconds must be positive: %d", cfg.FetchIntervalSeconds))
	}
	return errs
}

func (cfg *Configuration) validate() []error {
	var errs []error
	if cfg.AuctionTimeouts.Max < cfg.AuctionTimeouts.Default {
		errs = append(errs, fmt.Errorf("auction_timeouts_ms.max cannot be less than auction_timeouts_ms.default: %d < %d", cfg.AuctionTimeouts.Max, cfg.AuctionTimeouts.Default))
	}
	errs = cfg.CurrencyConverter.validate(errs)
	if cfg.TmaxAdjustments.Enabled && cfg.TmaxAdjustments.BidderResponseDurationMin == 0 {
		glog.Warning("tmax_adjustments.bidder_response_duration_min_ms is 0: bidders will be called regardless of the remaining time")
	}
	return errs
}

// New validates the configuration found in the given viper instance.
func New(v *viper.Viper) (*Configuration, error) {
	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("viper failed to unmarshal app config: %v", err)
	}

	if errs := c.validate(); len(errs) > 0 {
		return &c, consolidate(errs)
	}

	return &c, nil
}

func consolidate(errs []error) error {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return errors.New("validation errors are:\n\n  " + strings.Join(msgs, "\n  ") + "\n")
}

// SetupViper returns a viper instance with the config file location and
// environment wiring plus every default the exchange relies on.
func SetupViper(filename string) *viper.Viper {
	v := viper.New()
	if filename != "" {
		v.SetConfigName(filename)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/config")
	}

	v.SetDefault("auction_timeouts_ms.default", 0)
	v.SetDefault("auction_timeouts_ms.max", 0)
	v.SetDefault("tmax_adjustments.enabled", false)
	v.SetDefault("tmax_adjustments.bidder_network_latency_buffer_ms", 0)
	v.SetDefault("tmax_adjustments.pbs_response_preparation_duration_ms", 0)
	v.SetDefault("tmax_adjustments.bidder_response_duration_min_ms", 0)
	v.SetDefault("currency_converter.fetch_url", "https://cdn.jsdelivr.net/gh/prebid/currency-file@1/latest.json")
	v.SetDefault("currency_converter.fetch_interval_seconds", 1800) // 30 minutes
	v.SetDefault("currency_converter.stale_rates_seconds", 0)
	v.SetDefault("generate_bid_id", false)
	v.SetDefault("strict_entity_check", false)
	v.SetDefault("strict_fpd", false)
	v.SetDefault("debug_allow", true)
	v.SetDefault("cache_expected_time_ms", 10)
	v.SetDefault("eea_countries", []string{
		"ALA", "AUT", "BEL", "BGR", "HRV", "CYP", "CZE", "DNK", "EST",
		"FIN", "FRA", "GUF", "DEU", "GIB", "GRC", "GLP", "GGY", "HUN",
		"ISL", "IRL", "IMN", "ITA", "JEY", "LVA", "LIE", "LTU", "LUX",
		"MLT", "MTQ", "MYT", "NLD", "NOR", "POL", "PRT", "REU", "ROU",
		"BLM", "MAF", "SPM", "SVK", "SVN", "ESP", "SJM", "SWE", "GBR"})

	v.SetEnvPrefix("EXCHANGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.ReadInConfig()

	return v
}
