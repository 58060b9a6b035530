package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bidflare/exchange-core/openrtb_ext"
	"github.com/bidflare/exchange-core/util/ptrutil"
)

func TestGetAuctionCurrencyRates(t *testing.T) {
	customRates := map[string]map[string]float64{
		"USD": {
			"EUR": 2.0,
		},
	}

	t.Run("nil-converter-and-nil-request-rates", func(t *testing.T) {
		conversions := GetAuctionCurrencyRates(nil, nil)
		assert.Equal(t, NewConstantRates(), conversions)

		rate, err := conversions.GetRate("USD", "USD")
		assert.NoError(t, err)
		assert.Equal(t, 1.0, rate)
	})

	t.Run("nil-request-rates", func(t *testing.T) {
		converter := NewRateConverter(nil, "", 0)
		conversions := GetAuctionCurrencyRates(converter, nil)
		assert.Equal(t, converter.Rates(), conversions)
	})

	t.Run("nil-converter", func(t *testing.T) {
		conversions := GetAuctionCurrencyRates(nil, &openrtb_ext.ExtRequestCurrency{ConversionRates: customRates})
		rate, err := conversions.GetRate("USD", "EUR")
		assert.NoError(t, err)
		assert.Equal(t, 2.0, rate)
	})

	t.Run("usepbsrates-false-custom-only", func(t *testing.T) {
		converter := NewRateConverter(nil, "", 0)
		conversions := GetAuctionCurrencyRates(converter, &openrtb_ext.ExtRequestCurrency{
			ConversionRates: customRates,
			UsePBSRates:     ptrutil.ToPtr(false),
		})
		assert.IsType(t, &Rates{}, conversions)
	})

	t.Run("empty-custom-rates-fall-back-to-server", func(t *testing.T) {
		converter := NewRateConverter(nil, "", 0)
		conversions := GetAuctionCurrencyRates(converter, &openrtb_ext.ExtRequestCurrency{})
		assert.Equal(t, converter.Rates(), conversions)
	})

	t.Run("aggregate-prefers-custom", func(t *testing.T) {
		converter := NewRateConverter(nil, "", 0)
		conversions := GetAuctionCurrencyRates(converter, &openrtb_ext.ExtRequestCurrency{
			ConversionRates: customRates,
			UsePBSRates:     ptrutil.ToPtr(true),
		})
		assert.IsType(t, &AggregateConversions{}, conversions)

		rate, err := conversions.GetRate("USD", "EUR")
		assert.NoError(t, err)
		assert.Equal(t, 2.0, rate)
	})
}
