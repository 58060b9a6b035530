package currency

import (
	"github.com/bidflare/exchange-core/openrtb_ext"
)

// GetAuctionCurrencyRates returns the effective conversion rates for one auction,
// combining server-fetched rates with any custom rates carried on the request.
func GetAuctionCurrencyRates(currencyConverter *RateConverter, requestRates *openrtb_ext.ExtRequestCurrency) Conversions {
	if currencyConverter == nil && requestRates == nil {
		// Same-currency conversion only when no rate source exists at all.
		return NewConstantRates()
	}

	if requestRates == nil {
		// No bidRequest.ext.currency field was found, use server rates as usual
		return currencyConverter.Rates()
	}

	if currencyConverter == nil {
		return NewRates(requestRates.ConversionRates)
	}

	// If bidRequest.ext.currency.usepbsrates is nil, we understand its value as true. It will be false
	// only if it's explicitly set to false
	usePbsRates := requestRates.UsePBSRates == nil || *requestRates.UsePBSRates

	if !usePbsRates {
		return NewRates(requestRates.ConversionRates)
	}

	// Both server and custom rates can be used, check if ConversionRates is not empty
	if len(requestRates.ConversionRates) == 0 {
		// Custom rates map is empty, use server rates only
		return currencyConverter.Rates()
	}

	// Return an AggregateConversions object that includes both custom and server currency rates but will
	// prioritize custom rates over server rates whenever a currency rate is found in both
	return NewAggregateConversions(NewRates(requestRates.ConversionRates), currencyConverter.Rates())
}
