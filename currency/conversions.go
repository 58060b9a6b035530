package currency

// Conversions allows to get a conversion rate between two currencies.
// if one of the currency strings is not well-formed, an error will be returned.
// if the conversion rate between the two currencies cannot be found, a
// ConversionNotFoundError will be returned.
type Conversions interface {
	GetRate(from string, to string) (float64, error)
	GetRates() *map[string]map[string]float64
}
