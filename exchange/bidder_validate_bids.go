package exchange

import (
	"errors"
	"fmt"
	"strings"

	goCurrency "golang.org/x/text/currency"

	"github.com/bidflare/exchange-core/errortypes"
	"github.com/bidflare/exchange-core/exchange/entities"
	"github.com/bidflare/exchange-core/metrics"
	"github.com/bidflare/exchange-core/util/sliceutil"
)

// removeInvalidBids excises bids that cannot be trusted downstream: structural
// problems become plain errors, and non-positive prices are dropped with a
// debug level warning so publishers can still see what happened. Every dropped
// bid fires one adapter metric.
func removeInvalidBids(requestAllowedCurrencies []string, seatBid *entities.PbsOrtbSeatBid, me metrics.MetricsEngine, labels metrics.AdapterLabels, nonBids *SeatNonBidBuilder) []error {
	if seatBid == nil || len(seatBid.Bids) == 0 {
		return nil
	}

	if cerr := validateCurrency(requestAllowedCurrencies, seatBid.Currency); cerr != nil {
		for _, bid := range seatBid.Bids {
			nonBids.rejectBid(bid, RequestBlockedUnacceptableCurrency, seatBid.Seat)
		}
		seatBid.Bids = nil
		return []error{cerr}
	}

	errs := make([]error, 0, len(seatBid.Bids))
	validBids := make([]*entities.PbsOrtbBid, 0, len(seatBid.Bids))
	for _, bid := range seatBid.Bids {
		ok, berr := validateBid(bid)
		if ok {
			validBids = append(validBids, bid)
			continue
		}
		me.RecordAdapterDroppedBid(labels)
		nonBids.rejectBid(bid, ResponseRejectedGeneral, seatBid.Seat)
		errs = append(errs, berr)
	}
	seatBid.Bids = validBids
	return errs
}

// validateCurrency checks the bid currency is a valid ISO-4217 code accepted by
// the request. An empty request cur list accepts only the default USD.
func validateCurrency(requestAllowedCurrencies []string, bidCurrency string) error {
	defaultCurrency := "USD"
	if bidCurrency == "" {
		bidCurrency = defaultCurrency
	}
	currencyUnit, cerr := goCurrency.ParseISO(bidCurrency)
	if cerr != nil {
		return cerr
	}
	if len(requestAllowedCurrencies) == 0 {
		requestAllowedCurrencies = []string{defaultCurrency}
	}
	if !sliceutil.ContainsStringIgnoreCase(requestAllowedCurrencies, currencyUnit.String()) {
		return fmt.Errorf(
			"Bid currency is not allowed. Was '%s', wants: ['%s']",
			currencyUnit.String(),
			strings.Join(requestAllowedCurrencies, "', '"),
		)
	}

	return nil
}

// validateBid returns whether the bid survives validation, with the error to
// surface when it does not.
func validateBid(bid *entities.PbsOrtbBid) (bool, error) {
	if bid.Bid == nil {
		return false, errors.New("Empty bid object submitted.")
	}

	if bid.Bid.ID == "" {
		return false, errors.New("Bid missing required field 'id'")
	}
	if bid.Bid.ImpID == "" {
		return false, fmt.Errorf("Bid \"%s\" missing required field 'impid'", bid.Bid.ID)
	}
	if bid.Bid.Price < 0.0 || (bid.Bid.Price == 0.0 && bid.Bid.DealID == "") {
		return false, &errortypes.DebugWarning{
			Message:     fmt.Sprintf("Dropped bid '%s'. Does not contain a positive (or zero if there is a deal) 'price'", bid.Bid.ID),
			WarningCode: errortypes.UnknownWarningCode,
		}
	}

	return true, nil
}
