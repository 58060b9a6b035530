package exchange

import (
	"context"
	"time"

	"github.com/bidflare/exchange-core/config"
)

// TmaxAdjustmentsPreprocessed is the enforced form of config.TmaxAdjustments,
// resolved once at exchange construction.
type TmaxAdjustmentsPreprocessed struct {
	BidderNetworkLatencyBuffer     uint
	PBSResponsePreparationDuration uint
	BidderResponseDurationMin      uint

	IsEnforced bool
}

func ProcessTMaxAdjustments(adjustmentsConfig config.TmaxAdjustments) *TmaxAdjustmentsPreprocessed {
	if !adjustmentsConfig.Enabled {
		return nil
	}

	isEnforced := adjustmentsConfig.BidderResponseDurationMin != 0 &&
		(adjustmentsConfig.BidderNetworkLatencyBuffer != 0 || adjustmentsConfig.PBSResponsePreparationDuration != 0)

	tmaxAdjustment := TmaxAdjustmentsPreprocessed{
		BidderNetworkLatencyBuffer:     adjustmentsConfig.BidderNetworkLatencyBuffer,
		PBSResponsePreparationDuration: adjustmentsConfig.PBSResponsePreparationDuration,
		BidderResponseDurationMin:      adjustmentsConfig.BidderResponseDurationMin,
		IsEnforced:                     isEnforced,
	}

	return &tmaxAdjustment
}

type bidderTmaxContext interface {
	Deadline() (deadline time.Time, ok bool)
	RemainingDurationMS(deadline time.Time) int64
	Until(t time.Time) time.Duration
}

type bidderTmaxCtx struct{ ctx context.Context }

func (b *bidderTmaxCtx) RemainingDurationMS(deadline time.Time) int64 {
	return time.Until(deadline).Milliseconds()
}

func (b *bidderTmaxCtx) Deadline() (deadline time.Time, ok bool) {
	deadline, ok = b.ctx.Deadline()
	return
}

// Until returns the duration until t
func (b *bidderTmaxCtx) Until(t time.Time) time.Duration {
	return time.Until(t)
}

// getBidderTmax returns the tmax a bidder should see: the remaining time on the
// auction deadline minus the configured network and response preparation buffers.
func getBidderTmax(ctx bidderTmaxContext, requestTmaxMS int64, tmaxAdjustments TmaxAdjustmentsPreprocessed) int64 {
	if tmaxAdjustments.IsEnforced {
		if deadline, ok := ctx.Deadline(); ok {
			overheadNS := time.Duration(tmaxAdjustments.BidderNetworkLatencyBuffer+tmaxAdjustments.PBSResponsePreparationDuration) * time.Millisecond
			return ctx.RemainingDurationMS(deadline.Add(-overheadNS))
		}
	}

	return requestTmaxMS
}

// hasShorterDurationThanTmax reports whether the remaining time is below the
// bidder's minimum response duration, in which case the call is skipped.
func hasShorterDurationThanTmax(ctx bidderTmaxContext, tmaxAdjustments TmaxAdjustmentsPreprocessed) bool {
	if tmaxAdjustments.IsEnforced {
		if deadline, ok := ctx.Deadline(); ok {
			overheadNS := time.Duration(tmaxAdjustments.BidderNetworkLatencyBuffer+tmaxAdjustments.PBSResponsePreparationDuration) * time.Millisecond
			bidderTmax := deadline.Add(-overheadNS)

			remainingDuration := ctx.Until(bidderTmax).Milliseconds()
			return remainingDuration < int64(tmaxAdjustments.BidderResponseDurationMin)
		}
	}
	return false
}
