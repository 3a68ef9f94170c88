package arbitrage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

const (
	defaultDaysToExpiry = 90.0
	daysPerYear         = 365.0
	minDecay            = 0.5
	maxDecay            = 1.0
)

// DecayModel discounts opportunities by time until the earliest market in the
// bundle resolves: factor = clamp(1 - 0.5*days/365, 0.5, 1.0).
type DecayModel struct {
	expiry      domain.ExpiryLookup
	endDates    domain.Cache[time.Time]
	defaultDays float64
	now         func() time.Time
	logger      *slog.Logger
}

// NewDecayModel creates a DecayModel. expiry and endDates may be nil, in
// which case every bundle uses defaultDays (90 when zero).
func NewDecayModel(expiry domain.ExpiryLookup, endDates domain.Cache[time.Time], defaultDays float64, logger *slog.Logger) *DecayModel {
	if defaultDays <= 0 {
		defaultDays = defaultDaysToExpiry
	}
	return &DecayModel{
		expiry:      expiry,
		endDates:    endDates,
		defaultDays: defaultDays,
		now:         time.Now,
		logger:      logger.With(slog.String("component", "time_decay")),
	}
}

// Factor returns the decay factor for the bundle. It never fails: any
// internal error or non-finite value yields 1.0.
func (d *DecayModel) Factor(ctx context.Context, markets []string) (factor float64) {
	defer failOpen(d.logger, "time_decay", &factor, maxDecay)

	f := 1.0 - 0.5*(d.daysRemaining(ctx, markets)/daysPerYear)
	if !finite(f) {
		return maxDecay
	}
	return min(maxDecay, max(minDecay, f))
}

// daysRemaining returns days until the earliest known end date, or the
// default when none of the markets has one.
func (d *DecayModel) daysRemaining(ctx context.Context, markets []string) float64 {
	var earliest time.Time
	for _, id := range markets {
		end, ok := d.endDate(ctx, id)
		if !ok {
			continue
		}
		if earliest.IsZero() || end.Before(earliest) {
			earliest = end
		}
	}
	if earliest.IsZero() {
		return d.defaultDays
	}
	return earliest.Sub(d.now()).Hours() / 24
}

func (d *DecayModel) endDate(ctx context.Context, id string) (time.Time, bool) {
	if d.endDates != nil {
		if t, ok := d.endDates.Get(id); ok {
			return t, !t.IsZero()
		}
	}
	if d.expiry == nil {
		return time.Time{}, false
	}
	t, err := d.expiry.MarketEndDate(ctx, id)
	if errors.Is(err, domain.ErrNotFound) && d.endDates != nil {
		d.endDates.Set(id, time.Time{})
	}
	if err != nil {
		d.logger.Debug("end date lookup failed",
			slog.String("market", id),
			slog.String("error", err.Error()),
		)
		return time.Time{}, false
	}
	if d.endDates != nil {
		d.endDates.Set(id, t)
	}
	return t, !t.IsZero()
}

// ClearCache drops cached end dates.
func (d *DecayModel) ClearCache() {
	if d.endDates != nil {
		d.endDates.Clear()
	}
}
