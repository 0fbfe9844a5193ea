package pricing

import (
	"context"
	"errors"
	"time"

	"gearshare/internal/domain/reservation"
	"gearshare/internal/domain/resource"
	"gearshare/internal/domain/shared/money"
	"gearshare/internal/domain/shared/timerange"
)

var (
	ErrCurrencyUnset = errors.New("pricing: currency must be defined")
	ErrNoUnits       = errors.New("pricing: window shorter than one billing unit")
)

// Quote is the deterministic price of a rental window.
type Quote struct {
	Units       int64
	Base        money.Money
	DeliveryFee money.Money
	Deposit     money.Money
	Total       money.Money
}

type Calculator interface {
	Quote(ctx context.Context, res *resource.Resource, window timerange.TimeRange, method reservation.DeliveryMethod) (Quote, error)
}

// StandardCalculator charges the resource's rate per billing unit (partial
// units round up) plus a flat fee for courier delivery. EXPRESS carries no
// fee under the current policy.
type StandardCalculator struct {
	BillingUnit time.Duration
	DeliveryFee money.Money
}

func (c StandardCalculator) Quote(ctx context.Context, res *resource.Resource, window timerange.TimeRange, method reservation.DeliveryMethod) (Quote, error) {
	if res.DailyRate.Currency == "" {
		return Quote{}, ErrCurrencyUnset
	}
	unit := c.BillingUnit
	if unit <= 0 {
		unit = 24 * time.Hour
	}
	units := window.Units(unit)
	if units <= 0 {
		return Quote{}, ErrNoUnits
	}
	base := res.DailyRate.Multiply(units)
	fee := money.Zero(base.Currency)
	if method == reservation.MethodDelivery && !c.DeliveryFee.IsZero() {
		fee = c.DeliveryFee
		if fee.Currency == "" {
			fee.Currency = base.Currency
		}
	}
	total, err := base.Add(fee)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Units:       units,
		Base:        base,
		DeliveryFee: fee,
		Deposit:     res.Deposit,
		Total:       total,
	}, nil
}

var _ Calculator = StandardCalculator{}
