package notify

import (
	"context"
	"errors"

	"github.com/ortelius/storefront-guard/internal/incident"
	"github.com/ortelius/storefront-guard/model"
)

// Multi fans a response out to several notifiers. Every notifier is attempted;
// the failures are joined.
type Multi []incident.Notifier

// NotifyStakeholders calls every notifier
func (m Multi) NotifyStakeholders(ctx context.Context, inc *model.SecurityIncident, contacts []string) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyStakeholders(ctx, inc, contacts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ImplementContainment calls every notifier
func (m Multi) ImplementContainment(ctx context.Context, inc *model.SecurityIncident, actions []string) error {
	var errs []error
	for _, n := range m {
		if err := n.ImplementContainment(ctx, inc, actions); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every response
type Nop struct{}

// NotifyStakeholders does nothing
func (Nop) NotifyStakeholders(context.Context, *model.SecurityIncident, []string) error { return nil }

// ImplementContainment does nothing
func (Nop) ImplementContainment(context.Context, *model.SecurityIncident, []string) error { return nil }
