// internal/auth/redirect.go
package auth

import (
	"context"
	"time"

	"github.com/AngelRodriguez8008/EasyRepro/internal/command"
	"github.com/AngelRodriguez8008/EasyRepro/internal/wait"
)

// FormRedirectHandler completes a federated login on a simple forms-based
// identity provider (AD FS style): it enters the password, submits, and waits
// for the application's landing marker.
func FormRedirectHandler(form FederationForm, landing Locators, waiter *wait.Waiter, submitTimeout, landingTimeout time.Duration) RedirectHandler {
	return func(ctx context.Context, ev RedirectEvent) error {
		drv := ev.Driver

		pwd, err := drv.Find(ctx, form.Password)
		if err != nil {
			return err
		}
		if err := pwd.Type(ctx, ev.Credentials.Password); err != nil {
			return err
		}

		submit, ok, err := waiter.Element(ctx, drv, form.Submit, submitTimeout)
		if err != nil {
			return err
		}
		if !ok {
			return command.NewFailure(command.KindNotFound, "federation submit button %s not found", form.Submit)
		}
		if err := submit.Click(ctx); err != nil {
			return err
		}

		ok, err = waiter.Until(ctx, drv, "federated landing page", wait.Visible(landing.LandingMarker), landingTimeout)
		if err != nil {
			return err
		}
		if !ok {
			return command.NewFailure(command.KindApplicationError, "federated login failed: landing marker not found")
		}
		if err := waiter.Settled(ctx, drv); err != nil {
			return err
		}
		return drv.SwitchToDefaultContent(ctx)
	}
}
