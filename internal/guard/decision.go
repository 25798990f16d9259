// Package guard mirrors the server's access decision for dashboard screens.
// It is a UX aid only: the API middleware remains the authority.
package guard

// Decision is the action a screen takes for a given State.
type Decision string

const (
	Loading        Decision = "loading"
	RedirectSignIn Decision = "redirect_sign_in"
	RedirectUpsell Decision = "redirect_upsell"
	RedirectGated  Decision = "redirect_gated"
	ShowRetry      Decision = "show_retry"
	Render         Decision = "render"
)

// State is the input both guards evaluate. Callers re-evaluate on every change.
type State struct {
	AuthLoading              bool
	IsLoggedIn               bool
	SubscriptionLoading      bool
	IsActive                 bool
	IsSubscriptionCheckError bool
}

// Settled reports whether auth and, for signed-in visitors, the entitlement
// query have both resolved.
func (s State) Settled() bool {
	if s.AuthLoading {
		return false
	}
	return !s.IsLoggedIn || !s.SubscriptionLoading
}

// GatedDecision guards screens that require a live entitlement. A failed
// entitlement check asks for a manual retry instead of redirecting.
func GatedDecision(s State) Decision {
	switch {
	case !s.Settled():
		return Loading
	case !s.IsLoggedIn:
		return RedirectSignIn
	case s.IsSubscriptionCheckError:
		return ShowRetry
	case !s.IsActive:
		return RedirectUpsell
	default:
		return Render
	}
}

// UpsellDecision guards the billing screen, sending entitled visitors back to
// the dashboard so they cannot purchase twice.
func UpsellDecision(s State) Decision {
	switch {
	case !s.Settled():
		return Loading
	case !s.IsLoggedIn:
		return RedirectSignIn
	case s.IsActive && !s.IsSubscriptionCheckError:
		return RedirectGated
	default:
		return Render
	}
}
