package interceptcache

import (
	"context"
	"net/http"
	"net/url"
)

// State is the lifecycle state of the interception layer.
type State int32

const (
	Uninstalled State = iota
	Installing
	Installed
	Activating
	Active
)

func (s State) String() string {
	switch s {
	case Uninstalled:
		return "uninstalled"
	case Installing:
		return "installing"
	case Installed:
		return "installed"
	case Activating:
		return "activating"
	case Active:
		return "active"
	}
	return "unknown"
}

// State returns the current lifecycle state.
func (ic *Interceptor) State() State {
	ic.stateMutex.Lock()
	defer ic.stateMutex.Unlock()
	return ic.state
}

func (ic *Interceptor) setState(s State) {
	ic.stateMutex.Lock()
	ic.state = s
	ic.stateMutex.Unlock()
	ic.log.Debug().Stringer("state", s).Msg("Lifecycle transition")
}

// Install populates the current namespace with the preload set.
// Every entry is attempted individually: a failed preload is logged and
// skipped, and installation completes regardless. Preload completeness is
// traded for availability.
func (ic *Interceptor) Install(ctx context.Context) {
	ic.setState(Installing)
	for _, raw := range ic.preload {
		if err := ic.preloadOne(ctx, raw); err != nil {
			ic.log.Warn().Err(err).Str("url", raw).Msg("Could not preload")
		}
	}
	ic.setState(Installed)
}

func (ic *Interceptor) preloadOne(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	origin := ic.scope.Origin()
	u = origin.ResolveReference(u)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	res, err := ic.transport.RoundTrip(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	ic.storeResponse(requestKey(req), res)
	return nil
}

// Activate takes over as the current deployment: it enumerates all
// namespaces in the store and drops every one whose name differs from the
// current version, so at most one namespace survives per deployed version.
// Cleanup failures are logged and never block activation; an orphaned
// namespace is an acceptable leak, bounded by version churn.
func (ic *Interceptor) Activate() {
	ic.setState(Activating)
	namespaces, err := ic.store.Namespaces()
	if err != nil {
		ic.log.Error().Err(err).Msg("Could not enumerate cache namespaces")
	}
	for _, namespace := range namespaces {
		if namespace == ic.version {
			continue
		}
		ic.log.Debug().Str("namespace", namespace).Msg("Dropping stale cache namespace")
		if err := ic.store.DropNamespace(namespace); err != nil {
			ic.log.Warn().Err(err).Str("namespace", namespace).Msg("Could not drop stale namespace")
		}
	}
	ic.setState(Active)
}

// Run installs and activates the interception layer.
func (ic *Interceptor) Run(ctx context.Context) {
	ic.Install(ctx)
	ic.Activate()
}
