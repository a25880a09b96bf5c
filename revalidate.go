package interceptcache

import (
	"context"
	"net/http"
)

// scheduleRevalidation dispatches a background refresh of the given entry.
// The caller has already been answered from the store; the refresh runs
// detached from the caller's request context and its outcome is never
// observed on the serving path. Fetch and store errors are swallowed.
//
// Concurrency is bounded by the revalidation semaphore; a hit always gets
// its refresh scheduled, it may just queue behind others.
func (ic *Interceptor) scheduleRevalidation(req *http.Request, key string) {
	// detach from the caller's context, the refresh outlives the request
	r := req.Clone(context.Background())
	r.RequestURI = ""
	r.Body = nil

	ic.wg.Add(1)
	go func() {
		defer ic.wg.Done()
		ic.revalidations <- struct{}{}
		defer func() { <-ic.revalidations }()

		res, err := ic.transport.RoundTrip(r)
		if err != nil {
			ic.log.Trace().Err(err).Str("key", key).Msg("Revalidation fetch failed")
			return
		}
		defer res.Body.Close()
		ic.storeResponse(key, res)
	}()
}
