package interceptcache

import (
	"io"
	"net/http"
)

// Handler returns an http.Handler that serves intercepted requests, for
// running the layer as a local caching proxy in front of the origin.
// Incoming requests are redirected to the configured origin before they
// enter the interception path.
func (ic *Interceptor) Handler() http.Handler {
	origin := ic.scope.Origin()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := r.Clone(r.Context())
		req.URL.Scheme = origin.Scheme
		req.URL.Host = origin.Host
		req.Host = origin.Host
		req.RequestURI = ""

		res, err := ic.RoundTrip(req)
		if err != nil {
			http.Error(w, "Could not get response", http.StatusBadGateway)
			return
		}
		defer res.Body.Close()
		copyHeader(w.Header(), res.Header)
		w.WriteHeader(res.StatusCode)
		if _, err := io.Copy(w, res.Body); err != nil {
			ic.log.Error().Err(err).Msg("Could not write response body to client")
		}
	})
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		// some servers do not like the presence of forwarding headers
		// added by an upstream proxy, so drop them
		if k != "X-Forwarded-For" && k != "X-Forwarded-Proto" && k != "X-Forwarded-Host" {
			for _, v := range vv {
				dst.Add(k, v)
			}
		}
	}
}
