package interceptcache

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	scope "github.com/scansight/intercept-cache/pkg/request-scope"
	snapshot "github.com/scansight/intercept-cache/pkg/response-snapshot"
	"github.com/scansight/intercept-cache/store"

	"github.com/rs/zerolog"
)

// unavailableBody is the diagnostic body of the synthesized response
// returned when the network cannot be reached and no snapshot exists.
const unavailableBody = "Service unavailable: network unreachable and no cached response\n"

// defaultMaxRevalidations bounds concurrent background refreshes.
const defaultMaxRevalidations = 8

type Options struct {
	// Version tags the cache namespace used by this deployment.
	// Bump it on every release that should start from a clean cache.
	Version string
	// Origin is the only origin whose requests are intercepted.
	Origin url.URL
	// Store holds response snapshots. An in-memory store is used if nil.
	Store store.Store
	// Transport performs the actual network fetches.
	// http.DefaultTransport is used if nil.
	Transport http.RoundTripper
	// Preload lists URLs fetched into the cache during Install.
	// Relative URLs are resolved against Origin.
	Preload []string
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
	// MaxRevalidations bounds the number of concurrent background
	// refreshes. Zero means the default.
	MaxRevalidations int
}

// Interceptor sits between the application and the network.
// It intercepts eligible outgoing requests and answers them from its
// store when possible, refreshing stored entries in the background.
//
// Interceptor implements http.RoundTripper so it can be installed as an
// HTTP client transport; see Handler for running it as a local proxy.
type Interceptor struct {
	store     store.Store
	scope     scope.Filter
	transport http.RoundTripper
	version   string
	preload   []string
	log       zerolog.Logger

	stateMutex sync.Mutex
	state      State

	revalidations chan struct{}
	wg            sync.WaitGroup
}

func New(opts Options) *Interceptor {
	var logger zerolog.Logger
	if opts.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *opts.Logger
	}
	logger = logger.With().
		Str("origin", opts.Origin.String()).
		Str("version", opts.Version).
		Logger()

	st := opts.Store
	if st == nil {
		st = store.NewMemStore()
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	maxRevalidations := opts.MaxRevalidations
	if maxRevalidations <= 0 {
		maxRevalidations = defaultMaxRevalidations
	}

	return &Interceptor{
		store:         st,
		scope:         scope.NewFilter(opts.Origin),
		transport:     transport,
		version:       opts.Version,
		preload:       opts.Preload,
		log:           logger,
		state:         Uninstalled,
		revalidations: make(chan struct{}, maxRevalidations),
	}
}

// RoundTrip implements the http.RoundTripper interface.
// It is the main entry point for the interception layer.
func (ic *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	if !ic.scope.Eligible(req) {
		// out of scope, pass through untouched
		return ic.transport.RoundTrip(req)
	}

	key := requestKey(req)
	if b, ok, err := ic.store.Get(ic.version, key); err != nil {
		// degrade to network-only for this request
		ic.log.Error().Err(err).Str("key", key).Msg("Could not read from cache")
	} else if ok {
		res, err := snapshot.BytesToResponse(b, req)
		if err == nil {
			ic.log.Trace().Str("key", key).Msg("Cache hit and serving")
			ic.scheduleRevalidation(req, key)
			cs := CacheStatus{}
			cs.Hit()
			res.Header.Add("Cache-Status", cs.String())
			return res, nil
		}
		// corrupted entry: drop it and fall through to the network
		ic.log.Error().Err(err).Str("key", key).Msg("Could not read stored snapshot")
		if err := ic.store.Delete(ic.version, key); err != nil {
			ic.log.Warn().Err(err).Str("key", key).Msg("Could not purge corrupted entry")
		}
	}

	return ic.fetchAndStore(req, key)
}

// fetchAndStore is the MISS path: fetch synchronously, store the snapshot
// if the response is cacheable, and return the fetched response. A network
// failure yields a synthesized 503, never an error.
func (ic *Interceptor) fetchAndStore(req *http.Request, key string) (*http.Response, error) {
	res, err := ic.transport.RoundTrip(req)
	cs := CacheStatus{}
	if err != nil {
		ic.log.Debug().Err(err).Str("key", key).Msg("Network unavailable")
		cs.Forward(FwdReasonMiss)
		cs.Detail("network-unavailable")
		return unavailableResponse(req, cs), nil
	}
	cs.Forward(FwdReasonMiss)
	if ic.storeResponse(key, res) {
		cs.Stored()
	}
	res.Header.Add("Cache-Status", cs.String())
	return res, nil
}

// storeResponse stores a snapshot of the response if it is cacheable.
// It reports whether a snapshot was written. The response body is intact
// when it returns. Store failures are swallowed: the cache degrades to
// network-only rather than failing the request being served.
func (ic *Interceptor) storeResponse(key string, res *http.Response) bool {
	if !ic.cacheable(res) {
		ic.log.Trace().Str("key", key).Int("http-status", res.StatusCode).Msg("Non-cacheable response")
		return false
	}
	b, err := snapshot.ResponseToBytes(res)
	if err != nil {
		ic.log.Error().Err(err).Str("key", key).Msg("Could not snapshot response")
		return false
	}
	if err := ic.store.Put(ic.version, key, b); err != nil {
		ic.log.Error().Err(err).Str("key", key).Msg("Could not write to cache")
		return false
	}
	ic.log.Trace().Str("key", key).Msg("Cache write")
	return true
}

// cacheable checks if the response may be stored: the status must indicate
// success and the response must come from the interceptor's own origin.
func (ic *Interceptor) cacheable(res *http.Response) bool {
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return false
	}
	if res.Request != nil && !ic.scope.SameOrigin(res.Request.URL) {
		return false
	}
	return true
}

// Keys lists the request identities stored in the current namespace,
// oldest first.
func (ic *Interceptor) Keys() ([]string, error) {
	return ic.store.Keys(ic.version)
}

// Purge removes the entry for the given request identity.
// It is a utility method that is not used on the serving path.
func (ic *Interceptor) Purge(key string) {
	if err := ic.store.Delete(ic.version, key); err != nil {
		ic.log.Warn().Err(err).Str("key", key).Msg("Could not purge entry")
	}
}

// Version returns the namespace tag of the current deployment.
func (ic *Interceptor) Version() string {
	return ic.version
}

// Close waits for in-flight revalidations to finish and closes the store.
// The serving path never waits; Close is for shutdown and tests.
func (ic *Interceptor) Close() error {
	ic.wg.Wait()
	return ic.store.Close()
}

// requestKey returns the cache key for a request:
// the method plus the full URL.
func requestKey(r *http.Request) string {
	return r.Method + ":" + r.URL.String()
}

// unavailableResponse synthesizes the fixed 503 returned on the MISS path
// when no response can be obtained from the network.
func unavailableResponse(req *http.Request, cs CacheStatus) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", "text/plain; charset=utf-8")
	header.Add("Cache-Status", cs.String())
	return &http.Response{
		Status:        "503 Service Unavailable",
		StatusCode:    http.StatusServiceUnavailable,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(unavailableBody)),
		ContentLength: int64(len(unavailableBody)),
		Request:       req,
	}
}
