package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	interceptcache "github.com/scansight/intercept-cache"
	"github.com/scansight/intercept-cache/store"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFilenameFlag string
	portFlag           int
	originFlag         string
	versionTagFlag     string
	storeBackendFlag   string
	storePathFlag      string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to intercept (overrides config)")
	flag.IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	flag.StringVar(&versionTagFlag, "version", "", "Cache namespace version tag (overrides config)")
	flag.StringVar(&storeBackendFlag, "store", "", "Store backend: memory, sqlite or leveldb (overrides config)")
	flag.StringVar(&storePathFlag, "store-path", "", "Store db file (sqlite) or directory (leveldb)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("release", version).Logger()

	config := interceptcache.Config{
		Port:  8080,
		Store: interceptcache.ConfigStore{Backend: "sqlite"},
	}
	if configFilenameFlag != "" {
		var err error
		config, err = interceptcache.GetConfig(configFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not read config")
		}
	}
	if originFlag != "" {
		config.Origin = originFlag
	}
	if portFlag != 0 {
		config.Port = portFlag
	}
	if versionTagFlag != "" {
		config.Version = versionTagFlag
	}
	if storeBackendFlag != "" {
		config.Store.Backend = storeBackendFlag
	}
	if storePathFlag != "" {
		config.Store.Path = storePathFlag
	}

	if config.Origin == "" {
		log.Fatal().Msg("Please specify origin")
	}
	if config.Version == "" {
		log.Fatal().Msg("Please specify cache version tag")
	}

	originURL, err := url.Parse(config.Origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}

	var st store.Store
	switch config.Store.Backend {
	case "memory":
		st = store.NewMemStore()
	case "sqlite":
		filename := config.Store.Path
		if filename == "" {
			filename = "cache.db"
		}
		st = store.NewSQLiteStore(filename)
	case "leveldb":
		path := config.Store.Path
		if path == "" {
			path = "./cache-leveldb"
		}
		st, err = store.NewLevelStore(path)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not open leveldb store")
		}
	default:
		log.Fatal().Msgf("Unsupported store backend: %s", config.Store.Backend)
	}

	ic := interceptcache.New(interceptcache.Options{
		Version: config.Version,
		Origin:  *originURL,
		Store:   st,
		Preload: config.Preload,
		Logger:  &log.Logger,
	})

	// install (preload) and activate (stale namespace sweep) before serving
	ic.Run(context.Background())

	router := chi.NewRouter()
	router.Route("/-/cache", func(r chi.Router) {
		r.Get("/status", statusHandler(ic))
		r.Get("/keys", keysHandler(ic))
		r.Delete("/keys", purgeHandler(ic))
	})
	router.Handle("/*", ic.Handler())

	log.Info().Msgf("Intercepting port %v for %s (cache version '%s')", config.Port, originURL, config.Version)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", config.Port), router); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func statusHandler(ic *interceptcache.Interceptor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := ic.Keys()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{
			"state":   ic.State().String(),
			"version": ic.Version(),
			"entries": len(keys),
		})
	}
}

func keysHandler(ic *interceptcache.Interceptor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := ic.Keys()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{"keys": keys})
	}
}

// purgeHandler removes a single entry. The request identity is passed as
// the `key` query parameter, since identities contain slashes and colons.
func purgeHandler(ic *interceptcache.Interceptor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		if key == "" {
			http.Error(w, "Missing key parameter", http.StatusBadRequest)
			return
		}
		ic.Purge(key)
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Could not write json response")
	}
}
