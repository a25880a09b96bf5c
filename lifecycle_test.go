package interceptcache

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/scansight/intercept-cache/store"
)

func TestInstallPreloadsConfiguredUrls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("shell"))
	})
	mux.HandleFunc("/api/scans", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("scans"))
	})
	origin := httptest.NewServer(mux)
	defer origin.Close()

	originURL, _ := url.Parse(origin.URL)
	ic := New(Options{
		Version: "v1",
		Origin:  *originURL,
		Preload: []string{"/", "/api/scans"},
	})

	ic.Install(context.Background())

	if state := ic.State(); state != Installed {
		t.Fatalf("State is %s", state)
	}
	keys, err := ic.Keys()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("Keys are %v", keys)
	}
	// preloads keep the configured order
	if keys[0] != "GET:"+origin.URL+"/" || keys[1] != "GET:"+origin.URL+"/api/scans" {
		t.Fatalf("Keys are %v", keys)
	}
}

func TestInstallSurvivesFailingPreload(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer origin.Close()

	originURL, _ := url.Parse(origin.URL)
	ic := New(Options{
		Version: "v1",
		Origin:  *originURL,
		// the first entry points to a dead port, the second is fine
		Preload: []string{"http://127.0.0.1:1/down", "/ok"},
	})

	ic.Install(context.Background())

	if state := ic.State(); state != Installed {
		t.Fatalf("State is %s", state)
	}
	keys, err := ic.Keys()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "GET:"+origin.URL+"/ok" {
		t.Fatalf("Keys are %v", keys)
	}
}

func TestActivateDropsStaleNamespaces(t *testing.T) {
	st := store.NewMemStore()
	for _, namespace := range []string{"v1", "v2", "v3"} {
		if err := st.Put(namespace, "GET:http://example.com/", []byte("snapshot")); err != nil {
			t.Fatal(err)
		}
	}

	originURL, _ := url.Parse("http://example.com")
	ic := New(Options{Version: "v3", Origin: *originURL, Store: st})

	ic.Activate()

	if state := ic.State(); state != Active {
		t.Fatalf("State is %s", state)
	}
	namespaces, err := st.Namespaces()
	if err != nil {
		t.Fatal(err)
	}
	if len(namespaces) != 1 || namespaces[0] != "v3" {
		t.Fatalf("Namespaces after activation: %v", namespaces)
	}
}

func TestRunInstallsAndActivates(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("shell"))
	}))
	defer origin.Close()

	st := store.NewMemStore()
	st.Put("v1", "GET:"+origin.URL+"/old", []byte("stale"))

	originURL, _ := url.Parse(origin.URL)
	ic := New(Options{
		Version: "v2",
		Origin:  *originURL,
		Store:   st,
		Preload: []string{"/"},
	})

	ic.Run(context.Background())

	if state := ic.State(); state != Active {
		t.Fatalf("State is %s", state)
	}
	namespaces, _ := st.Namespaces()
	if len(namespaces) != 1 || namespaces[0] != "v2" {
		t.Fatalf("Namespaces are %v", namespaces)
	}
	// the preloaded entry serves without touching the network
	origin.Close()
	client := &http.Client{Transport: ic}
	res, err := client.Get(origin.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	if body, _ := io.ReadAll(res.Body); string(body) != "shell" {
		t.Fatalf("Body is %s", body)
	}
	ic.Close()
}
