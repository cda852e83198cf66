package commands

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]mappingView{{IPv4Local: "10.0.0.1"}})
	}))
	t.Cleanup(ts.Close)

	debugAddr = strings.TrimPrefix(ts.URL, "http://")

	var views []mappingView
	if err := fetchJSON("/debug/mappings", &views); err != nil {
		t.Fatalf("fetchJSON: %v", err)
	}

	if len(views) != 1 || views[0].IPv4Local != "10.0.0.1" {
		t.Fatalf("unexpected result: %+v", views)
	}
}

func TestFetchJSONNonOKStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(ts.Close)

	debugAddr = strings.TrimPrefix(ts.URL, "http://")

	var views []mappingView
	if err := fetchJSON("/debug/mappings", &views); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}
