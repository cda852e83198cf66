// Package debugsrv serves a small, read-only HTTP+JSON introspection
// surface over the mapping table and ARP cache, plus the Prometheus
// exposition endpoint.
package debugsrv

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nyantec/nyat64/internal/xlate"
)

// Server hosts the debug/metrics HTTP surface.
type Server struct {
	http *http.Server
	log  *slog.Logger
}

// Deps collects the read-only state the debug surface introspects.
type Deps struct {
	Table    xlate.TableSource
	ARP      *xlate.ARPCache
	Registry http.Handler // typically promhttp.HandlerFor(reg, ...)
	Log      *slog.Logger
}

// New builds a Server listening on addr. Call ListenAndServe to serve.
func New(addr string, deps Deps) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/mappings", mappingsHandler(deps.Table))
	mux.HandleFunc("/debug/arp", arpHandler(deps.ARP))

	if deps.Registry != nil {
		mux.Handle("/metrics", deps.Registry)
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}

	var handler http.Handler = mux
	handler = recoveryMiddleware(deps.Log, handler)
	handler = loggingMiddleware(deps.Log, handler)

	return &Server{
		http: &http.Server{Addr: addr, Handler: handler},
		log:  deps.Log,
	}
}

// Handler returns the server's root http.Handler, for use with
// httptest.NewServer in tests or for embedding into a larger mux.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe serves until the listener errors or is shut down; it
// always returns a non-nil error, matching http.Server's contract.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Shutdown stops the server at once via http.Server.Close: listeners and
// open connections are closed without waiting for in-flight requests.
func (s *Server) Shutdown() error {
	return s.http.Close()
}

// -------------------------------------------------------------------------
// Handlers
// -------------------------------------------------------------------------

// mappingView is the JSON representation of one mapping table entry.
type mappingView struct {
	IPv4Local   string `json:"ipv4_local"`
	IPv4Remote  string `json:"ipv4_remote"`
	IPv6Local   string `json:"ipv6_local"`
	IPv6Remote  string `json:"ipv6_remote"`
	IPv4Gateway string `json:"ipv4_gateway,omitempty"`
}

func mappingsHandler(table xlate.TableSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mappings := table.Mappings()
		views := make([]mappingView, 0, len(mappings))

		for _, m := range mappings {
			v := mappingView{
				IPv4Local:  m.IPv4Local.String(),
				IPv4Remote: m.IPv4Remote.String(),
				IPv6Local:  m.IPv6Local.String(),
				IPv6Remote: m.IPv6Remote.String(),
			}
			if m.IPv4GW.IsValid() {
				v.IPv4Gateway = m.IPv4GW.String()
			}
			views = append(views, v)
		}

		writeJSON(w, http.StatusOK, views)
	}
}

// arpEntryView is the JSON representation of one live ARP cache entry.
type arpEntryView struct {
	Addr          string `json:"addr"`
	MAC           string `json:"mac"`
	RemainSeconds int    `json:"remain_seconds"`
}

func arpHandler(cache *xlate.ARPCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := cache.Snapshot()
		views := make([]arpEntryView, 0, len(entries))

		for _, e := range entries {
			views = append(views, arpEntryView{
				Addr:          e.Addr.String(),
				MAC:           e.MAC,
				RemainSeconds: int(e.RemainTTL.Seconds()),
			})
		}

		writeJSON(w, http.StatusOK, views)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
