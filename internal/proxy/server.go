// Package proxy implements the AbuseIPDB companion service. The AbuseIPDB
// credential never leaves this process: the analysis engine calls the proxy's
// check-ip endpoint and the proxy forwards to AbuseIPDB with the key attached.
package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/threatlens/threatlens/internal/adapter/controller/http/middleware"
)

const (
	defaultUpstreamURL = "https://api.abuseipdb.com/api/v2"
	defaultMaxAgeDays  = 30
	maxAgeDaysLimit    = 365

	// healthProbeIP is a stable, well-known address used to verify that the
	// upstream accepts our credential.
	healthProbeIP = "8.8.8.8"
)

// Server is the companion proxy HTTP service.
type Server struct {
	apiKey      string
	upstreamURL string
	httpClient  *http.Client
	logger      *slog.Logger
}

// Config holds companion proxy configuration.
type Config struct {
	APIKey      string
	UpstreamURL string
	Timeout     time.Duration
	Logger      *slog.Logger
}

// NewServer creates a companion proxy server.
func NewServer(cfg Config) *Server {
	upstream := cfg.UpstreamURL
	if upstream == "" {
		upstream = defaultUpstreamURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		apiKey:      cfg.APIKey,
		upstreamURL: upstream,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// Router builds the proxy's HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Use(httprate.LimitByIP(60, time.Minute))

	r.Get("/health", s.handleHealth)
	r.Get("/api/check-ip", s.handleCheckIP)

	return r
}

type healthResponse struct {
	Status    string `json:"status"`
	Upstream  string `json:"upstream"`
	Timestamp string `json:"timestamp"`
}

// handleHealth reports whether the proxy can serve check-ip requests. It
// probes the upstream with a well-known IP so a revoked key or an AbuseIPDB
// outage is caught here instead of mid-analysis.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Upstream:  "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if s.apiKey == "" {
		resp.Status = "error"
		resp.Upstream = "no API key configured"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	if err := s.probeUpstream(r); err != nil {
		s.logger.Warn("upstream health probe failed", "error", err)
		resp.Status = "error"
		resp.Upstream = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) probeUpstream(r *http.Request) error {
	q := url.Values{}
	q.Set("ipAddress", healthProbeIP)
	q.Set("maxAgeInDays", strconv.Itoa(defaultMaxAgeDays))

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet,
		s.upstreamURL+"/check?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Key", s.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	return nil
}

// upstreamError is AbuseIPDB's error envelope.
type upstreamError struct {
	Errors []struct {
		Detail string `json:"detail"`
		Status int    `json:"status"`
	} `json:"errors"`
}

// handleCheckIP validates the query, forwards it to AbuseIPDB and relays the
// response. Upstream errors are normalized into the proxy's own error shape
// so the engine sees one contract regardless of where the failure happened.
func (s *Server) handleCheckIP(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		writeError(w, http.StatusBadRequest, "ip parameter is required")
		return
	}

	maxAge := defaultMaxAgeDays
	if raw := r.URL.Query().Get("maxAge"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxAgeDaysLimit {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("maxAge must be an integer between 1 and %d", maxAgeDaysLimit))
			return
		}
		maxAge = parsed
	}

	if s.apiKey == "" {
		writeError(w, http.StatusInternalServerError, "API key configuration error")
		return
	}

	q := url.Values{}
	q.Set("ipAddress", ip)
	q.Set("maxAgeInDays", strconv.Itoa(maxAge))
	q.Set("verbose", "")

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet,
		s.upstreamURL+"/check?"+q.Encode(), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build upstream request")
		return
	}
	req.Header.Set("Key", s.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("upstream request failed", "ip", ip, "error", err)
		writeError(w, http.StatusBadGateway, "AbuseIPDB is unreachable")
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to read upstream response")
		return
	}

	if resp.StatusCode != http.StatusOK {
		var ue upstreamError
		detail := fmt.Sprintf("AbuseIPDB returned status %d", resp.StatusCode)
		if json.Unmarshal(body, &ue) == nil && len(ue.Errors) > 0 && ue.Errors[0].Detail != "" {
			detail = ue.Errors[0].Detail
		}
		s.logger.Warn("upstream error", "ip", ip, "status", resp.StatusCode, "detail", detail)
		writeError(w, resp.StatusCode, detail)
		return
	}

	// Relay the upstream envelope as-is; it already has the {"data": ...}
	// shape the engine's client expects.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
