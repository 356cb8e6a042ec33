package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/studiokit/prodflow/internal/prodflow"
)

type ServerConfig struct {
	// WebhookSecret signs inbound messenger webhooks. Requests without a
	// valid signature are rejected.
	WebhookSecret   string
	RateLimitMax    int
	RateLimitWindow time.Duration
	MaxBodyBytes    int64
}

// Server exposes the webhook receiver and the read-only admin surface over
// the workflow registry and ledger.
type Server struct {
	registry    *prodflow.Registry
	ledger      prodflow.Ledger
	cfg         ServerConfig
	rateLimiter *rateLimiter
	logf        func(format string, v ...any)
}

type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]rateEntry
}

type rateEntry struct {
	count   int
	resetAt time.Time
}

func NewServer(registry *prodflow.Registry, ledger prodflow.Ledger, cfg ServerConfig, logf func(format string, v ...any)) *Server {
	if cfg.RateLimitMax < 0 {
		cfg.RateLimitMax = 0
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	var limiter *rateLimiter
	if cfg.RateLimitMax > 0 {
		limiter = &rateLimiter{
			window:  cfg.RateLimitWindow,
			max:     cfg.RateLimitMax,
			entries: map[string]rateEntry{},
		}
	}
	return &Server{
		registry:    registry,
		ledger:      ledger,
		cfg:         cfg,
		rateLimiter: limiter,
		logf:        logf,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/" && r.Method == http.MethodGet:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "prodflow is running\n")
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case r.URL.Path == "/webhook" && r.Method == http.MethodPost:
		s.handleWebhook(w, r)
	case r.URL.Path == "/dashboard" && r.Method == http.MethodGet:
		s.handleDashboard(w, r)
	case r.URL.Path == "/v1/admin/ledger" && r.Method == http.MethodGet:
		s.handleAdminLedger(w, r)
	case r.URL.Path == "/v1/admin/config" && r.Method == http.MethodGet:
		s.handleAdminConfig(w, r)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

// handleWebhook receives messenger webhook deliveries. The body is only
// logged; group and room identifiers surface here once when the bot is
// invited, and are then copied into the notification configuration.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.rateLimiter != nil && !s.rateLimiter.allow(clientKey(r), time.Now().UTC()) {
		retryAfter := int(s.cfg.RateLimitWindow.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
		return
	}
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	if err := verifyWebhookSignature(s.cfg.WebhookSecret, r.Header.Get("X-Line-Signature"), body); err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}

	var payload struct {
		Events []struct {
			Type   string `json:"type"`
			Source struct {
				Type    string `json:"type"`
				UserID  string `json:"userId"`
				GroupID string `json:"groupId"`
				RoomID  string `json:"roomId"`
			} `json:"source"`
		} `json:"events"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}
	for _, event := range payload.Events {
		switch {
		case event.Source.GroupID != "":
			s.logf("webhook %s from group %s", event.Type, event.Source.GroupID)
		case event.Source.RoomID != "":
			s.logf("webhook %s from room %s", event.Type, event.Source.RoomID)
		case event.Source.UserID != "":
			s.logf("webhook %s from user %s", event.Type, event.Source.UserID)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ledgerEntryView struct {
	ThreadID          string            `json:"threadId"`
	Category          string            `json:"category"`
	Type              string            `json:"type"`
	Ordinal           int               `json:"ordinal"`
	ScheduledPostDate string            `json:"scheduledPostDate,omitempty"`
	Statuses          map[string]string `json:"statuses"`
	UpdateCounts      map[string]int    `json:"updateCounts"`
	CompletedAt       *time.Time        `json:"completedAt,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
}

func (s *Server) handleAdminLedger(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	entries := s.ledger.List(func(entry prodflow.ThreadStatusEntry) bool {
		return category == "" || entry.Category == category
	})
	views := make([]ledgerEntryView, 0, len(entries))
	for _, entry := range entries {
		view := ledgerEntryView{
			ThreadID:          entry.ThreadID,
			Category:          entry.Category,
			Type:              string(entry.Type),
			Ordinal:           entry.Ordinal,
			ScheduledPostDate: entry.ScheduledPostDate,
			Statuses:          map[string]string{},
			UpdateCounts:      map[string]int{},
			CompletedAt:       entry.CompletedAt,
			CreatedAt:         entry.CreatedAt,
		}
		for kind, mark := range entry.Statuses {
			view.Statuses[string(kind)] = string(mark.Value)
			view.UpdateCounts[string(kind)] = mark.UpdateCount
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, struct {
		Category string            `json:"category,omitempty"`
		Count    int               `json:"count"`
		Entries  []ledgerEntryView `json:"entries"`
	}{Category: category, Count: len(views), Entries: views})
}

func (s *Server) handleAdminConfig(w http.ResponseWriter, _ *http.Request) {
	type channelView struct {
		ChannelID string `json:"channelId"`
		Type      string `json:"type"`
	}
	type configView struct {
		Category     string        `json:"category"`
		StoreID      string        `json:"storeId"`
		HasAggregate bool          `json:"hasAggregate"`
		Channels     []channelView `json:"channels"`
	}
	configs := s.registry.Configs()
	views := make([]configView, 0, len(configs))
	for _, cfg := range configs {
		view := configView{
			Category:     cfg.Category,
			StoreID:      cfg.StoreID,
			HasAggregate: cfg.HasAggregate,
		}
		for workflowType, channelID := range cfg.Channels {
			view.Channels = append(view.Channels, channelView{ChannelID: channelID, Type: string(workflowType)})
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, struct {
		Count   int          `json:"count"`
		Configs []configView `json:"configs"`
	}{Count: len(views), Configs: views})
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return nil, false
	}
	return body, true
}

func clientKey(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		if comma := strings.IndexByte(forwarded, ','); comma >= 0 {
			return strings.TrimSpace(forwarded[:comma])
		}
		return forwarded
	}
	host := r.RemoteAddr
	if colon := strings.LastIndexByte(host, ':'); colon >= 0 {
		host = host[:colon]
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
	})
}

func (r *rateLimiter) allow(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || now.After(entry.resetAt) {
		r.entries[key] = rateEntry{
			count:   1,
			resetAt: now.Add(r.window),
		}
		return true
	}
	if entry.count >= r.max {
		return false
	}
	entry.count++
	r.entries[key] = entry
	return true
}
