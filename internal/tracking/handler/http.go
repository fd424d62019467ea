// Package handler serves the browser tracking API: session bootstrap and beacon intake.
package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"html"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	smdomain "playground-flow/internal/storymapping/domain"
	"playground-flow/internal/tracking/domain"
)

// maxBeaconBytes bounds a /track body.
const maxBeaconBytes = 64 << 10

// StoryLibrary provides the client story definitions served on /connect.
type StoryLibrary interface {
	ClientStories() map[string]smdomain.ClientStory
}

// BeaconRepo persists beacons.
type BeaconRepo interface {
	Create(ctx context.Context, b *domain.Beacon) error
}

// Handler serves /connect and /track.
type Handler struct {
	library StoryLibrary
	beacons BeaconRepo
	apiKey  string
	policy  *bluemonday.Policy
	logger  *zap.Logger
	now     func() time.Time
}

// New returns a tracking handler. A nil beacons repo logs beacons without storing them.
// An empty apiKey accepts every beacon.
func New(library StoryLibrary, beacons BeaconRepo, apiKey string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		library: library,
		beacons: beacons,
		apiKey:  apiKey,
		policy:  bluemonday.StrictPolicy(),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RegisterHTTP mounts the tracking routes on r.
func (h *Handler) RegisterHTTP(r chi.Router) {
	r.Get("/connect", h.handleConnect)
	r.Post("/track", h.handleTrack)
}

// handleConnect returns the session data for the visitor.
// GET /connect?login=
func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	stories := map[string]smdomain.ClientStory{}
	if h.library != nil {
		stories = h.library.ClientStories()
	}
	writeJSON(w, http.StatusOK, domain.SessionData{
		ID:      h.clean(r.URL.Query().Get("login")),
		Library: domain.Library{Stories: stories},
	})
}

// handleTrack stores one beacon.
// POST /track
func (h *Handler) handleTrack(w http.ResponseWriter, r *http.Request) {
	var p domain.Payload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBeaconBytes)).Decode(&p); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if h.apiKey != "" && subtle.ConstantTimeCompare([]byte(p.APIKey), []byte(h.apiKey)) != 1 {
		http.Error(w, "Invalid api key", http.StatusUnauthorized)
		return
	}
	if p.User.Anonymous == "" || p.URL == "" {
		http.Error(w, "user.anonymous and url required", http.StatusBadRequest)
		return
	}

	b := p.Beacon()
	b.ID = uuid.New().String()
	b.IP = clientIP(r)
	b.CreatedAt = h.now()
	h.sanitize(b)

	if h.beacons != nil {
		if err := h.beacons.Create(r.Context(), b); err != nil {
			h.logger.Error("store beacon", zap.String("anonymous_id", b.AnonymousID), zap.Error(err))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
	}
	h.logger.Debug("beacon received",
		zap.String("beacon_id", b.ID),
		zap.String("anonymous_id", b.AnonymousID),
		zap.String("action", b.Action),
		zap.String("url", b.URL))
	writeJSON(w, http.StatusAccepted, map[string]string{"id": b.ID})
}

// sanitize strips markup from every value that came from the visitor's page. Entities are
// decoded again so URLs keep their query separators.
func (h *Handler) sanitize(b *domain.Beacon) {
	for _, f := range []*string{&b.AnonymousID, &b.Login, &b.Action, &b.URL, &b.ObjectID, &b.PropertyName, &b.PropertyValue} {
		*f = h.clean(*f)
	}
}

func (h *Handler) clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(h.policy.Sanitize(s)))
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
