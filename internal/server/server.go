package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dukerupert/choreweek/internal/chore"
	"github.com/dukerupert/choreweek/internal/docstore"
	"github.com/dukerupert/choreweek/internal/handler"
	"github.com/dukerupert/choreweek/internal/household"
	"github.com/dukerupert/choreweek/internal/middleware"
	ws "github.com/dukerupert/choreweek/internal/websocket"
)

// Proof uploads per actor per minute.
const proofUploadLimit = 10

type Server struct {
	docs        *docstore.SQLite
	hub         *ws.Hub
	householdH  *handler.HouseholdHandler
	weekH       *handler.WeekHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

// New wires the HTTP API over docs. Every committed document change is
// published to websocket clients of the owning household.
func New(docs *docstore.SQLite, chores *chore.Store, loc *time.Location, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	docs.Observe(hub.Publish)

	households := household.NewRepository(docs)

	return &Server{
		docs:        docs,
		hub:         hub,
		householdH:  handler.NewHouseholdHandler(households, logger.With("component", "household")),
		weekH:       handler.NewWeekHandler(chores, households, loc, logger.With("component", "week")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Actor)
	r.Use(middleware.RequestLogger(s.logger.With("component", "http"), "/health"))
	r.Use(chimw.Recoverer)

	r.Get("/health", s.healthHandler)
	r.Get("/ws", ws.HandleWebSocket(s.hub, s.docs))

	r.Route("/api/households/{household}", func(r chi.Router) {
		r.Get("/", s.householdH.Get)
		r.Put("/members/{idx}", s.householdH.SetMember)
		r.Put("/chores", s.householdH.SetChores)
		r.Put("/emails/{idx}", s.householdH.SetEmail)

		r.Get("/weeks/{week}", s.weekH.Get)
		r.Route("/weeks/{week}/chores/{chore}/days/{day}", func(r chi.Router) {
			r.With(middleware.RateLimit(s.rateLimiter, middleware.ActorKey, proofUploadLimit, time.Minute)).
				Put("/proof", s.weekH.UploadProof)
			r.Get("/proof", s.weekH.GetProof)
			r.Delete("/proof", s.weekH.DeleteProof)
			r.Put("/done", s.weekH.SetDone)
		})
	})

	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}
