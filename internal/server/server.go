package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ObiAU/newscurator/internal/logging"
	"github.com/ObiAU/newscurator/internal/models"
	"github.com/ObiAU/newscurator/internal/ratelimit"
)

const maxBodyBytes = 1 << 20

// Conversation answers one chat request given the prior turns.
type Conversation interface {
	Converse(ctx context.Context, turns []models.ChatTurn) (models.Reply, error)
}

// FeedAggregator builds a feed for a set of topics.
type FeedAggregator interface {
	Aggregate(ctx context.Context, topics []models.Topic) []models.Article
}

// Options configures a Server. Chat and Feed are left nil when their
// upstream API key is missing, and the matching routes answer 500.
type Options struct {
	Chat           Conversation
	Feed           FeedAggregator
	Limiter        ratelimit.Store
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

type Server struct {
	chat    Conversation
	feed    FeedAggregator
	limiter ratelimit.Store
	timeout time.Duration
	logger  *slog.Logger
}

func New(opts Options) *Server {
	return &Server{
		chat:    opts.Chat,
		feed:    opts.Feed,
		limiter: opts.Limiter,
		timeout: opts.RequestTimeout,
		logger:  logging.OrDiscard(opts.Logger),
	}
}

// Routes returns the bare API mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.health)
	mux.HandleFunc("/stats", s.stats)
	mux.Handle("/api/chat", s.withRateLimit(http.HandlerFunc(s.handleChat)))
	mux.Handle("/api/refresh", s.withRateLimit(http.HandlerFunc(s.handleRefresh)))
	return mux
}

// Handler wraps Routes with request logging and CORS.
func (s *Server) Handler() http.Handler {
	return withLogging(s.logger, withCORS(s.Routes()))
}

type chatRequest struct {
	Messages []models.ChatTurn `json:"messages"`
}

type refreshRequest struct {
	Topics []models.Topic `json:"topics"`
}

type refreshResponse struct {
	Success  bool             `json:"success"`
	Articles []models.Article `json:"articles"`
	Message  string           `json:"message"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"chat_enabled": s.chat != nil,
		"feed_enabled": s.feed != nil,
	}
	if reporter, ok := s.limiter.(ratelimit.StatsReporter); ok {
		stats["rate_limit"] = reporter.Stats()
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.chat == nil {
		s.writeError(w, http.StatusInternalServerError, "LLM_API_KEY is not configured")
		return
	}

	var payload chatRequest
	if err := s.decode(w, r, &payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if len(payload.Messages) == 0 {
		s.writeError(w, http.StatusBadRequest, "messages are required")
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	reply, err := s.chat.Converse(ctx, payload.Messages)
	if err != nil {
		s.logger.Error("chat failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Chat failed: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var payload refreshRequest
	if err := s.decode(w, r, &payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if len(payload.Topics) == 0 {
		s.writeJSON(w, http.StatusOK, refreshResponse{
			Success:  false,
			Articles: []models.Article{},
			Message:  "No topics provided",
		})
		return
	}
	if s.feed == nil {
		s.writeError(w, http.StatusInternalServerError, "EXA_API_KEY is not configured")
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	articles := s.feed.Aggregate(ctx, payload.Topics)
	if err := ctx.Err(); errors.Is(err, context.DeadlineExceeded) {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Refresh failed: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, refreshResponse{
		Success:  true,
		Articles: articles,
		Message:  fmt.Sprintf("Found %d articles", len(articles)),
	})
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.timeout)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, target any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(target)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("write response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
