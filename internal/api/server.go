// Package api provides the HTTP gateway. Read-only endpoints (the fast
// path) take a read lock and observe a recent committed state; the webhook
// (the slow path) takes the write lock, so mutations apply strictly in
// arrival order.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/infinitecloud/infinitecloud/internal/bot"
	"github.com/infinitecloud/infinitecloud/internal/config"
	"github.com/infinitecloud/infinitecloud/internal/fs"
	"github.com/infinitecloud/infinitecloud/internal/logging"
	"github.com/infinitecloud/infinitecloud/internal/metrics"
	"github.com/infinitecloud/infinitecloud/internal/session"
	"github.com/infinitecloud/infinitecloud/internal/snapshot"
	"github.com/infinitecloud/infinitecloud/internal/stream"
)

// secretHeader carries the shared webhook secret on every protected request.
const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Messenger delivers interpreter replies back into conversations.
// Implemented by telegram.Client.
type Messenger interface {
	SendMessage(ctx context.Context, chat fs.ChatID, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error
	EditMessageText(ctx context.Context, chat fs.ChatID, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// Server is the HTTP gateway over the in-memory state.
type Server struct {
	cfg       *config.Config
	trees     *fs.Store
	sessions  *session.Store
	builder   *stream.Builder
	interp    *bot.Interpreter
	messenger Messenger
	snapshots snapshot.Store

	// mu renders webhook handling single-threaded: the slow path holds the
	// write lock for the whole update, the fast path reads under the read
	// lock.
	mu sync.RWMutex
}

// NewServer creates the gateway.
func NewServer(
	cfg *config.Config,
	trees *fs.Store,
	sessions *session.Store,
	builder *stream.Builder,
	interp *bot.Interpreter,
	messenger Messenger,
	snapshots snapshot.Store,
) *Server {
	return &Server{
		cfg:       cfg,
		trees:     trees,
		sessions:  sessions,
		builder:   builder,
		interp:    interp,
		messenger: messenger,
		snapshots: snapshots,
	}
}

// Handler returns the HTTP handler with auth, logging and metrics
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Protected endpoints
	protected := http.NewServeMux()
	protected.HandleFunc("GET /v1/list", s.handleList)
	protected.HandleFunc("GET /v1/chunk", s.handleChunk)
	protected.HandleFunc("GET /v1/content", s.handleContent)
	protected.HandleFunc("GET /v1/sessions/count", s.handleSessionsCount)
	protected.HandleFunc("GET /webhook", s.handleWebhookGet)
	protected.HandleFunc("POST /webhook", s.handleWebhook)

	authed := s.authMiddleware(protected)
	mux.Handle("/v1/", authed)
	mux.Handle("/webhook", authed)

	return metrics.Middleware(logging.Middleware(mux))
}

// authMiddleware checks the shared webhook secret. Failures get a 401 with
// an empty body and cause no side effects.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.WebhookSecret)) != 1 {
			metrics.RecordAuthAttempt(false)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		metrics.RecordAuthAttempt(true)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebhookGet preserves the read path's refusal to mutate: the caller
// is told to retry the update via POST.
func (s *Server) handleWebhookGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]bool{"upgrade": true})
}

// handleWebhook is the only mutating route. State is committed and
// persisted under the write lock; the reply is delivered after release, so
// a delivery failure never leaves uncommitted state behind.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.sendError(w, http.StatusBadRequest, "malformed update")
		return
	}

	s.mu.Lock()
	reply, mutated := s.interp.HandleUpdate(r.Context(), &update)
	if mutated {
		s.persistLocked()
	}
	s.mu.Unlock()

	if reply != nil {
		s.deliver(r.Context(), reply)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// persistLocked snapshots the committed state. Callers hold the write lock.
func (s *Server) persistLocked() {
	if err := s.snapshots.Save(snapshot.New(s.trees, s.sessions)); err != nil {
		logging.Error("snapshot persist failed", zap.Error(err))
	}
	metrics.SetActiveSessions(s.sessions.Count())
	metrics.SetFilesystemNodes(s.countNodes())
}

func (s *Server) countNodes() int {
	total := 0
	for _, tree := range s.trees.All() {
		total += tree.Count()
	}
	return total
}

// deliver sends the interpreter's reply. On failure a best-effort notice is
// sent so the user knows to retry.
func (s *Server) deliver(ctx context.Context, reply *bot.Reply) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if reply.CallbackID != "" {
		if err := s.messenger.AnswerCallback(ctx, reply.CallbackID); err != nil {
			logging.Warn("answer callback failed", zap.Error(err))
		}
	}
	if reply.Text == "" {
		return
	}

	var err error
	if reply.EditMessageID != 0 {
		err = s.messenger.EditMessageText(ctx, reply.Chat, reply.EditMessageID, reply.Text, reply.Keyboard)
	} else {
		err = s.messenger.SendMessage(ctx, reply.Chat, reply.Text, reply.Keyboard)
	}
	if err != nil {
		logging.Error("reply delivery failed",
			zap.Int64("chat", int64(reply.Chat)),
			zap.Error(err))
		// A lost prompt must not strand the conversation mid-command.
		s.mu.Lock()
		if sess := s.sessions.Get(reply.Chat); sess != nil && !sess.IsIdle() {
			sess.Reset()
			s.persistLocked()
		}
		s.mu.Unlock()
		if notifyErr := s.messenger.SendMessage(ctx, reply.Chat, bot.DeliveryFailedText, nil); notifyErr != nil {
			logging.Warn("failed-delivery notice not sent", zap.Error(notifyErr))
		}
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	chat, ok := queryChat(r)
	if !ok {
		s.sendError(w, http.StatusBadRequest, "missing or invalid chat parameter")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		path = fs.RootPath
	}

	s.mu.RLock()
	chunk, err := s.builder.ListPage(chat, path, 0, 0)
	s.mu.RUnlock()
	if err != nil {
		s.sendTreeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chunk)
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	chat, ok := queryChat(r)
	if !ok {
		s.sendError(w, http.StatusBadRequest, "missing or invalid chat parameter")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		s.sendError(w, http.StatusBadRequest, "missing path parameter")
		return
	}

	s.mu.RLock()
	chunk, err := s.builder.ContentChunk(r.Context(), chat, path, 0)
	s.mu.RUnlock()
	if err != nil {
		s.sendTreeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chunk)
}

// handleChunk redeems a continuation token for the next listing or content
// chunk.
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		s.sendError(w, http.StatusBadRequest, "missing token parameter")
		return
	}

	s.mu.RLock()
	chunk, err := s.builder.Redeem(r.Context(), token)
	s.mu.RUnlock()
	if err != nil {
		s.sendTreeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chunk)
}

func (s *Server) handleSessionsCount(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	count := s.sessions.Count()
	conversations := s.trees.Len()
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]int{
		"sessions":      count,
		"conversations": conversations,
	})
}

// sendTreeError maps domain errors to HTTP statuses.
func (s *Server) sendTreeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stream.ErrExpired):
		s.sendError(w, http.StatusGone, "token expired")
	case errors.Is(err, fs.ErrNotFound):
		s.sendError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, fs.ErrNotADirectory),
		errors.Is(err, fs.ErrAlreadyExists),
		errors.Is(err, fs.ErrInvalidOperation):
		s.sendError(w, http.StatusBadRequest, err.Error())
	default:
		logging.Error("request failed", zap.Error(err))
		s.sendError(w, http.StatusBadGateway, "upstream fetch failed")
	}
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, ErrorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func queryChat(r *http.Request) (fs.ChatID, bool) {
	raw := r.URL.Query().Get("chat")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return fs.ChatID(id), true
}
