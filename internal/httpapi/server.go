package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/davejenn/juniper/internal/assemble"
	"github.com/davejenn/juniper/internal/config"
	"github.com/davejenn/juniper/internal/observability"
	"github.com/davejenn/juniper/internal/pipeline"
	"github.com/davejenn/juniper/internal/protocol"
)

// Handler is the message pipeline as seen from the transport layer.
type Handler interface {
	HandleMessage(ctx context.Context, sessionID, text string, caps pipeline.Capabilities) (string, error)
}

// ReadyFunc reports whether downstream dependencies are reachable.
type ReadyFunc func(ctx context.Context) error

type Server struct {
	cfg      config.Config
	pipe     Handler
	metrics  *observability.Metrics
	ready    ReadyFunc
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, pipe Handler, metrics *observability.Metrics, ready ReadyFunc, logger zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		pipe:    pipe,
		metrics: metrics,
		ready:   ready,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so other websites cannot drive a user's chat
				// session if the service is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/chat/message", s.handleChatMessage)
	r.Get("/v1/chat/ws", s.handleChatWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type chatRequest struct {
	SessionID      string `json:"session_id"`
	Text           string `json:"text"`
	Premium        bool   `json:"premium"`
	BudgetOverride int    `json:"budget_override"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	Outcome   string `json:"outcome"`
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		req.SessionID = uuid.NewString()
	}

	caps := pipeline.Capabilities{
		BypassRateLimit: req.Premium,
		BudgetOverride:  req.BudgetOverride,
	}
	reply, err := s.pipe.HandleMessage(r.Context(), req.SessionID, req.Text, caps)
	outcome := outcomeOf(err)

	respondJSON(w, statusOf(outcome), chatResponse{
		SessionID: req.SessionID,
		Reply:     reply,
		Outcome:   outcome,
	})
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	caps := pipeline.Capabilities{
		BypassRateLimit: r.URL.Query().Get("premium") == "true",
	}
	if budget, err := strconv.Atoi(r.URL.Query().Get("budget")); err == nil && budget > 0 {
		caps.BudgetOverride = budget
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.ActiveChatSockets.Inc()
		defer s.metrics.ActiveChatSockets.Dec()
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	s.writeWS(conn, protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: sessionID,
		Code:      "session_ready",
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.writeWS(conn, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}

		switch msg := parsed.(type) {
		case protocol.ClientControl:
			if msg.Action == "end" {
				s.writeWS(conn, protocol.SystemEvent{
					Type:      protocol.TypeSystemEvent,
					SessionID: sessionID,
					Code:      "session_ended",
				})
				return
			}
		case protocol.ClientMessage:
			reply, handleErr := s.pipe.HandleMessage(r.Context(), sessionID, msg.Text, caps)
			s.writeWS(conn, protocol.AssistantReply{
				Type:      protocol.TypeAssistantReply,
				SessionID: sessionID,
				Text:      reply,
				Outcome:   outcomeOf(handleErr),
				TSMs:      time.Now().UnixMilli(),
			})
		}
	}
}

func (s *Server) writeWS(conn *websocket.Conn, msg any) {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Debug().Err(err).Msg("websocket write failed")
	}
}

// outcomeOf maps a pipeline result to the wire-level outcome tag. The reply
// is user-safe in every case; err only identifies which terminal outcome
// produced it.
func outcomeOf(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrThrottled):
		return "throttled"
	case errors.Is(err, pipeline.ErrPolicyBlocked):
		return "blocked"
	case errors.Is(err, assemble.ErrInputExceedsBudget):
		return "input_too_large"
	case err != nil:
		return "degraded"
	default:
		return "ok"
	}
}

func statusOf(outcome string) int {
	switch outcome {
	case "throttled":
		return http.StatusTooManyRequests
	case "input_too_large":
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusOK
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
