package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"rokubridge/internal/device"
	"rokubridge/internal/logger"
)

// Controller is the bridge surface the API and the MQTT mirror drive
type Controller interface {
	PerformActionWithNonce(ctx context.Context, id, nonce, name, input string) (*device.Action, error)
	StartDiscovery(ctx context.Context) bool
	CancelPairing()
	Pairing() bool
	RemoveDevice(id string) bool
}

// Response is the envelope of every API response
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// APIServer provides the HTTP control API
type APIServer struct {
	ctx        context.Context
	registry   *Registry
	controller Controller
	journal    *Journal
	jwt        *JWTService
	router     *mux.Router
	server     *http.Server
	addr       string
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

// NewAPIServer creates the API server. ctx bounds background work started
// through the API, such as discovery sweeps. journal may be nil.
func NewAPIServer(ctx context.Context, listen string, registry *Registry, controller Controller, journal *Journal, jwtService *JWTService) *APIServer {
	s := &APIServer{
		ctx:        ctx,
		registry:   registry,
		controller: controller,
		journal:    journal,
		jwt:        jwtService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.GetLogger("api"),
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(jwtService.RequireAuth)

	api.HandleFunc("/devices", s.handleDeviceList).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}", s.handleDeviceGet).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}", s.handleDeviceRemove).Methods(http.MethodDelete)
	api.HandleFunc("/devices/{id}/actions", s.handleDeviceAction).Methods(http.MethodPost)

	api.HandleFunc("/pairing", s.handlePairingStatus).Methods(http.MethodGet)
	api.HandleFunc("/pairing", s.handlePairingStart).Methods(http.MethodPost)
	api.HandleFunc("/pairing", s.handlePairingCancel).Methods(http.MethodDelete)

	api.HandleFunc("/actions", s.handleActionJournal).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	s.router = router
	s.server = &http.Server{
		Addr:              listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests
func (s *APIServer) Handler() http.Handler {
	return s.router
}

// Start binds the listen address and serves in the background
func (s *APIServer) Start() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}

	s.addr = listener.Addr().String()
	s.logger.Info().
		Str("address", s.addr).
		Msg("Starting control API server")

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Control API server error")
		}
	}()

	return nil
}

// Addr returns the bound address once started
func (s *APIServer) Addr() string {
	return s.addr
}

// Stop shuts the server down gracefully
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping control API server")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendSuccess(w, "Bridge is healthy", map[string]interface{}{
		"status":       "healthy",
		"device_count": len(s.registry.Devices()),
		"pairing":      s.controller.Pairing(),
	})
}

func (s *APIServer) handleDeviceList(w http.ResponseWriter, r *http.Request) {
	devices := s.registry.Devices()
	s.sendSuccess(w, "Device list retrieved successfully", map[string]interface{}{
		"devices": devices,
		"count":   len(devices),
	})
}

func (s *APIServer) handleDeviceGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	desc, ok := s.registry.Device(id)
	if !ok {
		s.sendError(w, http.StatusNotFound, "Device not found", nil)
		return
	}

	s.sendSuccess(w, "Device retrieved successfully", desc)
}

func (s *APIServer) handleDeviceRemove(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	removed := s.controller.RemoveDevice(id)
	s.sendSuccess(w, "Device removed", map[string]interface{}{
		"device_id": id,
		"removed":   removed,
	})
}

func (s *APIServer) handleDeviceAction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req device.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid JSON format", err)
		return
	}
	if req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "Action name is required", nil)
		return
	}

	action, err := s.controller.PerformActionWithNonce(r.Context(), id, req.Nonce, req.Name, req.Input)
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		s.sendError(w, http.StatusNotFound, "Device not found", nil)
		return
	case errors.Is(err, device.ErrInvalidNonce):
		s.sendError(w, http.StatusBadRequest, "Invalid nonce format", nil)
		return
	case err != nil:
		s.sendError(w, http.StatusInternalServerError, "Failed to perform action", err)
		return
	}

	s.logger.Info().
		Str("device_id", id).
		Str("action", req.Name).
		Str("status", string(action.Status)).
		Msg("Action performed")

	s.sendJSON(w, http.StatusOK, Response{
		Success: action.Status == device.ActionSucceeded,
		Message: "Action " + string(action.Status),
		Data:    device.NewActionResponse(action),
		Error:   action.Error,
	})
}

func (s *APIServer) handlePairingStatus(w http.ResponseWriter, r *http.Request) {
	s.sendSuccess(w, "Pairing status", map[string]interface{}{
		"pairing": s.controller.Pairing(),
	})
}

func (s *APIServer) handlePairingStart(w http.ResponseWriter, r *http.Request) {
	started := s.controller.StartDiscovery(s.ctx)

	message := "Discovery started"
	if !started {
		message = "Discovery already running"
	}

	s.sendSuccess(w, message, map[string]interface{}{
		"started": started,
		"pairing": s.controller.Pairing(),
	})
}

func (s *APIServer) handlePairingCancel(w http.ResponseWriter, r *http.Request) {
	s.controller.CancelPairing()
	s.sendSuccess(w, "Discovery cancelled", map[string]interface{}{
		"pairing": s.controller.Pairing(),
	})
}

func (s *APIServer) handleActionJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Action journal is disabled", nil)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.sendError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}

	entries, err := s.journal.Recent(r.URL.Query().Get("device_id"), limit)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to read action journal", err)
		return
	}

	s.sendSuccess(w, "Action journal retrieved successfully", map[string]interface{}{
		"actions": entries,
		"count":   len(entries),
	})
}

// handleEvents streams registry events to a WebSocket client
func (s *APIServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("Failed to upgrade to WebSocket")
		return
	}
	defer conn.Close()

	clientAddr := conn.RemoteAddr().String()
	s.logger.Info().
		Str("client_addr", clientAddr).
		Msg("Event stream connected")

	events := make(chan Event, 64)
	unsubscribe := s.registry.Subscribe(func(event Event) {
		select {
		case events <- event:
		default:
			s.logger.Warn().
				Str("client_addr", clientAddr).
				Str("type", event.Type).
				Msg("Event stream client too slow, dropping event")
		}
	})
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.readUntilClosed(conn, cancel)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().
				Str("client_addr", clientAddr).
				Msg("Event stream disconnected")
			return
		case <-s.ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "bridge shutting down"))
			return
		case event := <-events:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Debug().
					Str("client_addr", clientAddr).
					Err(err).
					Msg("Failed to write event")
				return
			}
		}
	}
}

// readUntilClosed discards client messages and cancels once the peer goes away
func (s *APIServer) readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Msg("Event stream closed unexpectedly")
			}
			return
		}
	}
}

func (s *APIServer) sendSuccess(w http.ResponseWriter, message string, data interface{}) {
	s.sendJSON(w, http.StatusOK, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func (s *APIServer) sendError(w http.ResponseWriter, statusCode int, message string, err error) {
	if err != nil {
		s.logger.Error().Err(err).Str("message", message).Msg("API error")
	} else {
		s.logger.Warn().Str("message", message).Msg("API client error")
	}
	writeError(w, statusCode, message, err)
}

func (s *APIServer) sendJSON(w http.ResponseWriter, statusCode int, response Response) {
	writeJSON(w, statusCode, response)
}

func writeError(w http.ResponseWriter, statusCode int, message string, err error) {
	response := Response{
		Success: false,
		Message: message,
	}
	if err != nil {
		response.Error = err.Error()
	}
	writeJSON(w, statusCode, response)
}

func writeJSON(w http.ResponseWriter, statusCode int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}
