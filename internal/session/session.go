// Package session implements the websocket side of the gateway: the
// connection registry, the handshake/authenticate lifecycle and the
// session-to-session relay backed by the shared session store.
package session

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chassisworks/chassis/internal/metrics"
	"github.com/chassisworks/chassis/internal/scrambler"
	"github.com/chassisworks/chassis/internal/sessionstore"
	"github.com/chassisworks/chassis/pkg/logger"
)

// Server-to-client and client-to-server event names.
const (
	EventHandshake          = "handshake"
	EventHandshakeError     = "handshake.error"
	EventAuthenticate       = "authenticate"
	EventAuthenticateError  = "authenticate.error"
	EventUploadPage         = "upload:page"
	EventSessionToSession   = "session:to:session"
	EventBroadcastToService = "broadcast:to:service"
)

// Error codes carried by error envelopes.
const (
	CodeInvalidStructure = "1100.1002"
	CodeInvalidEvent     = "1100.1003"
	CodeUnauthorized     = "1001.1003"
	CodeTokenExpired     = "1001.1004"
)

// Envelope is the wire format in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Connection is the per-socket state. It is mutated only by its own read
// loop; the write mutex serializes relay writes arriving from other
// connections' goroutines.
type Connection struct {
	ID string

	writeMu sync.Mutex
	socket  *websocket.Conn

	Auth            bool
	UserAgent       string
	IP              string
	ClientTag       string
	DeviceID        string
	ApplicationName string
	Localization    string
	UserID          string
	SessionID       string
	SessionPayload  sessionstore.Record
}

func (c *Connection) send(event string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.socket.WriteJSON(Envelope{Event: event, Payload: raw})
}

// Service owns the in-process connection registry and speaks the websocket
// protocol. The registry is ephemeral; the session store stays authoritative
// for cross-process session validity.
type Service struct {
	mu          sync.RWMutex
	connections map[string]*Connection

	sessions     sessionstore.Store
	scr          *scrambler.Scrambler
	serverTag    string
	serviceNames []string
	upgrader     websocket.Upgrader
	log          *logger.Logger
}

// New builds the websocket session service.
func New(sessions sessionstore.Store, scr *scrambler.Scrambler, serverTag string, serviceNames []string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("session")
	}
	return &Service{
		connections:  make(map[string]*Connection),
		sessions:     sessions,
		scr:          scr,
		serverTag:    serverTag,
		serviceNames: serviceNames,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// ConnectionCount returns the number of registered connections.
func (s *Service) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

func (s *Service) connection(id string) *Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connections[id]
}

func (s *Service) register(c *Connection) {
	s.mu.Lock()
	s.connections[c.ID] = c
	s.mu.Unlock()
	metrics.ConnectionOpened()
}

func (s *Service) deregister(id string) {
	s.mu.Lock()
	_, ok := s.connections[id]
	delete(s.connections, id)
	s.mu.Unlock()
	if ok {
		metrics.ConnectionClosed()
	}
}

// HandleWS upgrades the request and runs the connection's read loop until the
// socket closes or the client tears the page down.
func (s *Service) HandleWS(w http.ResponseWriter, r *http.Request) {
	socket, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &Connection{
		ID:           uuid.NewString(),
		socket:       socket,
		UserAgent:    r.Header.Get("User-Agent"),
		IP:           r.RemoteAddr,
		Localization: r.Header.Get("Accept-Language"),
	}
	s.register(c)
	defer func() {
		s.deregister(c.ID)
		socket.Close()
	}()

	if err := c.send(EventHandshake, map[string]interface{}{
		"serverTag":    s.serverTag,
		"connectionId": c.ID,
		"services":     s.serviceNames,
	}); err != nil {
		s.log.WithError(err).WithField("connection_id", c.ID).Warn("handshake send failed")
		return
	}

	s.readLoop(r.Context(), c)
}

func (s *Service) readLoop(ctx context.Context, c *Connection) {
	for {
		_, raw, err := c.socket.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			metrics.RecordWSEvent("invalid", "rejected")
			s.sendError(c, EventHandshakeError, wsError{
				Code:    CodeInvalidStructure,
				Message: "invalid data format, payload must contain event type and payload",
			})
			continue
		}

		switch env.Event {
		case EventHandshake:
			s.onHandshake(c, env.Payload)
		case EventAuthenticate:
			s.onAuthenticate(ctx, c, env.Payload)
		case EventUploadPage:
			s.onUploadPage(c, env.Payload)
			metrics.RecordWSEvent(env.Event, "ok")
		case EventSessionToSession:
			s.onSessionToSession(ctx, c, env.Payload)
		case EventBroadcastToService:
			metrics.RecordWSEvent(env.Event, "rejected")
			s.log.WithField("connection_id", c.ID).Error("broadcast:to:service is not implemented")
			s.sendError(c, EventHandshakeError, wsError{
				Code:    CodeInvalidEvent,
				Message: `event "broadcast:to:service" is not implemented`,
			})
		default:
			metrics.RecordWSEvent("unknown", "rejected")
			s.sendError(c, EventHandshakeError, wsError{
				Code:    CodeInvalidEvent,
				Message: "invalid event type",
			})
		}
	}
}

func (s *Service) onHandshake(c *Connection, raw json.RawMessage) {
	var payload struct {
		ClientTag       string `json:"clientTag"`
		DeviceID        string `json:"deviceId"`
		ApplicationName string `json:"applicationName"`
		Localization    string `json:"localization"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		metrics.RecordWSEvent(EventHandshake, "rejected")
		s.sendError(c, EventHandshakeError, wsError{
			Code:    CodeInvalidStructure,
			Message: "invalid handshake payload",
		})
		return
	}

	c.Auth = false
	c.ClientTag = payload.ClientTag
	c.DeviceID = payload.DeviceID
	c.ApplicationName = payload.ApplicationName
	if payload.Localization != "" {
		c.Localization = payload.Localization
	}
	metrics.RecordWSEvent(EventHandshake, "ok")
}

func (s *Service) onAuthenticate(ctx context.Context, c *Connection, raw json.RawMessage) {
	var payload struct {
		AccessToken string `json:"accessToken"`
	}
	_ = json.Unmarshal(raw, &payload)

	claims, err := s.scr.Verify(payload.AccessToken)
	if err != nil {
		metrics.RecordWSEvent(EventAuthenticate, "rejected")
		s.sendError(c, EventAuthenticateError, wsError{
			Code:    CodeTokenExpired,
			Message: "jwt token has been expired",
		})
		return
	}

	userID, _ := claims["userId"].(string)
	sessionID, _ := claims["sessionId"].(string)

	record, err := s.sessions.Get(ctx, userID, sessionID)
	if err != nil {
		s.log.WithError(err).WithField("connection_id", c.ID).Warn("session lookup failed")
	}
	if record == nil {
		metrics.RecordWSEvent(EventAuthenticate, "rejected")
		s.sendError(c, EventAuthenticateError, wsError{
			Code:    CodeUnauthorized,
			Message: "user not authorized",
		})
		return
	}

	// Record the live connection id so other processes can route relay
	// messages to this socket.
	if err := s.sessions.SetField(ctx, userID, sessionID, "connectionId", c.ID); err != nil {
		s.log.WithError(err).WithField("connection_id", c.ID).Warn("connection id bind failed")
	}

	c.Auth = true
	c.UserID = userID
	c.SessionID = sessionID
	c.SessionPayload = record

	metrics.RecordWSEvent(EventAuthenticate, "ok")
	if err := c.send(EventAuthenticate, map[string]interface{}{"status": "OK"}); err != nil {
		s.log.WithError(err).WithField("connection_id", c.ID).Warn("authenticate reply failed")
	}
}

func (s *Service) onUploadPage(c *Connection, raw json.RawMessage) {
	var payload struct {
		ConnectionID string `json:"connectionId"`
	}
	_ = json.Unmarshal(raw, &payload)

	id := payload.ConnectionID
	if id == "" {
		id = c.ID
	}
	s.deregister(id)
}

func (s *Service) onSessionToSession(ctx context.Context, c *Connection, raw json.RawMessage) {
	var payload struct {
		UserID  string      `json:"userId"`
		Event   string      `json:"event"`
		Payload interface{} `json:"payload"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		metrics.RecordWSEvent(EventSessionToSession, "rejected")
		s.sendError(c, EventHandshakeError, wsError{
			Code:    CodeInvalidStructure,
			Message: "invalid session:to:session payload",
		})
		return
	}

	// An offline recipient is a no-op, never an error.
	record, err := s.sessions.FindByUser(ctx, payload.UserID)
	if err != nil {
		s.log.WithError(err).WithField("recipient", payload.UserID).Warn("recipient lookup failed")
		return
	}
	if record == nil {
		metrics.RecordWSEvent(EventSessionToSession, "offline")
		return
	}
	connectionID, _ := record["connectionId"].(string)
	target := s.connection(connectionID)
	if target == nil {
		metrics.RecordWSEvent(EventSessionToSession, "offline")
		return
	}

	metrics.RecordWSEvent(EventSessionToSession, "ok")
	if err := target.send(EventSessionToSession, map[string]interface{}{
		"event":   payload.Event,
		"payload": payload.Payload,
	}); err != nil {
		s.log.WithError(err).WithField("recipient", payload.UserID).Warn("relay send failed")
	}
}

func (s *Service) sendError(c *Connection, event string, e wsError) {
	if err := c.send(event, e); err != nil {
		s.log.WithError(err).WithField("connection_id", c.ID).Warn("error envelope send failed")
	}
}
