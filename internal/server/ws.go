package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/meetscribe/meeting-stream-service/internal/config"
	"github.com/meetscribe/meeting-stream-service/internal/metrics"
	"github.com/meetscribe/meeting-stream-service/internal/protocol"
	"github.com/meetscribe/meeting-stream-service/internal/session"
)

const protocolVersion = "1.0"

// Gateway accepts WebSocket connections, routes the typed message
// envelope to the session manager, and delivers the manager's outbound
// notifications back to each meeting's connection.
type Gateway struct {
	cfg     *config.Config
	logger  *slog.Logger
	manager *session.Manager
	metrics *metrics.Metrics // optional

	server   *http.Server
	upgrader websocket.Upgrader

	conns    map[string]*connection // keyed by connection ID
	meetings map[string]string      // meeting ID -> connection ID
	mu       sync.RWMutex
}

// connection is one WebSocket client. Writes are serialized by writeMu
// because gorilla connections allow a single concurrent writer.
type connection struct {
	id        string
	ws        *websocket.Conn
	meetingID string
	writeMu   sync.Mutex
}

// NewGateway creates the WebSocket gateway
func NewGateway(logger *slog.Logger, cfg *config.Config, manager *session.Manager, m *metrics.Metrics) *Gateway {
	g := &Gateway{
		cfg:     cfg,
		logger:  logger,
		manager: manager,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser extensions and desktop captures connect from
			// arbitrary origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns:    make(map[string]*connection),
		meetings: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWS)

	g.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port),
		Handler: mux,
	}

	return g
}

// Start begins accepting connections
func (g *Gateway) Start() error {
	g.logger.Info("Starting WebSocket gateway",
		slog.String("address", g.server.Addr),
	)

	go func() {
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.logger.Error("WebSocket gateway error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop closes the listener and all live connections
func (g *Gateway) Stop(ctx context.Context) error {
	g.logger.Info("Stopping WebSocket gateway...")

	g.mu.Lock()
	for _, conn := range g.conns {
		conn.ws.Close()
	}
	g.mu.Unlock()

	return g.server.Shutdown(ctx)
}

// handleWS upgrades the connection and runs its read loop
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("WebSocket upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	conn := &connection{
		id: uuid.NewString(),
		ws: ws,
	}

	ws.SetReadLimit(g.cfg.Server.MaxMessageSize)

	g.mu.Lock()
	g.conns[conn.id] = conn
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.RecordConnectionOpened()
	}

	g.logger.Info("Connection opened",
		slog.String("connection_id", conn.id),
		slog.String("remote", r.RemoteAddr),
	)

	g.readLoop(conn)
}

// readLoop processes inbound frames until the connection drops
func (g *Gateway) readLoop(conn *connection) {
	defer g.closeConnection(conn)

	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warn("Connection read error",
					slog.String("connection_id", conn.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		env, err := protocol.Decode(raw)
		if err != nil {
			g.logger.Warn("Malformed message",
				slog.String("connection_id", conn.id),
				slog.String("error", err.Error()),
			)
			if g.metrics != nil {
				g.metrics.RecordMessageError()
			}
			g.sendError(conn, "malformed message", true)
			continue
		}

		if g.metrics != nil {
			g.metrics.RecordMessageReceived(env.Type)
		}

		g.dispatch(conn, env)
	}
}

// dispatch routes one decoded envelope
func (g *Gateway) dispatch(conn *connection, env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeHandshake:
		g.handleHandshake(conn, env)

	case protocol.TypeAudioChunk, protocol.TypeAudioChunkEnhanced:
		g.handleAudioChunk(conn, env)

	case protocol.TypeMeetingEvent:
		g.handleMeetingEvent(conn, env)

	default:
		g.logger.Warn("Unroutable message type",
			slog.String("connection_id", conn.id),
			slog.String("type", env.Type),
		)
		if g.metrics != nil {
			g.metrics.RecordMessageError()
		}
		g.sendError(conn, fmt.Sprintf("unsupported message type %q", env.Type), true)
	}
}

func (g *Gateway) handleHandshake(conn *connection, env *protocol.Envelope) {
	var hs protocol.Handshake
	if err := env.DecodeData(&hs); err != nil {
		g.sendError(conn, "invalid handshake payload", true)
		return
	}

	g.send(conn, protocol.TypeHandshakeAck, protocol.HandshakeAck{
		ProtocolVersion: protocolVersion,
		ServerTime:      time.Now().UTC(),
	})

	s, isNew, err := g.manager.Register(conn.id, &hs)
	if err != nil {
		g.logger.Warn("Registration refused",
			slog.String("connection_id", conn.id),
			slog.String("meeting_id", hs.MeetingID),
			slog.String("error", err.Error()),
		)

		// The client cannot fix these by retrying on this connection.
		recoverable := !errors.Is(err, session.ErrSessionProcessed) &&
			!errors.Is(err, session.ErrMaxReconnections) &&
			!errors.Is(err, session.ErrDuplicateMeeting)
		g.sendError(conn, err.Error(), recoverable)
		return
	}

	g.mu.Lock()
	// A re-handshake for a different meeting must not leave the old
	// meeting routed to this connection.
	if conn.meetingID != "" && conn.meetingID != hs.MeetingID && g.meetings[conn.meetingID] == conn.id {
		delete(g.meetings, conn.meetingID)
	}
	conn.meetingID = hs.MeetingID
	g.meetings[hs.MeetingID] = conn.id
	g.mu.Unlock()

	info := s.GetInfo()
	g.send(conn, protocol.TypeSessionRegistered, protocol.SessionRegistered{
		SessionID:         info.SessionID,
		MeetingID:         info.MeetingID,
		IsNewSession:      isNew,
		ReconnectionCount: info.ReconnectionCount,
	})
}

func (g *Gateway) handleAudioChunk(conn *connection, env *protocol.Envelope) {
	if conn.meetingID == "" {
		g.sendError(conn, "audio before handshake", true)
		return
	}

	var chunk protocol.AudioChunk
	if err := env.DecodeData(&chunk); err != nil {
		g.sendError(conn, "invalid audio payload", true)
		return
	}

	if err := g.manager.AddAudio(conn.meetingID, &chunk); err != nil {
		g.logger.Warn("Audio chunk rejected",
			slog.String("connection_id", conn.id),
			slog.String("meeting_id", conn.meetingID),
			slog.String("error", err.Error()),
		)
		g.sendError(conn, err.Error(), true)
	}
}

func (g *Gateway) handleMeetingEvent(conn *connection, env *protocol.Envelope) {
	if conn.meetingID == "" {
		g.sendError(conn, "meeting event before handshake", true)
		return
	}

	var event protocol.MeetingEvent
	if err := env.DecodeData(&event); err != nil {
		g.sendError(conn, "invalid meeting event payload", true)
		return
	}

	switch event.EventType {
	case protocol.EventMeetingStarted:
		g.logger.Info("Meeting started",
			slog.String("meeting_id", conn.meetingID),
		)

	case protocol.EventMeetingEnded:
		if err := g.manager.EndMeeting(conn.meetingID, event.BufferFlushComplete); err != nil {
			g.sendError(conn, err.Error(), true)
		}

	default:
		g.logger.Debug("Ignoring meeting event",
			slog.String("meeting_id", conn.meetingID),
			slog.String("event_type", event.EventType),
		)
	}
}

// closeConnection tears down connection state and informs the manager
func (g *Gateway) closeConnection(conn *connection) {
	conn.ws.Close()

	g.mu.Lock()
	delete(g.conns, conn.id)
	if conn.meetingID != "" && g.meetings[conn.meetingID] == conn.id {
		delete(g.meetings, conn.meetingID)
	}
	g.mu.Unlock()

	g.manager.Disconnect(conn.id)

	if g.metrics != nil {
		g.metrics.RecordConnectionClosed()
	}

	g.logger.Info("Connection closed",
		slog.String("connection_id", conn.id),
		slog.String("meeting_id", conn.meetingID),
	)
}

// send writes one typed message to a connection
func (g *Gateway) send(conn *connection, msgType string, payload interface{}) {
	raw, err := protocol.Encode(msgType, payload)
	if err != nil {
		g.logger.Error("Failed to encode outbound message",
			slog.String("type", msgType),
			slog.String("error", err.Error()),
		)
		return
	}

	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()

	deadline := time.Now().Add(time.Duration(g.cfg.Server.WriteTimeout) * time.Second)
	conn.ws.SetWriteDeadline(deadline)

	if err := conn.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
		g.logger.Warn("Failed to write message",
			slog.String("connection_id", conn.id),
			slog.String("type", msgType),
			slog.String("error", err.Error()),
		)
		return
	}

	if g.metrics != nil {
		g.metrics.RecordMessageSent(msgType)
	}
}

func (g *Gateway) sendError(conn *connection, message string, recoverable bool) {
	g.send(conn, protocol.TypeError, protocol.ErrorMessage{
		Error:       message,
		Recoverable: recoverable,
	})
}

// connFor returns the live connection for a meeting, if any
func (g *Gateway) connFor(meetingID string) (*connection, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	connID, ok := g.meetings[meetingID]
	if !ok {
		return nil, false
	}

	conn, ok := g.conns[connID]
	return conn, ok
}

// NotifyTranscription delivers a transcription result to the meeting's
// connection. Sessions without a live connection drop notifications;
// the transcript itself survives in the session.
func (g *Gateway) NotifyTranscription(meetingID string, result protocol.TranscriptionResult) {
	if conn, ok := g.connFor(meetingID); ok {
		g.send(conn, protocol.TypeTranscriptionResult, result)
	}
}

// NotifyMeetingUpdate delivers a meeting update
func (g *Gateway) NotifyMeetingUpdate(meetingID string, update protocol.MeetingUpdate) {
	if conn, ok := g.connFor(meetingID); ok {
		g.send(conn, protocol.TypeMeetingUpdate, update)
	}
}

// NotifyProcessingStatus delivers a finalization progress report
func (g *Gateway) NotifyProcessingStatus(meetingID string, status protocol.ProcessingStatus) {
	if conn, ok := g.connFor(meetingID); ok {
		g.send(conn, protocol.TypeProcessingStatus, status)
	}
}

// NotifyProcessingComplete delivers the terminal finalization signal
func (g *Gateway) NotifyProcessingComplete(meetingID string, complete protocol.ProcessingComplete) {
	if conn, ok := g.connFor(meetingID); ok {
		g.send(conn, protocol.TypeProcessingComplete, complete)
	}
}

// GetConnectionCount returns the number of live connections
func (g *Gateway) GetConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}
