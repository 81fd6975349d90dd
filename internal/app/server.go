// Package app hosts the chat gateway: an HTTP/WebSocket front end that
// adapts live connections onto the chat core. Each connection is a session
// in the core's sense, the hub answers presence and permission queries, and
// every engine mutation is funneled onto the single delivery goroutine.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/riftwild/chat/internal/chat"
	"github.com/riftwild/chat/internal/platform/timeouts"
	"github.com/riftwild/chat/internal/scheduler"
)

const (
	tokenCookieName = "rw_token"

	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	maxMessageBodyRunes = 2000
	maxNicknameRunes    = 32

	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	defaultHistoryRange = 24 * time.Hour
)

const (
	frameTypeJoin     = "chat.join"
	frameTypeLeave    = "chat.leave"
	frameTypeSend     = "chat.send"
	frameTypeMsg      = "chat.msg"
	frameTypeReply    = "chat.reply"
	frameTypeHistory  = "chat.history"
	frameTypeNick     = "chat.nick"
	frameTypeIgnore   = "chat.ignore"
	frameTypeUnignore = "chat.unignore"
	frameTypeMessage  = "chat.message"
	frameTypeAck      = "chat.ack"
	frameTypeError    = "chat.error"
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ackEnvelope struct {
	Result ackResult `json:"result"`
}

type ackResult struct {
	Status  string `json:"status"`
	Channel string `json:"channel,omitempty"`
	Count   int    `json:"count,omitempty"`
}

type joinPayload struct {
	Channel string `json:"channel"`
}

type sendPayload struct {
	Channel string `json:"channel,omitempty"`
	Body    string `json:"body"`
}

type msgPayload struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type replyPayload struct {
	Body string `json:"body"`
}

type historyPayload struct {
	Channel string `json:"channel"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type nickPayload struct {
	Nickname string `json:"nickname"`
}

type ignorePayload struct {
	ParticipantID string `json:"participant_id"`
}

type messagePayload struct {
	Text string `json:"text"`
}

type historyMessagePayload struct {
	Channel  string `json:"channel"`
	SenderID string `json:"sender_id,omitempty"`
	Sender   string `json:"sender,omitempty"`
	Body     string `json:"body"`
	SentAt   string `json:"sent_at"`
}

// Config defines the inputs for the chat gateway.
type Config struct {
	HTTPAddr          string
	JWTSecret         string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Engine bundles the chat core collaborators the gateway drives.
type Engine struct {
	Registry *chat.Registry
	Recorder *chat.Recorder
	Private  *chat.PrivateChannel
	Hub      *Hub
	Loop     *scheduler.Loop
}

// Server hosts the chat gateway HTTP process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	engine          Engine
	jwtSecret       []byte
}

type identity struct {
	id    uuid.UUID
	name  string
	nodes []string
}

type identityClaims struct {
	Name  string   `json:"name"`
	Nodes []string `json:"nodes,omitempty"`
	jwt.RegisteredClaims
}

type wsIdentityContextKey struct{}

// NewServer builds a configured gateway server.
func NewServer(config Config, engine Engine) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if strings.TrimSpace(config.JWTSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if engine.Registry == nil || engine.Hub == nil || engine.Loop == nil {
		return nil, errors.New("engine registry, hub, and loop are required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	server := &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		engine:          engine,
		jwtSecret:       []byte(config.JWTSecret),
	}
	server.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           server.handler(),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	return server, nil
}

// Run creates and serves a gateway until the context ends.
func Run(ctx context.Context, config Config, engine Engine) error {
	server, err := NewServer(config, engine)
	if err != nil {
		return fmt.Errorf("init chat gateway: %w", err)
	}
	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve chat gateway: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("chat gateway is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("chat gateway listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		s.handleWSConn(conn)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		who, err := s.authenticate(r)
		if err != nil {
			log.Printf("chat: websocket unauthorized for remote=%s path=%q: %v", r.RemoteAddr, r.URL.Path, err)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), wsIdentityContextKey{}, who)
		wsHandler.ServeHTTP(w, r.WithContext(ctx))
	})

	return mux
}

func (s *Server) authenticate(r *http.Request) (identity, error) {
	cookie, err := r.Cookie(tokenCookieName)
	if err != nil {
		return identity{}, errors.New("missing token cookie")
	}

	claims := &identityClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return identity{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return identity{}, errors.New("invalid token")
	}

	subject, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return identity{}, errors.New("token subject is required")
	}
	id, err := uuid.Parse(subject)
	if err != nil {
		return identity{}, fmt.Errorf("parse token subject: %w", err)
	}

	name := strings.TrimSpace(claims.Name)
	if name == "" {
		name = subject
	}
	return identity{id: id, name: name, nodes: claims.Nodes}, nil
}

func (s *Server) handleWSConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	request := conn.Request()
	who, ok := request.Context().Value(wsIdentityContextKey{}).(identity)
	if !ok {
		return
	}

	peer := newWSPeer(json.NewEncoder(conn))
	if !s.engine.Hub.connect(who.id, peer, who.nodes) {
		_ = writeWSError(peer, "", "ALREADY_CONNECTED", "participant already has an open connection")
		return
	}

	// Storage I/O stays off the delivery loop: state is loaded here, applied
	// on-loop, and the disconnect snapshot is persisted back here.
	state := s.engine.Registry.Load(request.Context(), who.id)
	var participant *chat.Participant
	s.engine.Loop.Do(func() {
		participant = s.engine.Registry.Connect(who.id, who.name, state)
	})
	defer func() {
		var snapshot chat.PersistedState
		var live bool
		s.engine.Loop.Do(func() {
			snapshot, live = s.engine.Registry.Disconnect(who.id)
		})
		if live {
			s.engine.Registry.Persist(context.Background(), who.id, snapshot)
		}
		s.engine.Hub.disconnect(who.id)
	}()

	decoder := json.NewDecoder(conn)
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(peer, "", "INVALID_ARGUMENT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(peer, frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			return
		}

		switch frame.Type {
		case frameTypeJoin:
			s.handleJoinFrame(peer, participant, frame)
		case frameTypeLeave:
			s.handleLeaveFrame(peer, participant, frame)
		case frameTypeSend:
			s.handleSendFrame(peer, participant, frame)
		case frameTypeMsg:
			s.handleMsgFrame(peer, participant, frame)
		case frameTypeReply:
			s.handleReplyFrame(peer, participant, frame)
		case frameTypeHistory:
			s.handleHistoryFrame(request.Context(), peer, frame)
		case frameTypeNick:
			s.handleNickFrame(peer, participant, frame)
		case frameTypeIgnore:
			s.handleIgnoreFrame(peer, participant, frame, true)
		case frameTypeUnignore:
			s.handleIgnoreFrame(peer, participant, frame, false)
		default:
			_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type")
		}
	}
}

func (s *Server) handleJoinFrame(peer *wsPeer, participant *chat.Participant, frame wsFrame) {
	var payload joinPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid join payload")
		return
	}
	name := strings.TrimSpace(payload.Channel)
	if name == "" {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "channel is required")
		return
	}

	channel, ok := s.engine.Registry.Channel(name)
	if !ok {
		_ = writeWSError(peer, frame.RequestID, "NOT_FOUND", "unknown channel")
		return
	}
	if _, isPrivate := channel.(*chat.PrivateChannel); isPrivate {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "private channel cannot be joined")
		return
	}

	var allowed bool
	s.engine.Loop.Do(func() {
		if !channel.Enabled() {
			return
		}
		if !channel.Settings().Allows(chat.CapabilityJoin, participant) {
			return
		}
		if !channel.HasAccess(participant) {
			return
		}
		participant.AddChannel(channel)
		participant.SetActiveChannel(channel)
		allowed = true
	})
	if !allowed {
		_ = writeWSError(peer, frame.RequestID, "FORBIDDEN", "channel access denied")
		return
	}
	writeAck(peer, frame.RequestID, ackResult{Status: "joined", Channel: name})
}

func (s *Server) handleLeaveFrame(peer *wsPeer, participant *chat.Participant, frame wsFrame) {
	var payload joinPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid leave payload")
		return
	}
	name := strings.TrimSpace(payload.Channel)

	channel, ok := s.engine.Registry.Channel(name)
	if !ok {
		_ = writeWSError(peer, frame.RequestID, "NOT_FOUND", "unknown channel")
		return
	}
	if channel == s.engine.Registry.Global() {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "global channel cannot be left")
		return
	}

	var allowed, left bool
	s.engine.Loop.Do(func() {
		if !channel.Settings().Allows(chat.CapabilityLeave, participant) {
			return
		}
		allowed = true
		left = participant.RemoveChannel(channel)
		if participant.ActiveChannel() == nil {
			participant.SetActiveChannel(s.engine.Registry.Global())
		}
	})
	if !allowed {
		_ = writeWSError(peer, frame.RequestID, "FORBIDDEN", "channel leave denied")
		return
	}
	if !left {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "channel is not joined")
		return
	}
	writeAck(peer, frame.RequestID, ackResult{Status: "left", Channel: name})
}

func (s *Server) handleSendFrame(peer *wsPeer, participant *chat.Participant, frame wsFrame) {
	var payload sendPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid send payload")
		return
	}
	body, ok := validBody(peer, frame.RequestID, payload.Body)
	if !ok {
		return
	}

	var channel chat.Channel
	if name := strings.TrimSpace(payload.Channel); name != "" {
		named, found := s.engine.Registry.Channel(name)
		if !found {
			_ = writeWSError(peer, frame.RequestID, "NOT_FOUND", "unknown channel")
			return
		}
		channel = named
	}

	var delivered bool
	s.engine.Loop.Do(func() {
		target := channel
		if target == nil {
			target = participant.ActiveChannel()
		}
		if target == nil {
			return
		}
		delivered = target.Send(participant, body)
	})
	if !delivered {
		writeAck(peer, frame.RequestID, ackResult{Status: "rejected"})
		return
	}
	writeAck(peer, frame.RequestID, ackResult{Status: "delivered"})
}

func (s *Server) handleMsgFrame(peer *wsPeer, participant *chat.Participant, frame wsFrame) {
	var payload msgPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid msg payload")
		return
	}
	if s.engine.Private == nil {
		_ = writeWSError(peer, frame.RequestID, "UNAVAILABLE", "private messaging is not configured")
		return
	}
	recipientID, err := uuid.Parse(strings.TrimSpace(payload.To))
	if err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid recipient id")
		return
	}
	body, ok := validBody(peer, frame.RequestID, payload.Body)
	if !ok {
		return
	}

	var delivered bool
	s.engine.Loop.Do(func() {
		recipient, found := s.engine.Registry.Directory().Get(recipientID)
		if !found {
			return
		}
		delivered = s.engine.Private.SendTo(participant, recipient, body)
	})
	if !delivered {
		writeAck(peer, frame.RequestID, ackResult{Status: "rejected"})
		return
	}
	writeAck(peer, frame.RequestID, ackResult{Status: "delivered"})
}

func (s *Server) handleReplyFrame(peer *wsPeer, participant *chat.Participant, frame wsFrame) {
	var payload replyPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid reply payload")
		return
	}
	if s.engine.Private == nil {
		_ = writeWSError(peer, frame.RequestID, "UNAVAILABLE", "private messaging is not configured")
		return
	}
	body, ok := validBody(peer, frame.RequestID, payload.Body)
	if !ok {
		return
	}

	var delivered bool
	s.engine.Loop.Do(func() {
		delivered = s.engine.Private.Send(participant, body)
	})
	if !delivered {
		writeAck(peer, frame.RequestID, ackResult{Status: "rejected"})
		return
	}
	writeAck(peer, frame.RequestID, ackResult{Status: "delivered"})
}

// handleHistoryFrame serves logged messages. Queries run on the connection
// goroutine; reading rehydrated live senders hops onto the delivery loop,
// since their fields are mutated there.
func (s *Server) handleHistoryFrame(ctx context.Context, peer *wsPeer, frame wsFrame) {
	var payload historyPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid history payload")
		return
	}
	if s.engine.Recorder == nil {
		_ = writeWSError(peer, frame.RequestID, "UNAVAILABLE", "message logging is not configured")
		return
	}
	name := strings.TrimSpace(payload.Channel)
	if name == "" {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "channel is required")
		return
	}

	to := time.Now().UTC()
	from := to.Add(-defaultHistoryRange)
	if payload.From != "" {
		parsed, err := time.Parse(time.RFC3339, payload.From)
		if err != nil {
			_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid from timestamp")
			return
		}
		from = parsed
	}
	if payload.To != "" {
		parsed, err := time.Parse(time.RFC3339, payload.To)
		if err != nil {
			_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid to timestamp")
			return
		}
		to = parsed
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	messages, err := s.engine.Recorder.ChannelLogs(ctx, name, from, to)
	if err != nil {
		log.Printf("chat: history query channel=%q: %v", name, err)
		_ = writeWSError(peer, frame.RequestID, "UNAVAILABLE", "history lookup failed")
		return
	}
	if len(messages) > limit {
		messages = messages[:limit]
	}

	senderNames := make([]string, len(messages))
	s.engine.Loop.Do(func() {
		for i := range messages {
			if messages[i].Sender != nil {
				senderNames[i] = messages[i].Sender.Nickname()
			}
		}
	})

	for i, message := range messages {
		entry := historyMessagePayload{
			Channel: message.ChannelName,
			Body:    message.Content,
			SentAt:  message.SentAt.UTC().Format(time.RFC3339),
		}
		if !message.System() {
			entry.SenderID = message.SenderID.String()
			entry.Sender = senderNames[i]
		}
		_ = peer.writeFrame(wsFrame{
			Type:      frameTypeMessage,
			RequestID: frame.RequestID,
			Payload:   mustJSON(entry),
		})
	}
	writeAck(peer, frame.RequestID, ackResult{Status: "ok", Channel: name, Count: len(messages)})
}

func (s *Server) handleNickFrame(peer *wsPeer, participant *chat.Participant, frame wsFrame) {
	var payload nickPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid nick payload")
		return
	}
	nickname := strings.TrimSpace(payload.Nickname)
	if utf8.RuneCountInString(nickname) > maxNicknameRunes {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "nickname must be at most 32 characters")
		return
	}

	s.engine.Loop.Do(func() {
		participant.SetNickname(nickname)
	})
	writeAck(peer, frame.RequestID, ackResult{Status: "ok"})
}

func (s *Server) handleIgnoreFrame(peer *wsPeer, participant *chat.Participant, frame wsFrame, ignore bool) {
	var payload ignorePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid ignore payload")
		return
	}
	targetID, err := uuid.Parse(strings.TrimSpace(payload.ParticipantID))
	if err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid participant id")
		return
	}
	if targetID == participant.ID() {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "cannot ignore yourself")
		return
	}

	var changed bool
	s.engine.Loop.Do(func() {
		if ignore {
			changed = participant.Ignore(targetID)
		} else {
			changed = participant.Unignore(targetID)
		}
	})
	status := "ok"
	if !changed {
		status = "unchanged"
	}
	writeAck(peer, frame.RequestID, ackResult{Status: status})
}

func validBody(peer *wsPeer, requestID, body string) (string, bool) {
	body = strings.TrimSpace(body)
	if body == "" {
		_ = writeWSError(peer, requestID, "INVALID_ARGUMENT", "body is required")
		return "", false
	}
	if utf8.RuneCountInString(body) > maxMessageBodyRunes {
		_ = writeWSError(peer, requestID, "INVALID_ARGUMENT", "body must be at most 2000 characters")
		return "", false
	}
	return body, true
}

func writeAck(peer *wsPeer, requestID string, result ackResult) {
	_ = peer.writeFrame(wsFrame{
		Type:      frameTypeAck,
		RequestID: requestID,
		Payload:   mustJSON(ackEnvelope{Result: result}),
	})
}

func writeWSError(peer *wsPeer, requestID string, code string, message string) error {
	return peer.writeFrame(wsFrame{
		Type:      frameTypeError,
		RequestID: requestID,
		Payload:   mustJSON(wsErrorEnvelope{Error: wsError{Code: code, Message: message}}),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
