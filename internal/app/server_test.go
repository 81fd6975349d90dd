package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/riftwild/chat/internal/chat"
	"github.com/riftwild/chat/internal/scheduler"
	"github.com/riftwild/chat/internal/storage"
)

const testJWTSecret = "test-secret"

type wsTestFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsTestAckPayload struct {
	Result struct {
		Status  string `json:"status"`
		Channel string `json:"channel"`
		Count   int    `json:"count"`
	} `json:"result"`
}

// memoryMessageStore is a minimal storage.MessageStore for history tests.
type memoryMessageStore struct {
	saved []storage.MessageRecord
}

func (s *memoryMessageStore) SaveMessage(_ context.Context, record storage.MessageRecord) error {
	s.saved = append(s.saved, record)
	return nil
}

func (s *memoryMessageStore) DeleteMessage(_ context.Context, _ storage.MessageRecord) error {
	return nil
}

func (s *memoryMessageStore) MessagesByChannel(_ context.Context, channelName string, from, to time.Time) ([]storage.MessageRecord, error) {
	var records []storage.MessageRecord
	for _, record := range s.saved {
		if record.ChannelName != channelName {
			continue
		}
		if record.SentAt.Before(from) || record.SentAt.After(to) {
			continue
		}
		records = append(records, record)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SentAt.After(records[j].SentAt)
	})
	return records, nil
}

func (s *memoryMessageStore) MessagesByParticipant(_ context.Context, participantID uuid.UUID, from, to time.Time) ([]storage.MessageRecord, error) {
	var records []storage.MessageRecord
	for _, record := range s.saved {
		if !record.SenderID.Valid || record.SenderID.UUID != participantID {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

var _ storage.MessageStore = (*memoryMessageStore)(nil)

type testGateway struct {
	srv      *httptest.Server
	hub      *Hub
	registry *chat.Registry
	global   *chat.GlobalChannel
	private  *chat.PrivateChannel
	store    *memoryMessageStore
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	hub := NewHub()
	directory := chat.NewDirectory(hub, hub, nil)
	registry, err := chat.NewRegistry(chat.RegistryConfig{Directory: directory})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	store := &memoryMessageStore{}
	recorder := chat.NewRecorder(store, nil, directory, nil, nil)

	global, err := chat.NewGlobalChannel("global-id", "global", directory, nil, recorder, nil)
	if err != nil {
		t.Fatalf("NewGlobalChannel: %v", err)
	}
	if err := registry.SetGlobal(global); err != nil {
		t.Fatalf("SetGlobal: %v", err)
	}

	private, err := chat.NewPrivateChannel("pm-id", "pm", directory, nil, recorder, nil)
	if err != nil {
		t.Fatalf("NewPrivateChannel: %v", err)
	}
	if err := registry.AddChannel(private); err != nil {
		t.Fatalf("AddChannel: %v", err)
	}

	staff, err := chat.NewStaffChannel("staff-id", "staff", directory, "chat.staff", nil, recorder, nil)
	if err != nil {
		t.Fatalf("NewStaffChannel: %v", err)
	}
	if err := registry.AddChannel(staff); err != nil {
		t.Fatalf("AddChannel: %v", err)
	}

	loop := scheduler.NewLoop()
	t.Cleanup(loop.Close)

	server, err := NewServer(Config{HTTPAddr: "127.0.0.1:0", JWTSecret: testJWTSecret}, Engine{
		Registry: registry,
		Recorder: recorder,
		Private:  private,
		Hub:      hub,
		Loop:     loop,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	srv := httptest.NewServer(server.handler())
	t.Cleanup(srv.Close)

	return &testGateway{
		srv:      srv,
		hub:      hub,
		registry: registry,
		global:   global,
		private:  private,
		store:    store,
	}
}

func signToken(t *testing.T, id uuid.UUID, name string, nodes []string) string {
	t.Helper()
	claims := identityClaims{
		Name:  name,
		Nodes: nodes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func dialWS(t *testing.T, gw *testGateway, cookie string) *websocket.Conn {
	t.Helper()
	conn, err := dialWSErr(gw, cookie)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func dialWSErr(gw *testGateway, cookie string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(gw.srv.URL, "http") + "/ws"
	cfg, err := websocket.NewConfig(wsURL, gw.srv.URL)
	if err != nil {
		return nil, err
	}
	if cookie != "" {
		cfg.Header = make(http.Header)
		cfg.Header.Set("Cookie", cookie)
	}
	return websocket.DialConfig(cfg)
}

func dialParticipant(t *testing.T, gw *testGateway, name string, nodes ...string) (*websocket.Conn, uuid.UUID) {
	t.Helper()
	id := uuid.New()
	conn := dialWS(t, gw, tokenCookieName+"="+signToken(t, id, name, nodes))
	// A round trip guarantees the connection is registered before the test
	// drives traffic from other connections.
	writeFrame(t, conn, map[string]any{
		"type":       "chat.nick",
		"request_id": "req-sync",
		"payload":    map[string]any{"nickname": ""},
	})
	readAck(t, conn, "ok")
	return conn, id
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := json.NewEncoder(conn).Encode(frame); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) wsTestFrame {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var got wsTestFrame
	if err := json.NewDecoder(conn).Decode(&got); err != nil {
		t.Fatalf("decode server frame: %v", err)
	}
	return got
}

func readAck(t *testing.T, conn *websocket.Conn, wantStatus string) wsTestAckPayload {
	t.Helper()
	got := readFrame(t, conn)
	if got.Type != frameTypeAck {
		t.Fatalf("frame type = %q payload = %s, want %q", got.Type, string(got.Payload), frameTypeAck)
	}
	var ack wsTestAckPayload
	if err := json.Unmarshal(got.Payload, &ack); err != nil {
		t.Fatalf("decode ack payload: %v", err)
	}
	if ack.Result.Status != wantStatus {
		t.Fatalf("ack status = %q, want %q", ack.Result.Status, wantStatus)
	}
	return ack
}

func readError(t *testing.T, conn *websocket.Conn, wantCode string) {
	t.Helper()
	got := readFrame(t, conn)
	if got.Type != frameTypeError {
		t.Fatalf("frame type = %q payload = %s, want %q", got.Type, string(got.Payload), frameTypeError)
	}
	if !strings.Contains(string(got.Payload), wantCode) {
		t.Fatalf("error payload = %s, expected %q", string(got.Payload), wantCode)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	gw := newTestGateway(t)
	if _, err := dialWSErr(gw, ""); err == nil {
		t.Fatal("expected websocket dial to fail without a token")
	}
}

func TestWebSocketRejectsForgedToken(t *testing.T) {
	gw := newTestGateway(t)
	claims := identityClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := dialWSErr(gw, tokenCookieName+"="+forged); err == nil {
		t.Fatal("expected websocket dial to fail with a forged token")
	}
}

func TestWebSocketRejectsDuplicateConnection(t *testing.T) {
	gw := newTestGateway(t)
	id := uuid.New()
	token := signToken(t, id, "Asha", nil)

	first := dialWS(t, gw, tokenCookieName+"="+token)
	writeFrame(t, first, map[string]any{
		"type":       "chat.nick",
		"request_id": "req-sync",
		"payload":    map[string]any{"nickname": ""},
	})
	readAck(t, first, "ok")

	second := dialWS(t, gw, tokenCookieName+"="+token)
	readError(t, second, "ALREADY_CONNECTED")
}

func TestWebSocketUnknownTypeReturnsError(t *testing.T) {
	gw := newTestGateway(t)
	conn, _ := dialParticipant(t, gw, "Asha")

	writeFrame(t, conn, map[string]any{
		"type":       "chat.unknown",
		"request_id": "req-bad-1",
		"payload":    map[string]any{},
	})
	readError(t, conn, "INVALID_ARGUMENT")
}

func TestWebSocketSendDeliversToGlobal(t *testing.T) {
	gw := newTestGateway(t)
	sender, _ := dialParticipant(t, gw, "Asha")
	receiver, _ := dialParticipant(t, gw, "Bryn")

	writeFrame(t, sender, map[string]any{
		"type":       "chat.send",
		"request_id": "req-send-1",
		"payload":    map[string]any{"body": "hello room"},
	})

	senderCopy := readFrame(t, sender)
	if senderCopy.Type != frameTypeMessage {
		t.Fatalf("sender frame type = %q, want %q", senderCopy.Type, frameTypeMessage)
	}
	readAck(t, sender, "delivered")

	got := readFrame(t, receiver)
	if got.Type != frameTypeMessage {
		t.Fatalf("receiver frame type = %q, want %q", got.Type, frameTypeMessage)
	}
	if !strings.Contains(string(got.Payload), "[global] Asha: hello room") {
		t.Fatalf("message payload = %s, expected rendered line", string(got.Payload))
	}
}

func TestWebSocketSendEmptyBodyRejected(t *testing.T) {
	gw := newTestGateway(t)
	conn, _ := dialParticipant(t, gw, "Asha")

	writeFrame(t, conn, map[string]any{
		"type":       "chat.send",
		"request_id": "req-send-1",
		"payload":    map[string]any{"body": "   "},
	})
	readError(t, conn, "INVALID_ARGUMENT")
}

func TestWebSocketJoinUnknownChannel(t *testing.T) {
	gw := newTestGateway(t)
	conn, _ := dialParticipant(t, gw, "Asha")

	writeFrame(t, conn, map[string]any{
		"type":       "chat.join",
		"request_id": "req-join-1",
		"payload":    map[string]any{"channel": "nope"},
	})
	readError(t, conn, "NOT_FOUND")
}

func TestWebSocketJoinPrivateChannelRejected(t *testing.T) {
	gw := newTestGateway(t)
	conn, _ := dialParticipant(t, gw, "Asha")

	writeFrame(t, conn, map[string]any{
		"type":       "chat.join",
		"request_id": "req-join-1",
		"payload":    map[string]any{"channel": "pm"},
	})
	readError(t, conn, "INVALID_ARGUMENT")
}

func TestWebSocketStaffChannelRequiresNode(t *testing.T) {
	gw := newTestGateway(t)

	player, _ := dialParticipant(t, gw, "Asha")
	writeFrame(t, player, map[string]any{
		"type":       "chat.join",
		"request_id": "req-join-1",
		"payload":    map[string]any{"channel": "staff"},
	})
	readError(t, player, "FORBIDDEN")

	staff, _ := dialParticipant(t, gw, "Bryn", "chat.staff")
	writeFrame(t, staff, map[string]any{
		"type":       "chat.join",
		"request_id": "req-join-2",
		"payload":    map[string]any{"channel": "staff"},
	})
	ack := readAck(t, staff, "joined")
	if ack.Result.Channel != "staff" {
		t.Fatalf("ack channel = %q, want %q", ack.Result.Channel, "staff")
	}
}

func TestWebSocketLeaveGlobalRejected(t *testing.T) {
	gw := newTestGateway(t)
	conn, _ := dialParticipant(t, gw, "Asha")

	writeFrame(t, conn, map[string]any{
		"type":       "chat.leave",
		"request_id": "req-leave-1",
		"payload":    map[string]any{"channel": "global"},
	})
	readError(t, conn, "INVALID_ARGUMENT")
}

func TestWebSocketPrivateMessageAndReply(t *testing.T) {
	gw := newTestGateway(t)
	sender, _ := dialParticipant(t, gw, "Asha")
	receiver, receiverID := dialParticipant(t, gw, "Bryn")

	writeFrame(t, sender, map[string]any{
		"type":       "chat.msg",
		"request_id": "req-msg-1",
		"payload":    map[string]any{"to": receiverID.String(), "body": "psst"},
	})
	readAck(t, sender, "delivered")

	got := readFrame(t, receiver)
	if got.Type != frameTypeMessage {
		t.Fatalf("receiver frame type = %q, want %q", got.Type, frameTypeMessage)
	}
	if !strings.Contains(string(got.Payload), "[pm] Asha: psst") {
		t.Fatalf("message payload = %s, expected rendered direct message", string(got.Payload))
	}

	writeFrame(t, receiver, map[string]any{
		"type":       "chat.reply",
		"request_id": "req-reply-1",
		"payload":    map[string]any{"body": "heard"},
	})
	readAck(t, receiver, "delivered")

	reply := readFrame(t, sender)
	if reply.Type != frameTypeMessage {
		t.Fatalf("sender frame type = %q, want %q", reply.Type, frameTypeMessage)
	}
	if !strings.Contains(string(reply.Payload), "[pm] Bryn: heard") {
		t.Fatalf("reply payload = %s, expected rendered reply", string(reply.Payload))
	}
}

func TestWebSocketReplyWithoutCorrespondentRejected(t *testing.T) {
	gw := newTestGateway(t)
	conn, _ := dialParticipant(t, gw, "Asha")

	writeFrame(t, conn, map[string]any{
		"type":       "chat.reply",
		"request_id": "req-reply-1",
		"payload":    map[string]any{"body": "anyone?"},
	})
	readAck(t, conn, "rejected")
}

func TestWebSocketIgnoreAck(t *testing.T) {
	gw := newTestGateway(t)
	conn, _ := dialParticipant(t, gw, "Asha")
	other := uuid.New()

	writeFrame(t, conn, map[string]any{
		"type":       "chat.ignore",
		"request_id": "req-ignore-1",
		"payload":    map[string]any{"participant_id": other.String()},
	})
	readAck(t, conn, "ok")

	writeFrame(t, conn, map[string]any{
		"type":       "chat.ignore",
		"request_id": "req-ignore-2",
		"payload":    map[string]any{"participant_id": other.String()},
	})
	readAck(t, conn, "unchanged")

	writeFrame(t, conn, map[string]any{
		"type":       "chat.unignore",
		"request_id": "req-ignore-3",
		"payload":    map[string]any{"participant_id": other.String()},
	})
	readAck(t, conn, "ok")
}

func TestWebSocketIgnoreSelfRejected(t *testing.T) {
	gw := newTestGateway(t)
	conn, id := dialParticipant(t, gw, "Asha")

	writeFrame(t, conn, map[string]any{
		"type":       "chat.ignore",
		"request_id": "req-ignore-1",
		"payload":    map[string]any{"participant_id": id.String()},
	})
	readError(t, conn, "INVALID_ARGUMENT")
}

func TestWebSocketHistoryReturnsLoggedMessages(t *testing.T) {
	gw := newTestGateway(t)
	gw.global.Settings().SetLogged(true)

	conn, _ := dialParticipant(t, gw, "Asha")

	for _, body := range []string{"m1", "m2"} {
		writeFrame(t, conn, map[string]any{
			"type":       "chat.send",
			"request_id": "req-send-" + body,
			"payload":    map[string]any{"body": body},
		})
		_ = readFrame(t, conn) // own delivered copy
		readAck(t, conn, "delivered")
	}

	writeFrame(t, conn, map[string]any{
		"type":       "chat.history",
		"request_id": "req-history-1",
		"payload":    map[string]any{"channel": "global", "limit": 10},
	})

	first := readFrame(t, conn)
	second := readFrame(t, conn)
	if first.Type != frameTypeMessage || second.Type != frameTypeMessage {
		t.Fatalf("expected two chat.message frames, got %q and %q", first.Type, second.Type)
	}
	if !strings.Contains(string(first.Payload), "m2") {
		t.Fatalf("first history payload = %s, expected newest first", string(first.Payload))
	}
	ack := readAck(t, conn, "ok")
	if ack.Result.Count != 2 {
		t.Fatalf("history ack count = %d, want 2", ack.Result.Count)
	}
}

func TestWebSocketHistorySenderUsesLiveNickname(t *testing.T) {
	gw := newTestGateway(t)
	gw.global.Settings().SetLogged(true)

	conn, _ := dialParticipant(t, gw, "Asha")

	writeFrame(t, conn, map[string]any{
		"type":       "chat.send",
		"request_id": "req-send-1",
		"payload":    map[string]any{"body": "hello"},
	})
	_ = readFrame(t, conn) // own delivered copy
	readAck(t, conn, "delivered")

	writeFrame(t, conn, map[string]any{
		"type":       "chat.nick",
		"request_id": "req-nick-1",
		"payload":    map[string]any{"nickname": "ash"},
	})
	readAck(t, conn, "ok")

	writeFrame(t, conn, map[string]any{
		"type":       "chat.history",
		"request_id": "req-history-1",
		"payload":    map[string]any{"channel": "global"},
	})
	entry := readFrame(t, conn)
	if entry.Type != frameTypeMessage {
		t.Fatalf("frame type = %q, want %q", entry.Type, frameTypeMessage)
	}
	if !strings.Contains(string(entry.Payload), `"sender":"ash"`) {
		t.Fatalf("history payload = %s, expected the live nickname", string(entry.Payload))
	}
	readAck(t, conn, "ok")
}

func TestWebSocketHistoryUnknownChannelEmpty(t *testing.T) {
	gw := newTestGateway(t)
	conn, _ := dialParticipant(t, gw, "Asha")

	writeFrame(t, conn, map[string]any{
		"type":       "chat.history",
		"request_id": "req-history-1",
		"payload":    map[string]any{"channel": "nope"},
	})
	ack := readAck(t, conn, "ok")
	if ack.Result.Count != 0 {
		t.Fatalf("history ack count = %d, want 0", ack.Result.Count)
	}
}

func TestHealthEndpoint(t *testing.T) {
	gw := newTestGateway(t)
	resp, err := http.Get(gw.srv.URL + "/up")
	if err != nil {
		t.Fatalf("get /up: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}
