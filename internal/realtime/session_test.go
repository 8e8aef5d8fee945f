package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialTestHub(t *testing.T, bus Bus, userID string, groups []string, hello Envelope) *websocket.Conn {
	t.Helper()

	hub := NewHub(bus)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, userID, groups, hello)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestHubSendsHelloFrame(t *testing.T) {
	bus := NewMemoryBus()
	conn := dialTestHub(t, bus, "u1", []string{UserGroup("u1")}, Envelope{
		Type:    TypeConnectionEstablished,
		Message: "Connected to notification service",
	})

	hello := readEnvelope(t, conn)
	require.Equal(t, TypeConnectionEstablished, hello.Type)
	require.Equal(t, "Connected to notification service", hello.Message)
}

func TestSessionPingPongEchoesTimestamp(t *testing.T) {
	bus := NewMemoryBus()
	conn := dialTestHub(t, bus, "u1", []string{UserGroup("u1")}, Envelope{Type: TypeConnectionEstablished})
	readEnvelope(t, conn) // hello

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","timestamp":12345}`)))

	pong := readEnvelope(t, conn)
	require.Equal(t, TypePong, pong.Type)
	require.Equal(t, json.RawMessage("12345"), pong.Timestamp)
}

func TestSessionReportsInvalidJSONAndStaysOpen(t *testing.T) {
	bus := NewMemoryBus()
	conn := dialTestHub(t, bus, "u1", []string{UserGroup("u1")}, Envelope{Type: TypeConnectionEstablished})
	readEnvelope(t, conn) // hello

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	errFrame := readEnvelope(t, conn)
	require.Equal(t, TypeError, errFrame.Type)
	require.Equal(t, "Invalid JSON", errFrame.Message)

	// The connection survives malformed input.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","timestamp":1}`)))
	pong := readEnvelope(t, conn)
	require.Equal(t, TypePong, pong.Type)
}

func TestSessionIgnoresUnknownFrameTypes(t *testing.T) {
	bus := NewMemoryBus()
	conn := dialTestHub(t, bus, "u1", []string{UserGroup("u1")}, Envelope{Type: TypeConnectionEstablished})
	readEnvelope(t, conn) // hello

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"mystery"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","timestamp":7}`)))

	// Only the pong comes back; the unknown frame produced nothing.
	pong := readEnvelope(t, conn)
	require.Equal(t, TypePong, pong.Type)
	require.Equal(t, json.RawMessage("7"), pong.Timestamp)
}

func TestPublishReachesConnectedSession(t *testing.T) {
	bus := NewMemoryBus()
	conn := dialTestHub(t, bus, "u1", []string{UserGroup("u1")}, Envelope{Type: TypeConnectionEstablished})
	readEnvelope(t, conn) // hello

	require.Eventually(t, func() bool {
		return bus.MemberCount(UserGroup("u1")) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), UserGroup("u1"), Envelope{
		Type: TypeNotification,
		Data: map[string]any{"id": "n1"},
	}))

	frame := readEnvelope(t, conn)
	require.Equal(t, TypeNotification, frame.Type)

	data, ok := frame.Data.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "n1", data["id"])
}

func registeredSession(t *testing.T, bus *MemoryBus, group string) *Session {
	t.Helper()

	var session *Session
	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		for s := range bus.groups[group] {
			session = s
		}
		return session != nil
	}, time.Second, 10*time.Millisecond)
	return session
}

func TestSessionEnqueueDuringCloseDoesNotPanic(t *testing.T) {
	bus := NewMemoryBus()
	conn := dialTestHub(t, bus, "u1", []string{UserGroup("u1")}, Envelope{Type: TypeConnectionEstablished})
	readEnvelope(t, conn) // hello

	session := registeredSession(t, bus, UserGroup("u1"))

	// Hammer enqueue from several goroutines while teardown runs; a send on
	// the closed channel would crash the test binary.
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			for j := 0; j < 500; j++ {
				session.enqueue(Envelope{Type: TypePong})
			}
			done <- struct{}{}
		}()
	}

	session.Close()
	for i := 0; i < 4; i++ {
		<-done
	}

	require.False(t, session.enqueue(Envelope{Type: TypePong}))
	require.Zero(t, bus.MemberCount(UserGroup("u1")))

	// Close stays idempotent after the race.
	session.Close()
}

func TestSessionDeregistersOnDisconnect(t *testing.T) {
	bus := NewMemoryBus()
	conn := dialTestHub(t, bus, "u1", []string{UserGroup("u1"), TenantGroup("t1")}, Envelope{Type: TypeConnectionEstablished})
	readEnvelope(t, conn) // hello

	require.Eventually(t, func() bool {
		return bus.MemberCount(UserGroup("u1")) == 1 && bus.MemberCount(TenantGroup("t1")) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return bus.MemberCount(UserGroup("u1")) == 0 && bus.MemberCount(TenantGroup("t1")) == 0
	}, time.Second, 10*time.Millisecond)
}
