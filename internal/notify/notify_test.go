package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"yield-ledger-go/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, server *httptest.Server, userId string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?user_id=" + userId
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversToUser(t *testing.T) {
	hub := NewHub(models.HubConfig{})
	hub.Start()
	defer hub.Stop()

	server := httptest.NewServer(hub)
	defer server.Close()

	alice := dial(t, server, "alice")
	bob := dial(t, server, "bob")

	require.Eventually(t, func() bool {
		return hub.Connections("alice") == 1 && hub.Connections("bob") == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Publish(Event{Type: EventBalanceUpdate, UserId: "alice", Data: map[string]string{"spendable": "10"}})
	hub.Publish(Event{Type: EventSignalGenerated, Data: map[string]string{"code": "ABC123"}})

	var got Event
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, alice.ReadJSON(&got))
	assert.Equal(t, EventBalanceUpdate, got.Type)
	assert.Equal(t, "10", got.Data["spendable"])

	require.NoError(t, alice.ReadJSON(&got))
	assert.Equal(t, EventSignalGenerated, got.Type)

	// bob only sees the broadcast
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, bob.ReadJSON(&got))
	assert.Equal(t, EventSignalGenerated, got.Type)
	assert.Equal(t, "ABC123", got.Data["code"])
}

func TestHubUnregistersClosedConnections(t *testing.T) {
	hub := NewHub(models.HubConfig{})
	hub.Start()
	defer hub.Stop()

	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server, "carol")
	require.Eventually(t, func() bool { return hub.Connections("carol") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Connections("carol") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubRequiresUserId(t *testing.T) {
	hub := NewHub(models.HubConfig{})
	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHubPublishAfterStop(t *testing.T) {
	hub := NewHub(models.HubConfig{})
	hub.Start()
	hub.Stop()
	hub.Stop()

	assert.NotPanics(t, func() { hub.Publish(Event{Type: EventBalanceUpdate, UserId: "x"}) })
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to, subject, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to+"|"+subject)
	return m.err
}

type panickingPublisher struct{}

func (panickingPublisher) Publish(Event) { panic("boom") }

func TestNotifier(t *testing.T) {
	mailer := &recordingMailer{}
	n := NewNotifier(mailer, panickingPublisher{})

	n.Mail("a@example.com", "Deposit received", "body")
	n.Mail("", "ignored", "body")
	n.Wait()

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "a@example.com|Deposit received", mailer.sent[0])

	assert.NotPanics(t, func() { n.Publish(Event{Type: EventBalanceUpdate}) })

	mailer.err = errors.New("smtp down")
	n.Mail("b@example.com", "Withdrawal", "body")
	n.Wait()
	assert.Len(t, mailer.sent, 2)
}

func TestNilNotifier(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() {
		n.Mail("a@example.com", "s", "b")
		n.Publish(Event{Type: EventDepositCompleted})
		n.Wait()
	})
}
