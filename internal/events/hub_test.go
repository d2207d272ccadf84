package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
	"carbon-scribe/marketplace/marketplace-backend/internal/marketplace"
)

func dialTestHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		c.Set(auth.ContextAddressKey, "buyer-1")
		hub.HandleConnection(c)
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	return conn
}

func TestHubBroadcastsAuditEntries(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	conn := dialTestHub(t, hub)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	projectID := uint64(0)
	hub.PublishAuditEntry(&marketplace.AuditEntry{
		ID:         uuid.New(),
		Seq:        1,
		Kind:       marketplace.AuditPurchase,
		Actor:      "buyer-1",
		ProjectID:  &projectID,
		Quantity:   10,
		AmountPaid: 500,
		Timestamp:  time.Now(),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "purchase", event.Type)

	payload, ok := event.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), payload["seq"])
	assert.Equal(t, "buyer-1", payload["actor"])
}

func TestHubTracksDisconnects(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	conn := dialTestHub(t, hub)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubCloseDisconnectsSubscribers(t *testing.T) {
	hub := NewHub(zap.NewNop())

	conn := dialTestHub(t, hub)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 10*time.Millisecond)

	// the server side closes the connection
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestPublishNeverBlocks(t *testing.T) {
	hub := NewHub(zap.NewNop())
	hub.Close()

	// the run loop is stopped; publishing must still return immediately
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			hub.PublishAuditEntry(&marketplace.AuditEntry{
				ID:        uuid.New(),
				Seq:       uint64(i) + 1,
				Kind:      marketplace.AuditTransfer,
				Timestamp: time.Now(),
			})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PublishAuditEntry blocked")
	}
}

func TestHandleConnectionRejectsPlainHTTP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	router := gin.New()
	router.GET("/ws", hub.HandleConnection)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, hub.Count())
}
