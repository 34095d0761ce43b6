package sync

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishToTCPClient(t *testing.T) {
	hub := NewHub()
	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()
	hub.Add(serverSide)

	due := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	go hub.Publish(LoanEvent{Type: LoanBorrowed, RecordID: 7, BookID: 3, DueDate: due})

	_ = clientSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(clientSide).ReadString('\n')
	require.NoError(t, err)

	var got LoanEvent
	require.NoError(t, json.Unmarshal([]byte(line), &got))
	assert.Equal(t, LoanBorrowed, got.Type)
	assert.Equal(t, int64(7), got.RecordID)
	assert.NotContains(t, line, "user_id", "the public feed names no member")
	assert.True(t, due.Equal(got.DueDate))
	assert.False(t, got.At.IsZero(), "publish stamps the event time")
}

func TestHub_DropsBrokenTCPClient(t *testing.T) {
	hub := NewHub()
	serverSide, clientSide := net.Pipe()
	hub.Add(serverSide)
	require.NoError(t, clientSide.Close())

	hub.Publish(LoanEvent{Type: LoanReturned})

	assert.Equal(t, 0, hub.Stats().TCPClients)
}

func TestWSHandler_ReceivesEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	r := gin.New()
	r.GET("/ws", WSHandler(hub, nil))
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	_, welcome, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(welcome), "welcome")

	require.Eventually(t, func() bool { return hub.Stats().WSClients == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(LoanEvent{Type: LoanExtended, RecordID: 9})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got LoanEvent
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, LoanExtended, got.Type)
	assert.Equal(t, int64(9), got.RecordID)
}

func dialWS(t *testing.T, allowed []string, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", WSHandler(NewHub(), allowed))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	var header http.Header
	if origin != "" {
		header = http.Header{"Origin": {origin}}
	}
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", header)
}

func TestWSHandler_OriginAllowList(t *testing.T) {
	allowed := []string{"https://desk.example.org/", "http://localhost:5173"}

	cases := []struct {
		name   string
		list   []string
		origin string
		ok     bool
	}{
		{"listed origin", allowed, "https://desk.example.org", true},
		{"listed origin any case", allowed, "HTTP://LOCALHOST:5173", true},
		{"unlisted origin", allowed, "https://evil.example.com", false},
		{"no origin header", allowed, "", true},
		{"wildcard", []string{"*"}, "https://anywhere.example.com", true},
		{"empty list is same-origin only", nil, "https://desk.example.org", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn, resp, err := dialWS(t, tc.list, tc.origin)
			if !tc.ok {
				require.Error(t, err)
				require.NotNil(t, resp)
				assert.Equal(t, http.StatusForbidden, resp.StatusCode)
				return
			}
			require.NoError(t, err)
			defer conn.Close()
			_, welcome, err := conn.ReadMessage()
			require.NoError(t, err)
			assert.Contains(t, string(welcome), "welcome")
		})
	}
}
