package realtime

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/coursegen/internal/platform/logger"
)

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubOrderingAndReconnect(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	channel := uuid.New().String()

	clientA := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientA, channel)

	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventJobCreated})
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventJobProgress})
	hub.Broadcast(SSEMessage{Channel: "other", Event: SSEEventJobFailed})

	require.Equal(t, SSEEventJobCreated, recvMessage(t, clientA.Outbound, time.Second).Event)
	require.Equal(t, SSEEventJobProgress, recvMessage(t, clientA.Outbound, time.Second).Event)

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	_, ok := <-clientA.Outbound
	require.False(t, ok)

	clientB := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientB, channel)
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventCourseGenerationDone})
	require.Equal(t, SSEEventCourseGenerationDone, recvMessage(t, clientB.Outbound, time.Second).Event)
}

func TestSSEHubServeWritesBacklogThenLive(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	channel := uuid.New().String()
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, channel)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backlog := []SSEMessage{{Channel: channel, Event: SSEEventCourseCreated}}
		hub.Serve(w, r, client, backlog)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "event: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "event: "))
			}
		}
	}

	require.Equal(t, string(SSEEventCourseCreated), readEvent())
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventCourseModuleUnlocked})
	require.Equal(t, string(SSEEventCourseModuleUnlocked), readEvent())
	hub.CloseClient(client)
}
