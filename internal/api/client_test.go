package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/assert/v2"

	"github.com/clk-66/spectrus-realtime/internal/chat"
)

type capturedRequest struct {
	query   map[string]string
	headers http.Header
	body    map[string]any
}

func newTestBackend(t *testing.T, captured chan<- capturedRequest) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	capture := func(req *http.Request) {
		var body map[string]any
		json.NewDecoder(req.Body).Decode(&body) //nolint:errcheck
		captured <- capturedRequest{
			query: map[string]string{
				"api_key":       req.URL.Query().Get("api_key"),
				"connection_id": req.URL.Query().Get("connection_id"),
			},
			headers: req.Header.Clone(),
			body:    body,
		}
	}
	r.Post("/channels", func(w http.ResponseWriter, req *http.Request) {
		capture(req)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"channels":[{"channel":{"cid":"messaging:general","id":"general","type":"messaging","name":"General"},"watcher_count":2}],"duration":"1ms"}`)) //nolint:errcheck
	})
	r.Post("/channels/{type}/{id}/stop-watching", func(w http.ResponseWriter, req *http.Request) {
		capture(req)
		if chi.URLParam(req, "id") == "missing" {
			http.Error(w, `{"message":"channel not found"}`, http.StatusNotFound)
			return
		}
		w.Write([]byte(`{}`)) //nolint:errcheck
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func testCredentials() Credentials {
	return Credentials{
		APIKey:       "key123",
		Token:        func() string { return "tok" },
		ConnectionID: func() string { return "conn-1" },
	}
}

func TestQueryChannels(t *testing.T) {
	captured := make(chan capturedRequest, 1)
	srv := newTestBackend(t, captured)
	c := NewClient(srv.URL, testCredentials())

	general := chat.ChannelID{Type: "messaging", ID: "general"}
	random := chat.ChannelID{Type: "messaging", ID: "random"}
	resp, err := c.QueryChannels(context.Background(), WatchQuery([]chat.ChannelID{general, random}))
	assert.Equal(t, err, nil)
	assert.Equal(t, len(resp.Channels), 1)
	assert.Equal(t, resp.Channels[0].Channel.CID, general)
	assert.Equal(t, resp.Channels[0].WatcherCount, 2)

	req := <-captured
	assert.Equal(t, req.query["api_key"], "key123")
	assert.Equal(t, req.query["connection_id"], "conn-1")
	assert.Equal(t, req.headers.Get("Authorization"), "tok")
	assert.Equal(t, req.headers.Get("Stream-Auth-Type"), "jwt")
	assert.NotEqual(t, req.headers.Get("X-Client-Request-Id"), "")

	assert.Equal(t, req.body["watch"], true)
	assert.Equal(t, req.body["state"], true)
	assert.Equal(t, req.body["limit"], float64(2))
	assert.Equal(t, req.body["message_limit"], float64(1))
	assert.Equal(t, req.body["connection_id"], "conn-1")
	filter := req.body["filter_conditions"].(map[string]any)["cid"].(map[string]any)
	assert.Equal(t, filter["$in"], []any{"messaging:general", "messaging:random"})
}

func TestStopWatching(t *testing.T) {
	captured := make(chan capturedRequest, 2)
	srv := newTestBackend(t, captured)
	c := NewClient(srv.URL, testCredentials())

	err := c.StopWatching(context.Background(), chat.ChannelID{Type: "messaging", ID: "general"})
	assert.Equal(t, err, nil)
	req := <-captured
	assert.Equal(t, req.body["connection_id"], "conn-1")

	err = c.StopWatching(context.Background(), chat.ChannelID{Type: "messaging", ID: "missing"})
	var statusErr *StatusError
	assert.Equal(t, errors.As(err, &statusErr), true)
	assert.Equal(t, statusErr.Code, http.StatusNotFound)
	assert.Equal(t, statusErr.Path, "/channels/messaging/missing/stop-watching")
	<-captured
}

func TestRequestsWaitForGate(t *testing.T) {
	captured := make(chan capturedRequest, 1)
	srv := newTestBackend(t, captured)
	c := NewClient(srv.URL, testCredentials())

	c.Gate().Hold()
	assert.Equal(t, c.Gate().Held(), true)

	done := make(chan error, 1)
	go func() {
		_, err := c.QueryChannels(context.Background(), WatchQuery([]chat.ChannelID{{Type: "messaging", ID: "general"}}))
		done <- err
	}()

	select {
	case <-captured:
		t.Fatal("request sent while the gate was held")
	case <-time.After(50 * time.Millisecond):
	}

	c.Gate().Release()
	assert.Equal(t, <-done, nil)
	<-captured
	assert.Equal(t, c.Gate().Held(), false)
}

func TestGateWaitHonoursContext(t *testing.T) {
	g := NewGate()
	assert.Equal(t, g.Wait(context.Background()), nil)

	g.Hold()
	g.Hold()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Equal(t, errors.Is(g.Wait(ctx), context.DeadlineExceeded), true)

	g.Release()
	g.Release()
	assert.Equal(t, g.Wait(context.Background()), nil)
}
