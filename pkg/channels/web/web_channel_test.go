package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernelapi/pkg/api"
	"kernelapi/pkg/monitor"
	"kernelapi/pkg/planner"
)

type fakeExecutor struct{}

func (fakeExecutor) InvokeFunction(ctx context.Context, plugin, function, ask string) (string, error) {
	if plugin == "Broken" {
		return "", errors.New("secret internal detail")
	}
	return plugin + "." + function + "(" + ask + ")", nil
}

func (fakeExecutor) RunPlanner(ctx context.Context, query string, onPlan api.PlanObserver) (string, error) {
	onPlan(&planner.Plan{Goal: query, Steps: []*planner.Step{{Plugin: "FunPlugin", Name: "Joke"}}})
	return "planned " + query + " as " + monitor.RequestID(ctx), nil
}

func (fakeExecutor) RunMemory(ctx context.Context, query string, onPlan api.PlanObserver) (api.Answer, error) {
	onPlan(&planner.Plan{Goal: query})
	return api.Answer{Answer: "remembered " + query, Sources: []api.Source{{Name: "mobs.md", Relevance: 0.8}}}, nil
}

func dial(t *testing.T) (*websocket.Conn, *WebChannel) {
	t.Helper()
	ch := NewWebChannel()
	r := mux.NewRouter()
	require.NoError(t, ch.Start(fakeExecutor{}, r))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, ch
}

func readFrame(t *testing.T, conn *websocket.Conn) api.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f api.Frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func send(t *testing.T, conn *websocket.Conn, req api.ChannelRequest) {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestWebChannel_Planner(t *testing.T) {
	conn, ch := dial(t)
	assert.Equal(t, "web", ch.ID())

	send(t, conn, api.ChannelRequest{ID: "r1", Type: api.RequestPlanner, Query: "cats"})

	plan := readFrame(t, conn)
	assert.Equal(t, api.FramePlan, plan.Type)
	assert.Equal(t, "r1", plan.ID)
	require.NotNil(t, plan.Plan)
	assert.Equal(t, "cats", plan.Plan.Goal)

	answer := readFrame(t, conn)
	assert.Equal(t, api.FrameAnswer, answer.Type)
	require.NotNil(t, answer.Answer)
	assert.Equal(t, "planned cats as r1", answer.Answer.Answer)

	assert.Equal(t, api.FrameDone, readFrame(t, conn).Type)
}

func TestWebChannel_Memory(t *testing.T) {
	conn, _ := dial(t)
	send(t, conn, api.ChannelRequest{Type: api.RequestMemory, Query: "creepers"})

	assert.Equal(t, api.FramePlan, readFrame(t, conn).Type)
	answer := readFrame(t, conn)
	require.NotNil(t, answer.Answer)
	assert.Equal(t, "remembered creepers", answer.Answer.Answer)
	assert.Len(t, answer.Answer.Sources, 1)
	assert.NotEmpty(t, answer.ID, "an id is assigned when the client sends none")
	assert.Equal(t, api.FrameDone, readFrame(t, conn).Type)
}

func TestWebChannel_Invoke(t *testing.T) {
	conn, _ := dial(t)
	send(t, conn, api.ChannelRequest{Type: api.RequestInvoke, Plugin: "FunPlugin", Function: "Joke", Ask: "dogs"})

	answer := readFrame(t, conn)
	assert.Equal(t, api.FrameAnswer, answer.Type)
	assert.Equal(t, "FunPlugin.Joke(dogs)", answer.Answer.Answer)
	assert.Equal(t, api.FrameDone, readFrame(t, conn).Type)
}

func TestWebChannel_PlainTextIsPlannerQuery(t *testing.T) {
	conn, _ := dial(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("tell me a joke")))

	plan := readFrame(t, conn)
	assert.Equal(t, "tell me a joke", plan.Plan.Goal)
}

func TestWebChannel_Errors(t *testing.T) {
	tests := []struct {
		name string
		req  api.ChannelRequest
		want string
	}{
		{name: "unknown type", req: api.ChannelRequest{Type: "chat"}, want: `unknown type "chat"`},
		{name: "missing query", req: api.ChannelRequest{Type: api.RequestMemory}, want: "missing query"},
		{name: "missing function", req: api.ChannelRequest{Type: api.RequestInvoke, Plugin: "FunPlugin"}, want: "needs plugin and function"},
		{name: "executor failure is generic", req: api.ChannelRequest{Type: api.RequestInvoke, Plugin: "Broken", Function: "X"}, want: "request failed"},
	}

	conn, _ := dial(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, conn, tt.req)
			f := readFrame(t, conn)
			assert.Equal(t, api.FrameError, f.Type)
			assert.Contains(t, f.Error, tt.want)
			assert.NotContains(t, f.Error, "secret")
		})
	}
}

func TestWebChannel_StopClosesConnections(t *testing.T) {
	conn, ch := dial(t)

	require.Eventually(t, func() bool { return ch.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, ch.Stop())
	assert.Zero(t, ch.Connections())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func newServer(t *testing.T) (string, *WebChannel) {
	t.Helper()
	ch := NewWebChannel()
	r := mux.NewRouter()
	require.NoError(t, ch.Start(fakeExecutor{}, r))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", ch
}

func TestWebChannel_RefusesAfterStop(t *testing.T) {
	url, ch := newServer(t)
	require.NoError(t, ch.Stop())

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		conn.Close()
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Zero(t, ch.Connections())
}

func TestWebChannel_StopWhileConnecting(t *testing.T) {
	url, ch := newServer(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			conn.ReadMessage()
		}()
	}

	require.NoError(t, ch.Stop())
	wg.Wait()
	assert.Zero(t, ch.Connections())
}
