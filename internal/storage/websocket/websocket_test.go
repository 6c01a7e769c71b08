package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drlrcc/torcs-driver/pkg/core"
	"github.com/drlrcc/torcs-driver/pkg/streaming"
)

// testServer upgrades to WebSocket, records received messages, and acks
// start_episode/end_episode unless ack is false.
func testServer(t *testing.T, ack bool) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ml.setSecret(r.URL.Query().Get("secret"))
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)

			if ack && (env.Type == streaming.TypeStartEpisode || env.Type == streaming.TypeEndEpisode) {
				data, _ := json.Marshal(streaming.AckMessage{Type: streaming.TypeAck, For: env.Type})
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))

	return srv, ml
}

type messageLog struct {
	mu       sync.Mutex
	messages []streaming.Envelope
	secret   string
}

func (m *messageLog) add(env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) setSecret(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secret = s
}

func (m *messageLog) all() []streaming.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]streaming.Envelope, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func (m *messageLog) count(msgType string) int {
	n := 0
	for _, env := range m.all() {
		if env.Type == msgType {
			n++
		}
	}
	return n
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testEpisode() *core.Episode {
	return &core.Episode{ID: "ep-1", Number: 1, Track: "g-track-1", Stage: core.StageRace, StartTime: time.Now()}
}

func TestStartAndEndEpisode(t *testing.T) {
	srv, ml := testServer(t, true)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "test"}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	ep := testEpisode()
	require.NoError(t, b.StartEpisode(ep))
	ep.Steps = 1400
	require.NoError(t, b.EndEpisode(ep))

	msgs := ml.all()
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, streaming.TypeStartEpisode, msgs[0].Type)
	assert.Equal(t, streaming.TypeEndEpisode, msgs[len(msgs)-1].Type)

	var end streaming.EpisodePayload
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1].Payload, &end))
	assert.Equal(t, 1400, end.Steps)
	assert.Equal(t, "race", end.Stage)

	ml.mu.Lock()
	assert.Equal(t, "test", ml.secret)
	ml.mu.Unlock()
}

func TestSamplesAndSteps(t *testing.T) {
	srv, ml := testServer(t, true)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartEpisode(testEpisode()))
	require.NoError(t, b.RecordSamples(nil))
	require.NoError(t, b.RecordSamples([]core.Sample{
		{EpisodeID: "ep-1", Step: 13, Steer: 0.1, Frame: []byte{1}},
		{EpisodeID: "ep-1", Step: 14, Steer: 0.2},
		{EpisodeID: "ep-2", Step: 1},
	}))
	require.NoError(t, b.RecordStep(core.StepRecord{EpisodeID: "ep-1", Step: 14, SpeedX: 30}))
	require.NoError(t, b.EndEpisode(testEpisode()))

	assert.Eventually(t, func() bool {
		return ml.count(streaming.TypeSamples) == 2 && ml.count(streaming.TypeStep) == 1
	}, time.Second, 10*time.Millisecond)

	var first streaming.SamplesPayload
	for _, env := range ml.all() {
		if env.Type == streaming.TypeSamples {
			require.NoError(t, json.Unmarshal(env.Payload, &first))
			break
		}
	}
	assert.Equal(t, "ep-1", first.EpisodeID)
	assert.Len(t, first.Samples, 2)
}

func TestStartEpisode_AckTimeoutClosed(t *testing.T) {
	srv, _ := testServer(t, false)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, b.Init())

	errCh := make(chan error, 1)
	go func() { errCh <- b.StartEpisode(testEpisode()) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Close())
	select {
	case err := <-errCh:
		assert.ErrorContains(t, err, "connection closed")
	case <-time.After(2 * time.Second):
		t.Fatal("StartEpisode did not return after Close")
	}
}

func TestInit_DialError(t *testing.T) {
	b := New(Config{URL: "ws://127.0.0.1:1/stream"}, nil)
	assert.Error(t, b.Init())

	assert.Error(t, New(Config{URL: "://bad"}, nil).Init())
}

func TestClose_Idempotent(t *testing.T) {
	srv, _ := testServer(t, true)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, b.Init())
	require.NoError(t, b.Close())
	assert.NoError(t, b.Close())
}

func TestEnvelopeSerialization(t *testing.T) {
	data, err := marshalEnvelope(streaming.TypeStep, streaming.StepPayload{EpisodeID: "ep", Step: 3})
	require.NoError(t, err)

	var decoded streaming.Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, streaming.TypeStep, decoded.Type)

	var sp streaming.StepPayload
	require.NoError(t, json.Unmarshal(decoded.Payload, &sp))
	assert.Equal(t, 3, sp.Step)
}
