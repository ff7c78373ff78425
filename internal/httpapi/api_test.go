package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/rpsls-backend/internal/history"
	"github.com/DoyleJ11/rpsls-backend/internal/hub"
	"github.com/DoyleJ11/rpsls-backend/internal/ws"
	"github.com/DoyleJ11/rpsls-backend/pkg/protocol"
)

type testServer struct {
	*httptest.Server
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	store := history.NewMemoryStore()
	rec := history.NewRecorder(store, 8, zap.NewNop())
	go func() { _ = rec.Run(ctx) }()

	h := hub.NewHub(ctx, hub.Options{Sink: rec})
	srv := httptest.NewServer(SetupRoutes(Deps{
		Hub:     h,
		History: store,
		WS:      ws.Config{OutboxSize: 16, WriteTimeout: time.Second},
	}))
	t.Cleanup(func() {
		srv.Close()
		h.Shutdown()
		cancel()
	})
	return &testServer{Server: srv}
}

// inbound mirrors protocol.ServerMessage with the payload left raw for decoding per event.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func (s *testServer) dial(t *testing.T, query string) *client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return &client{t: t, conn: conn}
}

func (c *client) send(event string, data any) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(c.t, wsjson.Write(ctx, c.conn, map[string]any{"event": event, "data": data}))
}

// expect reads until event arrives and decodes its payload into v (which may be nil).
func (c *client) expect(event string, v any) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var m inbound
	require.NoError(c.t, wsjson.Read(ctx, c.conn, &m), "waiting for %q", event)
	require.Equal(c.t, event, m.Event, "payload: %s", m.Data)
	if v != nil {
		require.NoError(c.t, json.Unmarshal(m.Data, v))
	}
}

func TestCreateAndGetRoom(t *testing.T) {
	s := newServer(t)

	res, err := http.Post(s.URL+"/rooms", "application/json", strings.NewReader(`{"bestOf":5}`))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var created struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&created))
	require.Len(t, created.Code, hub.CodeLength)

	get, err := http.Get(s.URL + "/rooms/" + strings.ToLower(created.Code))
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)

	var summary roomSummary
	require.NoError(t, json.NewDecoder(get.Body).Decode(&summary))
	assert.Equal(t, roomSummary{Code: created.Code, BestOf: 5, Seats: 0, Round: 1}, summary)
}

func TestCreateRoom_RejectsBadBestOf(t *testing.T) {
	s := newServer(t)
	res, err := http.Post(s.URL+"/rooms", "application/json", strings.NewReader(`{"bestOf":4}`))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestGetRoom_NotFound(t *testing.T) {
	s := newServer(t)
	res, err := http.Get(s.URL + "/rooms/NOPE00")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestRivalries_RequiresBothPlayers(t *testing.T) {
	s := newServer(t)
	res, err := http.Get(s.URL + "/rivalries?player1=A")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestRivalries_NamesAreCaseSensitive(t *testing.T) {
	s := newServer(t)

	res, err := http.Get(s.URL + "/rivalries?player1=alice&player2=Alice")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(s.URL + "/rivalries?player1=Alice&player2=Alice")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestShareLinkUnknownRoom(t *testing.T) {
	s := newServer(t)
	c := s.dial(t, "?room=nope00")
	c.expect(protocol.EvtRoomNotFound, nil)

	c.send(protocol.EvtCreateRoom, nil)
	c.expect(protocol.EvtRoomCreated, nil)
}

func TestHealthzAndStats(t *testing.T) {
	s := newServer(t)

	res, err := http.Get(s.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(s.URL + "/stats")
	require.NoError(t, err)
	defer res.Body.Close()
	var stats struct {
		Rooms int `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&stats))
	assert.Zero(t, stats.Rooms)
}

func play(a, b *client, code, actA, actB string) (protocol.RoundResult, protocol.RoundResult) {
	a.send(protocol.EvtSelectAction, map[string]string{"action": actA, "roomId": code})
	a.expect(protocol.EvtWaitingForOpponent, nil)
	b.send(protocol.EvtSelectAction, map[string]string{"action": actB, "roomId": code})

	var ra, rb protocol.RoundResult
	a.expect(protocol.EvtRoundResult, &ra)
	b.expect(protocol.EvtRoundResult, &rb)
	return ra, rb
}

func nextRound(a, b *client, code string) protocol.RoundReset {
	a.send(protocol.EvtNewRound, map[string]string{"roomId": code})
	var reset protocol.RoundReset
	a.expect(protocol.EvtRoundReset, &reset)
	b.expect(protocol.EvtRoundReset, nil)
	return reset
}

func TestMatchOverWebSocket(t *testing.T) {
	s := newServer(t)
	a := s.dial(t, "")

	a.send(protocol.EvtCreateRoom, map[string]int{"bestOf": 3})
	var info protocol.RoomInfo
	a.expect(protocol.EvtRoomCreated, &info)
	code := info.RoomID

	a.send(protocol.EvtSetPlayerName, map[string]string{"playerName": "A", "roomId": code})
	var joined protocol.PlayerJoined
	a.expect(protocol.EvtPlayerJoined, &joined)
	assert.Equal(t, 1, joined.PlayerNumber)
	a.expect(protocol.EvtWaitingForPlayer, nil)

	// Share-link flow: the room code rides on the upgrade URL.
	b := s.dial(t, "?room="+strings.ToLower(code))
	b.expect(protocol.EvtRoomJoined, nil)
	b.send(protocol.EvtSetPlayerName, map[string]string{"playerName": "B", "roomId": code})
	b.expect(protocol.EvtPlayerJoined, &joined)
	assert.Equal(t, 2, joined.PlayerNumber)

	var ready protocol.GameReady
	a.expect(protocol.EvtGameReady, &ready)
	b.expect(protocol.EvtGameReady, nil)
	assert.Equal(t, protocol.GameReady{Players: 2, Player1Name: "A", Player2Name: "B"}, ready)

	c := s.dial(t, "")
	c.send(protocol.EvtJoinRoom, code)
	c.expect(protocol.EvtRoomFull, nil)

	ra, rb := play(a, b, code, "rock", "scissors")
	assert.Equal(t, "player1", ra.Winner)
	assert.True(t, ra.IsPlayer1)
	assert.False(t, rb.IsPlayer1)
	assert.Equal(t, [2]int{1, 0}, [2]int{ra.Player1Score, ra.Player2Score})
	assert.Equal(t, 1, ra.RoundNumber)
	assert.False(t, ra.MatchOver)

	assert.Equal(t, 2, nextRound(a, b, code).RoundNumber)
	ra, _ = play(a, b, code, "paper", "rock")
	assert.Equal(t, [2]int{2, 0}, [2]int{ra.Player1Score, ra.Player2Score})
	assert.Equal(t, 2, ra.RoundNumber)
	assert.False(t, ra.MatchOver)

	nextRound(a, b, code)
	ra, rb = play(a, b, code, "lizard", "lizard")
	assert.Equal(t, "draw", ra.Winner)
	assert.Equal(t, 3, ra.RoundNumber)
	assert.True(t, ra.MatchOver)
	assert.Equal(t, "player1", ra.MatchWinner)
	require.NotNil(t, rb.MatchDuration)
	assert.Equal(t, "draw", rb.Outcome)

	require.Eventually(t, func() bool {
		res, err := http.Get(s.URL + "/rivalries?player1=B&player2=A")
		if err != nil {
			return false
		}
		defer res.Body.Close()
		var st history.RivalryStats
		if json.NewDecoder(res.Body).Decode(&st) != nil {
			return false
		}
		return st.TotalMatches == 1 && st.Player1 == "A" && st.Player1Wins == 1
	}, 2*time.Second, 20*time.Millisecond)

	// Match over: further moves are refused until someone asks for a rematch.
	a.send(protocol.EvtSelectAction, map[string]string{"action": "rock", "roomId": code})
	var failure protocol.ErrorData
	a.expect(protocol.EvtError, &failure)
	assert.Equal(t, protocol.CodeMatchOver, failure.Code)

	reset := nextRound(a, b, code)
	assert.Equal(t, protocol.RoundReset{RoundNumber: 1}, reset)
}

func TestDisconnectWebSocket(t *testing.T) {
	s := newServer(t)
	a := s.dial(t, "")
	a.send(protocol.EvtCreateRoom, 3)
	var info protocol.RoomInfo
	a.expect(protocol.EvtRoomCreated, &info)
	a.send(protocol.EvtSetPlayerName, map[string]string{"playerName": "A"})
	a.expect(protocol.EvtPlayerJoined, nil)
	a.expect(protocol.EvtWaitingForPlayer, nil)

	b := s.dial(t, "")
	b.send(protocol.EvtJoinRoom, map[string]string{"roomId": info.RoomID})
	b.expect(protocol.EvtRoomJoined, nil)
	b.send(protocol.EvtSetPlayerName, map[string]string{"playerName": "B"})
	b.expect(protocol.EvtPlayerJoined, nil)
	a.expect(protocol.EvtGameReady, nil)
	b.expect(protocol.EvtGameReady, nil)

	_ = b.conn.Close(websocket.StatusNormalClosure, "")
	a.expect(protocol.EvtPlayerDisconnected, nil)

	_ = a.conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool {
		res, err := http.Get(s.URL + "/rooms/" + info.RoomID)
		if err != nil {
			return false
		}
		res.Body.Close()
		return res.StatusCode == http.StatusNotFound
	}, 2*time.Second, 20*time.Millisecond)
}
