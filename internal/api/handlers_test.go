package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinwijaya/blackjack-engine/internal/db"
	"github.com/calvinwijaya/blackjack-engine/internal/game"
	"github.com/calvinwijaya/blackjack-engine/internal/store"
)

type fakeLedger struct {
	mu       sync.Mutex
	sessions []string
	rounds   map[string][]game.RoundRecord
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rounds: make(map[string][]game.RoundRecord)}
}

func (l *fakeLedger) CreateSession(s *game.Session) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions = append(l.sessions, s.ID)
	return nil
}

func (l *fakeLedger) RecordRound(sessionID string, rec game.RoundRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rounds[sessionID] = append(l.rounds[sessionID], rec)
	return nil
}

func (l *fakeLedger) Rounds(sessionID string) ([]game.RoundRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rounds[sessionID], nil
}

func (l *fakeLedger) Stats(sessionID string) (*db.SessionStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := &db.SessionStats{SessionID: sessionID}
	for _, rec := range l.rounds[sessionID] {
		stats.RoundsPlayed++
		stats.TotalWagered += rec.Bet
		stats.Net += rec.Delta
	}
	return stats, nil
}

type testServer struct {
	*httptest.Server
	store  *store.MemoryStore
	ledger *fakeLedger
	hub    *Hub
}

func newTestServer(t *testing.T, withLedger bool) *testServer {
	t.Helper()
	logger := log.New(io.Discard)

	ts := &testServer{
		store: store.NewMemoryStore(),
		hub:   NewHub(logger),
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go ts.hub.Run(ctx)

	var ledger store.Ledger
	if withLedger {
		ts.ledger = newFakeLedger()
		ledger = ts.ledger
	}

	h := NewHandlers(ts.store, ledger, ts.hub, SessionDefaults{
		Decks:           1,
		StartingBalance: game.Units(1000),
		Seed:            11,
	}, quartz.NewMock(t), logger)

	r := mux.NewRouter()
	h.RegisterRoutes(r)
	ts.Server = httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (ts *testServer) createSession(t *testing.T, body string) game.SessionSnapshot {
	t.Helper()
	status, data := ts.do(t, "POST", "/api/session", body)
	require.Equal(t, http.StatusCreated, status, string(data))

	var snap game.SessionSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	return snap
}

func (ts *testServer) stackShoe(t *testing.T, id, cards string) {
	t.Helper()
	sess, err := ts.store.GetSession(id)
	require.NoError(t, err)
	parsed, err := game.ParseCards(cards)
	require.NoError(t, err)
	sess.UseShoe(game.NewStackedShoe(parsed...))
}

func decodeSnapshot(t *testing.T, data []byte) game.SessionSnapshot {
	t.Helper()
	var snap game.SessionSnapshot
	require.NoError(t, json.Unmarshal(data, &snap), string(data))
	return snap
}

func TestCreateAndGetSession(t *testing.T) {
	ts := newTestServer(t, true)

	snap := ts.createSession(t, `{"playerName": "alice", "decks": 2}`)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "Alice", snap.Player.Name)
	assert.Equal(t, game.Units(1000), snap.Player.Balance)
	assert.Equal(t, 2, snap.Decks)
	assert.Equal(t, 2*game.CardsPerDeck, snap.ShoeRemaining)
	assert.Equal(t, []string{snap.ID}, ts.ledger.sessions)

	status, data := ts.do(t, "GET", "/api/session/"+snap.ID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, snap.ID, decodeSnapshot(t, data).ID)

	status, data = ts.do(t, "GET", "/api/session", "")
	require.Equal(t, http.StatusOK, status)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Alice", list[0]["playerName"])
	assert.Equal(t, 1000.0, list[0]["balance"])
}

func TestCreateSessionValidation(t *testing.T) {
	ts := newTestServer(t, false)

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"decks": 2}`},
		{"too many decks", `{"playerName": "bob", "decks": 13}`},
		{"negative balance", `{"playerName": "bob", "balance": -10}`},
		{"bad json", `{"playerName":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := ts.do(t, "POST", "/api/session", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}
}

func TestRoundFlowSurrender(t *testing.T) {
	ts := newTestServer(t, true)
	snap := ts.createSession(t, `{"playerName": "alice"}`)
	ts.stackShoe(t, snap.ID, "Th 6d 9c 5s")

	status, data := ts.do(t, "POST", "/api/session/"+snap.ID+"/round", `{"bet": 100}`)
	require.Equal(t, http.StatusOK, status, string(data))
	round := decodeSnapshot(t, data).Round
	require.NotNil(t, round)
	assert.Equal(t, game.PlayerTurn, round.State)
	assert.Equal(t, 16, round.PlayerTotal)
	assert.Equal(t, []game.Action{game.Hit, game.Stand, game.DoubleDown, game.Surrender}, round.Actions)

	status, data = ts.do(t, "POST", "/api/session/"+snap.ID+"/action", `{"action": "surrender"}`)
	require.Equal(t, http.StatusOK, status, string(data))
	after := decodeSnapshot(t, data)
	assert.Equal(t, game.Settled, after.Round.State)
	assert.Equal(t, game.Units(950), after.Player.Balance)
	require.NotNil(t, after.Round.Settlement)
	assert.Equal(t, game.ResultSurrender, after.Round.Settlement.Result)
	assert.Len(t, after.Round.DealerCards, 1)

	status, data = ts.do(t, "GET", "/api/session/"+snap.ID+"/history", "")
	require.Equal(t, http.StatusOK, status)
	var history []game.RoundRecord
	require.NoError(t, json.Unmarshal(data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, -game.Units(50), history[0].Delta)

	require.Len(t, ts.ledger.rounds[snap.ID], 1, "settled round recorded in ledger")

	status, data = ts.do(t, "GET", "/api/session/"+snap.ID+"/stats", "")
	require.Equal(t, http.StatusOK, status)
	var stats db.SessionStats
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Equal(t, 1, stats.RoundsPlayed)
	assert.Equal(t, -game.Units(50), stats.Net)
}

func TestRoundFlowHitAndStand(t *testing.T) {
	ts := newTestServer(t, false)
	snap := ts.createSession(t, `{"playerName": "carol"}`)
	ts.stackShoe(t, snap.ID, "2h 3d 9c 4s Th 8c")

	status, _ := ts.do(t, "POST", "/api/session/"+snap.ID+"/round", `{"bet": 10}`)
	require.Equal(t, http.StatusOK, status)

	status, data := ts.do(t, "POST", "/api/session/"+snap.ID+"/action", `{"action": "h"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []game.Action{game.Hit, game.Stand}, decodeSnapshot(t, data).Round.Actions)

	status, _ = ts.do(t, "POST", "/api/session/"+snap.ID+"/action", `{"action": "double"}`)
	assert.Equal(t, http.StatusConflict, status, "double down only on two cards")

	status, data = ts.do(t, "POST", "/api/session/"+snap.ID+"/action", `{"action": "stand"}`)
	require.Equal(t, http.StatusOK, status)
	after := decodeSnapshot(t, data)
	// player 2+3+4 = 9, dealer 9+T = 19
	assert.Equal(t, game.Settled, after.Round.State)
	assert.Equal(t, game.ResultLose, after.Round.Settlement.Result)
	assert.Equal(t, game.Units(990), after.Player.Balance)
}

func TestRoundErrors(t *testing.T) {
	ts := newTestServer(t, false)
	snap := ts.createSession(t, `{"playerName": "dave"}`)
	base := "/api/session/" + snap.ID

	status, _ := ts.do(t, "POST", base+"/action", `{"action": "hit"}`)
	assert.Equal(t, http.StatusConflict, status, "no round yet")

	status, _ = ts.do(t, "POST", base+"/round", `{"bet": 5000}`)
	assert.Equal(t, http.StatusBadRequest, status, "bet above balance")

	status, _ = ts.do(t, "POST", base+"/round", `{"bet": 0}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.do(t, "POST", base+"/round", `{"bet": 10.5}`)
	assert.Equal(t, http.StatusBadRequest, status, "fractional bet")

	status, _ = ts.do(t, "POST", base+"/action", `{"action": "split"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.do(t, "POST", "/api/session/missing/round", `{"bet": 10}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.do(t, "GET", base+"/stats", "")
	assert.Equal(t, http.StatusServiceUnavailable, status, "no ledger configured")
}

func TestDoubleDownRejectedWithoutFunds(t *testing.T) {
	ts := newTestServer(t, false)
	snap := ts.createSession(t, `{"playerName": "erin", "balance": 150}`)
	ts.stackShoe(t, snap.ID, "5h 6d 9c Th 8s")

	status, _ := ts.do(t, "POST", "/api/session/"+snap.ID+"/round", `{"bet": 100}`)
	require.Equal(t, http.StatusOK, status)

	status, data := ts.do(t, "POST", "/api/session/"+snap.ID+"/action", `{"action": "double"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(data), "too low to double")

	status, data = ts.do(t, "GET", "/api/session/"+snap.ID, "")
	require.Equal(t, http.StatusOK, status)
	round := decodeSnapshot(t, data).Round
	assert.Equal(t, game.PlayerTurn, round.State)
	assert.Equal(t, game.Units(100), round.Bet)
}

func TestEmptyShoeDiscardsRound(t *testing.T) {
	ts := newTestServer(t, true)
	snap := ts.createSession(t, `{"playerName": "frank"}`)
	ts.stackShoe(t, snap.ID, "Th 6d 9c")

	status, _ := ts.do(t, "POST", "/api/session/"+snap.ID+"/round", `{"bet": 100}`)
	require.Equal(t, http.StatusOK, status)

	status, _ = ts.do(t, "POST", "/api/session/"+snap.ID+"/action", `{"action": "hit"}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	status, data := ts.do(t, "GET", "/api/session/"+snap.ID, "")
	require.Equal(t, http.StatusOK, status)
	after := decodeSnapshot(t, data)
	assert.Equal(t, game.Aborted, after.Round.State)
	assert.Equal(t, game.Units(1000), after.Player.Balance)
	assert.Equal(t, game.CardsPerDeck, after.ShoeRemaining)
	assert.Empty(t, ts.ledger.rounds[snap.ID])

	status, _ = ts.do(t, "POST", "/api/session/"+snap.ID+"/round", `{"bet": 100}`)
	assert.Equal(t, http.StatusOK, status)
}

func TestDeleteSession(t *testing.T) {
	ts := newTestServer(t, false)
	snap := ts.createSession(t, `{"playerName": "gina"}`)

	status, _ := ts.do(t, "DELETE", "/api/session/"+snap.ID, "")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = ts.do(t, "GET", "/api/session/"+snap.ID, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.do(t, "DELETE", "/api/session/"+snap.ID, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestWebSocketReceivesUpdates(t *testing.T) {
	ts := newTestServer(t, false)
	snap := ts.createSession(t, `{"playerName": "hank"}`)
	ts.stackShoe(t, snap.ID, "Th 6d 9c 5s")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?sessionId=" + snap.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg struct {
		Type      string          `json:"type"`
		SessionID string          `json:"sessionId"`
		Data      json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "welcome", msg.Type)
	assert.Equal(t, snap.ID, msg.SessionID)

	status, _ := ts.do(t, "POST", "/api/session/"+snap.ID+"/round", `{"bet": 100}`)
	require.Equal(t, http.StatusOK, status)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "sessionUpdate", msg.Type)
	update := decodeSnapshot(t, msg.Data)
	require.NotNil(t, update.Round)
	assert.Equal(t, game.PlayerTurn, update.Round.State)
	assert.Equal(t, 1, ts.hub.Watchers(snap.ID))
}

func TestWebSocketRequiresSession(t *testing.T) {
	ts := newTestServer(t, false)
	status, _ := ts.do(t, "GET", "/ws", "")
	assert.Equal(t, http.StatusBadRequest, status)
}
