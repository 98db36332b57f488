package ui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"coinfall/client/internal/api"
	"coinfall/client/internal/catalog"
	"coinfall/client/internal/game"
	"coinfall/client/internal/session"
)

type fakeBackend struct {
	buyState game.ServerSnapshot
	buyErr   error
	daily    api.DailyBoosterResult
}

func (b *fakeBackend) Authenticate(context.Context, api.TelegramIdentity) (api.AuthResult, error) {
	return api.AuthResult{Token: "tok"}, nil
}

func (b *fakeBackend) FetchState(context.Context) (game.ServerSnapshot, error) {
	return game.ServerSnapshot{}, nil
}

func (b *fakeBackend) BuyBooster(context.Context, string) (game.ServerSnapshot, error) {
	return b.buyState, b.buyErr
}

func (b *fakeBackend) UseDailyBooster(context.Context) (api.DailyBoosterResult, error) {
	return b.daily, nil
}

type envelope struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
	Code string `json:"code"`
	View struct {
		Balance int64 `json:"balance"`
		Energy  int   `json:"energy"`
	} `json:"view"`
	Boosters []catalog.Definition `json:"boosters"`
}

func newBridgeServer(t *testing.T, energy int) (*httptest.Server, *game.Store) {
	t.Helper()
	store := game.NewStore(game.Config{
		PlayerID:       "player-1",
		TapCost:        1,
		TapValue:       1,
		EnergyCap:      100,
		RegenPerSecond: 0,
	})
	store.Seed(game.ServerSnapshot{
		Energy:    energy,
		EnergyCap: 100,
		TapValue:  1,
		TapCost:   1,
	}, nil)
	shop, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	sess := session.New(session.Config{
		Store:   store,
		Backend: &fakeBackend{},
		Catalog: shop,
	})
	handler := NewHandler(sess, HandlerConfig{Refresh: time.Hour})
	server := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(server.Close)
	return server, store
}

func dialBridge(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial bridge: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	return env
}

func sendCommand(t *testing.T, conn *websocket.Conn, msg clientMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write command: %v", err)
	}
}

func TestConnectSendsCatalogThenState(t *testing.T) {
	server, _ := newBridgeServer(t, 100)
	conn := dialBridge(t, server)

	first := readEnvelope(t, conn)
	if first.Type != "catalog" || len(first.Boosters) == 0 {
		t.Fatalf("expected catalog first, got %+v", first)
	}
	second := readEnvelope(t, conn)
	if second.Type != "state" || second.View.Energy != 100 {
		t.Fatalf("expected initial state, got %+v", second)
	}
}

func TestTapCommandPushesUpdatedState(t *testing.T) {
	server, _ := newBridgeServer(t, 100)
	conn := dialBridge(t, server)
	readEnvelope(t, conn) // catalog
	readEnvelope(t, conn) // initial state

	sendCommand(t, conn, clientMessage{Type: "tap"})
	state := readEnvelope(t, conn)
	if state.Type != "state" {
		t.Fatalf("expected state push, got %q", state.Type)
	}
	if state.View.Balance != 1 || state.View.Energy != 99 {
		t.Fatalf("unexpected view after tap: %+v", state.View)
	}
}

func TestTapWithoutEnergyReportsError(t *testing.T) {
	server, _ := newBridgeServer(t, 0)
	conn := dialBridge(t, server)
	readEnvelope(t, conn) // catalog
	readEnvelope(t, conn) // initial state

	sendCommand(t, conn, clientMessage{Type: "tap"})
	errMsg := readEnvelope(t, conn)
	if errMsg.Type != "error" || errMsg.Code != codeInsufficientEnergy {
		t.Fatalf("expected insufficient_energy error, got %+v", errMsg)
	}
	state := readEnvelope(t, conn)
	if state.Type != "state" || state.View.Balance != 0 {
		t.Fatalf("expected unchanged state after blocked tap, got %+v", state)
	}
}

func TestUnknownBoosterPurchaseReportsError(t *testing.T) {
	server, _ := newBridgeServer(t, 100)
	conn := dialBridge(t, server)
	readEnvelope(t, conn) // catalog
	readEnvelope(t, conn) // initial state

	sendCommand(t, conn, clientMessage{Type: "buy_booster", BoosterType: "no_such_booster"})
	errMsg := readEnvelope(t, conn)
	if errMsg.Type != "error" || errMsg.Code != codeUnknownBooster {
		t.Fatalf("expected unknown_booster error, got %+v", errMsg)
	}
}

func TestMalformedMessageIsIgnored(t *testing.T) {
	server, _ := newBridgeServer(t, 100)
	conn := dialBridge(t, server)
	readEnvelope(t, conn) // catalog
	readEnvelope(t, conn) // initial state

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	sendCommand(t, conn, clientMessage{Type: "tap"})
	state := readEnvelope(t, conn)
	if state.Type != "state" || state.View.Balance != 1 {
		t.Fatalf("expected bridge to survive malformed message, got %+v", state)
	}
}
