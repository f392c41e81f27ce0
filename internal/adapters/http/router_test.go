package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Relay/internal/adapters/signal"
	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/auth"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/storage"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-test-secret-test-secret!"

type testServer struct {
	*httptest.Server
	ctl *signal.SignalWSController
}

func newTestServer(t *testing.T, authMode string, opts signal.Options) *testServer {
	t.Helper()
	cfg := &config.Config{
		Mode:            "test",
		StaticPath:      t.TempDir(),
		AuthMode:        authMode,
		Secret:          testSecret,
		TokenTTL:        time.Hour,
		LoginRateLimit:  3,
		LoginRateWindow: time.Minute,
	}

	db, err := storage.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	registry := app.NewRegistry()
	o := orch.New(registry, app.NewBroadcaster(registry, app.SimplePolicy{}), storage.NewMessageStore(db), app.NewGuestNamer(),
		orch.Options{AllowRename: !cfg.Authenticated()})

	deps := Deps{Orch: o}
	if cfg.Authenticated() {
		tokens := auth.NewTokenIssuer(cfg.Secret, cfg.TokenTTL)
		accounts := storage.NewAccountStore(db)
		deps.Auth = auth.NewService(accounts, tokens)
		deps.Signal = signal.NewSignalWSController(o, auth.SessionResolver{Accounts: accounts, Tokens: tokens}, opts)
	} else {
		deps.Signal = signal.NewSignalWSController(o, auth.AnonymousResolver{}, opts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(SetupRouter(ctx, cfg, deps))
	t.Cleanup(func() {
		require.NoError(t, deps.Signal.Shutdown(2*time.Second))
		srv.Close()
		cancel()
	})
	return &testServer{Server: srv, ctl: deps.Signal}
}

func (s *testServer) wsURL(query string) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/api/ws" + query
}

func dial(t *testing.T, d *websocket.Dialer, url string) *websocket.Conn {
	t.Helper()
	ws, resp, err := d.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

// readUntil skips events until one of type typ arrives.
func readUntil(t *testing.T, ws *websocket.Conn, typ string) map[string]any {
	t.Helper()
	for {
		if e := readEvent(t, ws); e["type"] == typ {
			return e
		}
	}
}

func postJSON(t *testing.T, client *http.Client, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := client.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func Test_Anonymous_Chat_Flow(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, config.AuthAnonymous, signal.Options{})

	// Given Alice is connected
	alice := dial(t, websocket.DefaultDialer, srv.wsURL("?name=Alice"))
	welcome := readEvent(t, alice)
	req.Equal("welcome", welcome["type"])
	req.Equal("Alice", welcome["user"].(map[string]any)["displayName"])
	req.Equal("history", readEvent(t, alice)["type"])
	req.Equal("Welcome, Alice! 1 online.", readEvent(t, alice)["text"])
	req.Equal("join", readEvent(t, alice)["action"])

	// When a guest joins and speaks
	guest := dial(t, websocket.DefaultDialer, srv.wsURL(""))
	guestName := readEvent(t, guest)["user"].(map[string]any)["displayName"].(string)
	req.True(strings.HasPrefix(guestName, app.GuestPrefix))
	readUntil(t, guest, "presence")

	joined := readUntil(t, alice, "presence")
	req.Equal(guestName, joined["user"].(map[string]any)["displayName"])

	req.NoError(guest.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","text":"hi all"}`)))

	// Then both see the message
	for _, ws := range []*websocket.Conn{alice, guest} {
		msg := readUntil(t, ws, "message")
		req.Equal("hi all", msg["text"])
		req.Equal(guestName, msg["senderName"])
	}

	// And the REST views agree
	resp, err := http.Get(srv.URL + "/api/online")
	req.NoError(err)
	defer resp.Body.Close()
	var online OnlineResponse
	req.NoError(json.NewDecoder(resp.Body).Decode(&online))
	req.Equal(2, online.Count)

	resp2, err := http.Get(srv.URL + "/api/messages?limit=500")
	req.NoError(err)
	defer resp2.Body.Close()
	var history MessagesResponse
	req.NoError(json.NewDecoder(resp2.Body).Decode(&history))
	req.Len(history.Messages, 1)

	// When the guest leaves, Alice hears it once
	req.NoError(guest.Close())
	left := readUntil(t, alice, "presence")
	req.Equal("leave", left["action"])
	req.Eventually(func() bool { return srv.ctl.Orch.Registry.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func Test_Anonymous_Mode_Has_No_Account_Routes(t *testing.T) {
	srv := newTestServer(t, config.AuthAnonymous, signal.Options{})

	resp := postJSON(t, http.DefaultClient, srv.URL+"/api/login", auth.Credentials{Username: "alice", Password: "password1"})

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func Test_Authenticated_Should_Reject_Without_Session(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, config.AuthAuthenticated, signal.Options{})

	_, resp, err := websocket.DefaultDialer.Dial(srv.wsURL("?name=Mallory"), nil)

	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
	req.Equal(0, srv.ctl.Orch.Registry.Count())

	resp2, err := http.Get(srv.URL + "/api/online")
	req.NoError(err)
	defer resp2.Body.Close()
	req.Equal(http.StatusUnauthorized, resp2.StatusCode)
}

func Test_Authenticated_Register_Login_And_Connect(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, config.AuthAuthenticated, signal.Options{})
	jar, err := cookiejar.New(nil)
	req.NoError(err)
	client := &http.Client{Jar: jar}
	creds := auth.Credentials{Username: "alice", Password: "password1"}

	// Given a registered account
	resp := postJSON(t, client, srv.URL+"/api/register", creds)
	req.Equal(http.StatusCreated, resp.StatusCode)
	resp = postJSON(t, client, srv.URL+"/api/register", creds)
	req.Equal(http.StatusConflict, resp.StatusCode)

	// When the browser connects with its session cookie
	ws := dial(t, &websocket.Dialer{Jar: jar}, srv.wsURL("?name=ignored"))

	// Then the display name is the username
	welcome := readEvent(t, ws)
	req.Equal("alice", welcome["user"].(map[string]any)["displayName"])

	// And set-name is not part of this variant
	readUntil(t, ws, "presence")
	req.NoError(ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"set-name","name":"Mallory"}`)))
	errEvt := readUntil(t, ws, "error")
	req.Equal(`unknown event type "set-name"`, errEvt["text"])

	// And a bearer token from login works without cookies
	resp = postJSON(t, http.DefaultClient, srv.URL+"/api/login", creds)
	req.Equal(http.StatusOK, resp.StatusCode)
	var login LoginResponse
	req.NoError(json.NewDecoder(resp.Body).Decode(&login))
	req.NotEmpty(login.Token)

	tokenWS := dial(t, websocket.DefaultDialer, srv.wsURL("?token="+login.Token))
	req.Equal("alice", readEvent(t, tokenWS)["user"].(map[string]any)["displayName"])
	req.Equal(2, srv.ctl.Orch.Registry.Count())

	// And logout drops the session
	resp = postJSON(t, client, srv.URL+"/api/logout", nil)
	req.Equal(http.StatusNoContent, resp.StatusCode)
	me, err := client.Get(srv.URL + "/api/me")
	req.NoError(err)
	defer me.Body.Close()
	req.Equal(http.StatusUnauthorized, me.StatusCode)
}

func Test_Login_Should_Be_Rate_Limited(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, config.AuthAuthenticated, signal.Options{})
	bad := auth.Credentials{Username: "alice", Password: "wrong-password"}

	for i := 0; i < 3; i++ {
		resp := postJSON(t, http.DefaultClient, srv.URL+"/api/login", bad)
		req.Equal(http.StatusUnauthorized, resp.StatusCode)
	}
	resp := postJSON(t, http.DefaultClient, srv.URL+"/api/login", bad)
	req.Equal(http.StatusTooManyRequests, resp.StatusCode)
}

func Test_Healthz(t *testing.T) {
	srv := newTestServer(t, config.AuthAnonymous, signal.Options{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// drain reads until the connection fails and returns the events seen.
func drain(ws *websocket.Conn, within time.Duration) ([]map[string]any, error) {
	var events []map[string]any
	_ = ws.SetReadDeadline(time.Now().Add(within))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return events, err
		}
		var m map[string]any
		if json.Unmarshal(data, &m) == nil {
			events = append(events, m)
		}
	}
}

func leavesOf(events []map[string]any, name string) int {
	n := 0
	for _, e := range events {
		if e["type"] == "presence" && e["action"] == "leave" && e["user"].(map[string]any)["displayName"] == name {
			n++
		}
	}
	return n
}

func Test_Oversized_Frame_Should_Close_Sender_Once(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, config.AuthAnonymous, signal.Options{ReadLimit: 1024})

	// Given Alice and Bob are online
	alice := dial(t, websocket.DefaultDialer, srv.wsURL("?name=Alice"))
	readUntil(t, alice, "presence")
	bob := dial(t, websocket.DefaultDialer, srv.wsURL("?name=Bob"))
	readUntil(t, bob, "presence")
	readUntil(t, alice, "presence")

	// When Bob sends a frame over the read limit
	big := `{"type":"message","text":"` + strings.Repeat("x", 4096) + `"}`
	req.NoError(bob.WriteMessage(websocket.TextMessage, []byte(big)))

	// Then Bob is dropped, Alice hears exactly one leave and nothing was stored
	_, err := drain(bob, 2*time.Second)
	req.Error(err)
	events, _ := drain(alice, 500*time.Millisecond)
	req.Equal(1, leavesOf(events, "Bob"))
	req.Empty(readMessages(t, srv))
	req.Equal(1, srv.ctl.Orch.Registry.Count())
}

func readMessages(t *testing.T, srv *testServer) []any {
	t.Helper()
	resp, err := http.Get(srv.URL + "/api/messages")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	msgs, _ := body["messages"].([]any)
	return msgs
}

func Test_Shutdown_Should_Close_Everyone_And_Refuse_New_Upgrades(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, config.AuthAnonymous, signal.Options{})

	// Given two connected clients
	alice := dial(t, websocket.DefaultDialer, srv.wsURL("?name=Alice"))
	readUntil(t, alice, "presence")
	bob := dial(t, websocket.DefaultDialer, srv.wsURL("?name=Bob"))
	readUntil(t, bob, "presence")

	// When the controller shuts down
	req.NoError(srv.ctl.Shutdown(2 * time.Second))

	// Then nobody is registered and both clients are cut off
	req.Equal(0, srv.ctl.Orch.Registry.Count())
	for _, ws := range []*websocket.Conn{alice, bob} {
		_, err := drain(ws, 2*time.Second)
		req.Error(err)
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) {
			req.False(netErr.Timeout(), "connection should be closed, not idle")
		}
	}

	// And new upgrades are refused
	_, resp, err := websocket.DefaultDialer.Dial(srv.wsURL("?name=Late"), nil)
	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusServiceUnavailable, resp.StatusCode)
}

func Test_Keepalive_Should_Keep_Responsive_Clients(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, config.AuthAnonymous, signal.Options{PingPeriod: 50 * time.Millisecond, PongWait: 200 * time.Millisecond})

	// Given a client that answers pings (gorilla does while reading)
	alive := dial(t, websocket.DefaultDialer, srv.wsURL("?name=Alive"))
	go func() {
		for {
			if _, _, err := alive.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// And one that swallows pings without answering
	silent := dial(t, websocket.DefaultDialer, srv.wsURL("?name=Silent"))
	silent.SetPingHandler(func(string) error { return nil })
	go func() {
		for {
			if _, _, err := silent.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// When several ping periods pass
	time.Sleep(700 * time.Millisecond)

	// Then only the responsive client is still online
	online := srv.ctl.Orch.Online()
	req.Len(online, 1)
	req.Equal("Alive", online[0].DisplayName)
}

func Test_Bearer_Token_Should_Open_Read_Endpoints(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, config.AuthAuthenticated, signal.Options{})
	creds := auth.Credentials{Username: "alice", Password: "password1"}
	req.Equal(http.StatusCreated, postJSON(t, http.DefaultClient, srv.URL+"/api/register", creds).StatusCode)

	resp := postJSON(t, http.DefaultClient, srv.URL+"/api/login", creds)
	req.Equal(http.StatusOK, resp.StatusCode)
	var login LoginResponse
	req.NoError(json.NewDecoder(resp.Body).Decode(&login))

	for _, path := range []string{"/api/online", "/api/messages", "/api/me"} {
		r, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
		req.NoError(err)
		r.Header.Set("Authorization", "Bearer "+login.Token)
		got, err := http.DefaultClient.Do(r)
		req.NoError(err)
		_ = got.Body.Close()
		req.Equal(http.StatusOK, got.StatusCode, path)
	}

	bad, err := http.NewRequest(http.MethodGet, srv.URL+"/api/online", nil)
	req.NoError(err)
	bad.Header.Set("Authorization", "Bearer junk")
	got, err := http.DefaultClient.Do(bad)
	req.NoError(err)
	_ = got.Body.Close()
	req.Equal(http.StatusUnauthorized, got.StatusCode)
}

func Test_Online_Should_List_Every_Session_Of_An_Account(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, config.AuthAuthenticated, signal.Options{})
	jar, err := cookiejar.New(nil)
	req.NoError(err)
	client := &http.Client{Jar: jar}
	req.Equal(http.StatusCreated, postJSON(t, client, srv.URL+"/api/register", auth.Credentials{Username: "alice", Password: "password1"}).StatusCode)

	online := func() OnlineResponse {
		resp, err := client.Get(srv.URL + "/api/online")
		req.NoError(err)
		defer resp.Body.Close()
		var body OnlineResponse
		req.NoError(json.NewDecoder(resp.Body).Decode(&body))
		return body
	}

	// Given the same account in two tabs
	first := dial(t, &websocket.Dialer{Jar: jar}, srv.wsURL(""))
	readUntil(t, first, "presence")
	second := dial(t, &websocket.Dialer{Jar: jar}, srv.wsURL(""))
	readUntil(t, second, "presence")

	both := online()
	req.Equal(2, both.Count)
	req.Equal(both.Users[0].ID, both.Users[1].ID)

	// When one tab closes
	req.NoError(first.Close())
	leave := readUntil(t, second, "presence")
	req.Equal("leave", leave["action"])

	// Then the account is still listed through the other
	remaining := online()
	req.Equal(1, remaining.Count)
	req.Equal("alice", remaining.Users[0].DisplayName)
}
