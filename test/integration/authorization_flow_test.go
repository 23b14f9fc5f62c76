package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mizuki-dev/guildgate/internal/app"
	"github.com/mizuki-dev/guildgate/internal/config"
	"github.com/mizuki-dev/guildgate/internal/domain"
)

// fakeDiscord serves the token, identity and membership endpoints the full
// authorization flow touches.
func fakeDiscord(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "user-access",
			"refresh_token": "user-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/api/v10/users/@me", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "user-1", "username": "tester"})
	})
	mux.HandleFunc("/api/v10/guilds/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func fakeReputation(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.URL.Path[len("/v2/"):]
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			ip:       map[string]string{"proxy": "no", "isp": "Test ISP"},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, discordURL, reputationURL, dataDir string) *config.Config {
	t.Helper()
	return &config.Config{
		Environment:          "test",
		HTTPAddr:             ":0",
		BaseURL:              "http://localhost",
		DiscordClientID:      "client-id",
		DiscordClientSecret:  "client-secret",
		DiscordBotToken:      "bot-token",
		DiscordAPIBaseURL:    discordURL,
		OAuthRedirectURL:     "http://localhost/callback",
		OperatorToken:        "op-token",
		DataDir:              dataDir,
		RemoteBackend:        config.BackendNone,
		SessionTTL:           24 * time.Hour,
		SnapshotInterval:     5 * time.Minute,
		SweepInterval:        time.Hour,
		ReputationBaseURL:    reputationURL,
		ReputationTimeout:    5 * time.Second,
		CallbackRateLimitRPM: 100,
		APIRateLimitRPM:      100,
	}
}

func bootstrapApp(t *testing.T, cfg *config.Config) *app.App {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.Bootstrap(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		a.Observability.Shutdown(ctx)
	})
	return a
}

func operatorPost(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer op-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestFullAuthorizationFlow(t *testing.T) {
	discordSrv := fakeDiscord(t)
	reputationSrv := fakeReputation(t)
	dataDir := t.TempDir()

	a := bootstrapApp(t, testConfig(t, discordSrv.URL, reputationSrv.URL, dataDir))
	h := a.Server.Handler

	// Operator creates a panel session.
	rec := operatorPost(h, "/api/sessions", `{"guild_id":"g1","role_id":"r1","channel_id":"c1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: %d (%s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Data struct {
			SessionToken string `json:"session_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	token := created.Data.SessionToken

	// A user completes the OAuth redirect.
	req := httptest.NewRequest(http.MethodGet, "/callback?code=auth-code&state="+token, nil)
	req.RemoteAddr = "203.0.113.7:40000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("callback: %d (%s)", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/success.html?user=tester" {
		t.Fatalf("callback location: %s", loc)
	}

	cred, err := a.Credentials.Get("user-1")
	if err != nil {
		t.Fatalf("credential not stored: %v", err)
	}
	if cred.AccessToken != "user-access" || cred.GuildID != "g1" || cred.SourceIP != "203.0.113.7" {
		t.Fatalf("credential fields: %+v", cred)
	}

	// Operator dispatches everyone into a second guild.
	rec = operatorPost(h, "/api/guilds/g2/dispatch", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("dispatch: %d (%s)", rec.Code, rec.Body.String())
	}
	var dispatched struct {
		Data domain.DispatchReport `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &dispatched); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if dispatched.Data.SuccessCount != 1 || len(dispatched.Data.Outcomes) != 1 {
		t.Fatalf("report: %+v", dispatched.Data)
	}
	if dispatched.Data.Outcomes[0].Outcome != domain.OutcomeAdded {
		t.Fatalf("outcome: %+v", dispatched.Data.Outcomes[0])
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	discordSrv := fakeDiscord(t)
	reputationSrv := fakeReputation(t)
	dataDir := t.TempDir()
	cfg := testConfig(t, discordSrv.URL, reputationSrv.URL, dataDir)

	first := bootstrapApp(t, cfg)
	h := first.Server.Handler

	rec := operatorPost(h, "/api/sessions", `{"guild_id":"g1","role_id":"r1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: %d", rec.Code)
	}
	var created struct {
		Data struct {
			SessionToken string `json:"session_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/callback?code=auth-code&state="+created.Data.SessionToken, nil)
	req.RemoteAddr = "203.0.113.7:40000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("callback: %d", rec.Code)
	}

	putReq := httptest.NewRequest(http.MethodPut, "/api/guilds/g1/settings", bytes.NewBufferString(`{"duplicate_ip_block":true}`))
	putReq.Header.Set("Authorization", "Bearer op-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, putReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("put settings: %d", rec.Code)
	}

	// A second process over the same data dir sees everything.
	second := bootstrapApp(t, cfg)
	if _, err := second.Sessions.Get(created.Data.SessionToken); err != nil {
		t.Fatalf("session lost on restart: %v", err)
	}
	cred, err := second.Credentials.Get("user-1")
	if err != nil {
		t.Fatalf("credential lost on restart: %v", err)
	}
	if cred.SourceIP != "203.0.113.7" {
		t.Fatalf("credential fields lost: %+v", cred)
	}
	if !second.Settings.Get("g1").DuplicateIPBlock {
		t.Fatalf("settings lost on restart")
	}
}

func TestDuplicateIPBlockedAcrossRestart(t *testing.T) {
	discordSrv := fakeDiscord(t)
	reputationSrv := fakeReputation(t)
	dataDir := t.TempDir()
	cfg := testConfig(t, discordSrv.URL, reputationSrv.URL, dataDir)

	a := bootstrapApp(t, cfg)
	h := a.Server.Handler

	putReq := httptest.NewRequest(http.MethodPut, "/api/guilds/g1/settings", bytes.NewBufferString(`{"duplicate_ip_block":true}`))
	putReq.Header.Set("Authorization", "Bearer op-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, putReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("put settings: %d", rec.Code)
	}

	rec = operatorPost(h, "/api/sessions", `{"guild_id":"g1","role_id":"r1"}`)
	var created struct {
		Data struct {
			SessionToken string `json:"session_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	token := created.Data.SessionToken

	callback := func(handler http.Handler) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/callback?code=auth-code&state="+token, nil)
		req.RemoteAddr = "203.0.113.7:40000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := callback(h); rec.Header().Get("Location") != "/success.html?user=tester" {
		t.Fatalf("first authorization: %s", rec.Header().Get("Location"))
	}

	// Same IP after a restart must still be blocked: the credential record
	// carrying the source IP was persisted and reloaded.
	second := bootstrapApp(t, cfg)
	if rec := callback(second.Server.Handler); rec.Header().Get("Location") != "/blocked.html?reason=duplicate_ip" {
		t.Fatalf("second authorization: %s", rec.Header().Get("Location"))
	}
}
