package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/ytget/musicdl/internal/model"
)

// testServer runs an httptest server with a /login endpoint that hands out
// sequentially numbered tokens and tracks how many logins happened.
type testServer struct {
	srv *httptest.Server

	mu     sync.Mutex
	logins int
	api    http.HandlerFunc
}

func newTestServer(t *testing.T, api http.HandlerFunc) *testServer {
	t.Helper()
	ts := &testServer{api: api}
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		var login loginUser
		if err := json.NewDecoder(r.Body).Decode(&login); err != nil {
			http.Error(w, "bad login body", http.StatusBadRequest)
			return
		}
		if login.Username != "user" || login.Password != "pass" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		ts.mu.Lock()
		ts.logins++
		n := ts.logins
		ts.mu.Unlock()
		json.NewEncoder(w).Encode(tokenInfo{Token: fmt.Sprintf("token-%d", n)})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ts.api(w, r)
	})
	ts.srv = httptest.NewServer(mux)
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) loginCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.logins
}

func (ts *testServer) client(t *testing.T) *Client {
	t.Helper()
	u, err := url.Parse(ts.srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)
	return New(Credentials{Username: "user", Password: "pass", Host: host, Port: port})
}

func TestCredentials_Complete(t *testing.T) {
	tests := []struct {
		creds    Credentials
		expected bool
	}{
		{Credentials{"user", "pass", "host", 22222}, true},
		{Credentials{"", "pass", "host", 22222}, false},
		{Credentials{"user", "", "host", 22222}, false},
		{Credentials{"user", "pass", "", 22222}, false},
		{Credentials{"user", "pass", "host", 0}, false},
	}

	for _, test := range tests {
		if result := test.creds.Complete(); result != test.expected {
			t.Errorf("Complete() for %+v = %v, expected %v", test.creds, result, test.expected)
		}
	}
}

func TestClient_AttachesBearerToken(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-1" {
			http.Error(w, "wrong token", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]string{"Rock", "Jazz"})
	})

	sections, err := ts.client(t).Sections(context.Background())
	if err != nil {
		t.Fatalf("Sections: %v", err)
	}
	if len(sections) != 2 || sections[0] != "Rock" {
		t.Fatalf("unexpected sections: %v", sections)
	}
	if ts.loginCount() != 1 {
		t.Fatalf("expected 1 login, got %d", ts.loginCount())
	}
}

func TestClient_RefreshesTokenOnceOn401(t *testing.T) {
	// only the second token is accepted, so the first API attempt gets 401
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-2" {
			http.Error(w, "expired", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]string{"Rock"})
	})

	sections, err := ts.client(t).Sections(context.Background())
	if err != nil {
		t.Fatalf("Sections after refresh: %v", err)
	}
	if len(sections) != 1 {
		t.Fatalf("unexpected sections: %v", sections)
	}
	if ts.loginCount() != 2 {
		t.Fatalf("expected exactly 2 logins (initial + one refresh), got %d", ts.loginCount())
	}
}

func TestClient_SecondUnauthorizedSurfaces(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})

	_, err := ts.client(t).Sections(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if KindOf(err) != KindUnauthorized {
		t.Fatalf("expected KindUnauthorized, got %s (%v)", KindOf(err), err)
	}
	if ts.loginCount() != 2 {
		t.Fatalf("expected exactly 2 logins before giving up, got %d", ts.loginCount())
	}
}

func TestClient_DecodeFailureKind(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not json")
	})

	_, err := ts.client(t).Sections(context.Background())
	if KindOf(err) != KindDecode {
		t.Fatalf("expected KindDecode, got %s (%v)", KindOf(err), err)
	}
}

func TestClient_TransportFailureKind(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	c := ts.client(t)
	ts.srv.Close()

	_, err := c.Sections(context.Background())
	if KindOf(err) != KindTransport {
		t.Fatalf("expected KindTransport, got %s (%v)", KindOf(err), err)
	}
}

func TestClient_LogoutClearsCredentials(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]string{})
	})
	c := ts.client(t)

	if _, err := c.Sections(context.Background()); err != nil {
		t.Fatalf("Sections: %v", err)
	}

	c.Logout(true)
	_, err := c.Sections(context.Background())
	if KindOf(err) != KindUnauthorized {
		t.Fatalf("expected KindUnauthorized after credential clear, got %v", err)
	}
}

func TestClient_LogoutKeepsCredentials(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]string{})
	})
	c := ts.client(t)

	if _, err := c.Sections(context.Background()); err != nil {
		t.Fatalf("Sections: %v", err)
	}

	c.Logout(false)
	if _, err := c.Sections(context.Background()); err != nil {
		t.Fatalf("expected automatic re-login with kept credentials, got %v", err)
	}
	if ts.loginCount() != 2 {
		t.Fatalf("expected re-login after logout, got %d logins", ts.loginCount())
	}
}

func TestClient_SubmitAndCancelRequest(t *testing.T) {
	var submitted model.DownloadRequest
	var cancelled cancelRequestWrapper
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/post/request":
			json.NewDecoder(r.Body).Decode(&submitted)
		case "/api/post/cancelRequest":
			json.NewDecoder(r.Body).Decode(&cancelled)
		default:
			http.NotFound(w, r)
		}
	})
	c := ts.client(t)

	request := model.DownloadRequest{URL: "u", Name: "Song", Artist: "Artist", Album: "Alb", Section: "Sec"}
	if err := c.SubmitRequest(context.Background(), request); err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}
	if submitted != request {
		t.Fatalf("server saw %+v, expected %+v", submitted, request)
	}

	if err := c.CancelRequest(context.Background(), "Song", "Sec", "Alb"); err != nil {
		t.Fatalf("CancelRequest: %v", err)
	}
	if cancelled.Album != "Alb" {
		t.Fatalf("cancel request must carry the album key, got %+v", cancelled)
	}
}
