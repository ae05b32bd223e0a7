package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorded is what the fake server saw for the last request.
type recorded struct {
	method    string
	path      string
	token     string
	requestID string
	body      string
}

func newFakeAPI(t *testing.T) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	capture := func(r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		*rec = recorded{
			method:    r.Method,
			path:      r.URL.EscapedPath(),
			token:     r.Header.Get(TokenHeader),
			requestID: r.Header.Get(RequestIDHeader),
			body:      string(data),
		}
	}

	r := chi.NewRouter()
	r.Route(Prefix, func(r chi.Router) {
		r.Get("/server/info/{kind}/", func(w http.ResponseWriter, req *http.Request) {
			capture(req)
			_, _ = w.Write([]byte(`{"info":"` + chi.URLParam(req, "kind") + `"}`))
		})
		r.Get("/server/{cmd}/", func(w http.ResponseWriter, req *http.Request) {
			capture(req)
			_, _ = w.Write([]byte(`{"status":0}`))
		})
		r.Put("/server/tokens/", func(w http.ResponseWriter, req *http.Request) {
			capture(req)
			_, _ = w.Write([]byte(`{"status":"added"}`))
		})
		r.Delete("/server/tokens/", func(w http.ResponseWriter, req *http.Request) {
			capture(req)
			_, _ = w.Write([]byte(`{"status":"deleted"}`))
		})
		r.Post("/{category}/", func(w http.ResponseWriter, req *http.Request) {
			capture(req)
			_, _ = w.Write([]byte(`{"batch":true}`))
		})
		r.Get("/{category}/*", func(w http.ResponseWriter, req *http.Request) {
			capture(req)
			switch chi.URLParam(req, "category") {
			case "forbidden":
				http.Error(w, `{"detail":"bad token"}`, http.StatusForbidden)
			case "garbage":
				_, _ = w.Write([]byte("<html>oops</html>"))
			default:
				_, _ = w.Write([]byte(`{"ok":true}`))
			}
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, rec
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	t.Cleanup(c.http.CloseIdleConnections)
	return c
}

func TestLookupSingle(t *testing.T) {
	srv, rec := newFakeAPI(t)
	c := newTestClient(t, srv)

	res, err := c.Lookup(context.Background(), "secret", "domain", "a b/c")
	require.NoError(t, err)

	assert.JSONEq(t, `{"ok":true}`, string(res))
	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/api/v1/domain/a%20b%2Fc", rec.path)
	assert.Equal(t, "secret", rec.token)
	assert.NotEmpty(t, rec.requestID)
}

func TestLookupBatch(t *testing.T) {
	srv, rec := newFakeAPI(t)
	c := newTestClient(t, srv)

	res, err := c.LookupBatch(context.Background(), "secret", "ipv4", []string{"8.8.8.8", "1.1.1.1"})
	require.NoError(t, err)

	assert.JSONEq(t, `{"batch":true}`, string(res))
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/api/v1/ipv4/", rec.path)
	assert.JSONEq(t, `["8.8.8.8","1.1.1.1"]`, rec.body)
}

func TestLookupStatusError(t *testing.T) {
	srv, _ := newFakeAPI(t)
	c := newTestClient(t, srv)

	_, err := c.Lookup(context.Background(), "bad", "forbidden", "x")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr), "expected *StatusError, got %v", err)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "bad token")
	assert.Contains(t, err.Error(), "403")
}

func TestLookupUnparseable(t *testing.T) {
	srv, _ := newFakeAPI(t)
	c := newTestClient(t, srv)

	_, err := c.Lookup(context.Background(), "secret", "garbage", "x")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestLookupTransportError(t *testing.T) {
	srv, _ := newFakeAPI(t)
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.Lookup(context.Background(), "secret", "ipv4", "8.8.8.8")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestInfoAndCommands(t *testing.T) {
	srv, rec := newFakeAPI(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	res, err := c.Info(ctx, "admin", InfoServicesMore)
	require.NoError(t, err)
	assert.JSONEq(t, `{"info":"services2"}`, string(res))
	assert.Equal(t, "/api/v1/server/info/services2/", rec.path)

	_, err = c.Info(ctx, "admin", InfoKind("bogus"))
	assert.Error(t, err)

	_, err = c.Command(ctx, "admin", CommandReloadTokens)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/server/reload_tokens/", rec.path)

	_, err = c.Command(ctx, "admin", Command("format_disk"))
	assert.Error(t, err)
}

func TestTokenAdministration(t *testing.T) {
	srv, rec := newFakeAPI(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	payload := TokensPayload{User: "xxxxuser1xxxx", UserServices: []any{0, "whois"}}
	res, err := c.PutTokens(ctx, "admin", payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"added"}`, string(res))
	assert.Equal(t, http.MethodPut, rec.method)
	assert.JSONEq(t, `{"user":"xxxxuser1xxxx","user_services":[0,"whois"]}`, rec.body)

	_, err = c.DeleteTokens(ctx, "admin", TokensPayload{Group: "g"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, rec.method)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(rec.body), &body))
	assert.Equal(t, map[string]any{"group": "g"}, body)
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://127.0.0.1:80", "http://127.0.0.1:80", false},
		{"HTTPS://Fistop.Example.org/", "https://fistop.example.org", false},
		{"http://localhost:8000", "http://127.0.0.1:8000", false},
		{"http://localhost:8000/localhost", "http://127.0.0.1:8000/127.0.0.1", false},
		{"ftp://example.org", "", true},
		{"example.org", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeBaseURL(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestTimeoutDoesNotModifyCallerClient(t *testing.T) {
	hc := &http.Client{Timeout: time.Second}
	c, err := NewClient("http://127.0.0.1:80", WithHTTPClient(hc), WithTimeout(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, time.Second, hc.Timeout)
	assert.Equal(t, 5*time.Second, c.http.Timeout)
	assert.NotSame(t, hc, c.http)

	same, err := NewClient("http://127.0.0.1:80", WithHTTPClient(hc))
	require.NoError(t, err)
	assert.Same(t, hc, same.http)
}

func TestNilHTTPClientKeepsDefault(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:80", WithHTTPClient(nil), WithTimeout(2*time.Second))
	require.NoError(t, err)
	require.NotNil(t, c.http)
	assert.Equal(t, 2*time.Second, c.http.Timeout)
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "http://h/api/v1/ipv4/", joinURL("http://h/", "/api/v1", "ipv4", "/"))
	assert.Equal(t, "http://h/api/v1/server/info/groups/", joinURL("http://h", "/api/v1", "/server/info/groups/"))
}

func TestTokensPayloadIsEmpty(t *testing.T) {
	assert.True(t, TokensPayload{}.IsEmpty())
	assert.False(t, TokensPayload{Admin: "a"}.IsEmpty())
}
