package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/richinex/fistop/api"
	"github.com/richinex/fistop/detect"
	"github.com/richinex/fistop/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	timeout = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type call struct {
	token    string
	category string
	items    []string
	batch    bool
}

// fakeLookuper records calls and returns a canned answer.
type fakeLookuper struct {
	mu     sync.Mutex
	calls  []call
	answer json.RawMessage
	err    error
	block  chan struct{}
}

func (f *fakeLookuper) record(c call) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.answer, f.err
}

func (f *fakeLookuper) Lookup(ctx context.Context, token, category, item string) (json.RawMessage, error) {
	return f.record(call{token: token, category: category, items: []string{item}})
}

func (f *fakeLookuper) LookupBatch(ctx context.Context, token, category string, items []string) (json.RawMessage, error) {
	return f.record(call{token: token, category: category, items: items, batch: true})
}

func (f *fakeLookuper) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func newStore(t *testing.T) (*storage.ResultStore, *storage.CurrentPointer) {
	t.Helper()
	kv := storage.NewMemoryKV()
	ptr := storage.NewCurrentPointer(kv)
	store, err := storage.OpenResultStore(context.Background(), kv, ptr, nil)
	require.NoError(t, err)
	return store, ptr
}

func TestResolveType(t *testing.T) {
	tests := []struct {
		name     string
		selected string
		detected detect.Type
		want     string
		wantErr  error
	}{
		{"auto uses detected", Auto, detect.IPv4, "ipv4", nil},
		{"explicit wins", "domain", detect.IPv4, "domain", nil},
		{"explicit with nothing detected", "md5", detect.None, "md5", nil},
		{"auto with nothing detected", Auto, detect.None, "", ErrTypeRequired},
		{"nothing selected", "", detect.IPv4, "", ErrTypeRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveType(tt.selected, tt.detected)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDispatchSingleStoresAndSelects(t *testing.T) {
	ctx := context.Background()
	store, ptr := newStore(t)
	_, err := store.Append(ctx, json.RawMessage(`{"old":1}`))
	require.NoError(t, err)

	fake := &fakeLookuper{answer: json.RawMessage(`{"ok":true}`)}
	d := New(fake, store)

	out, err := d.Dispatch(ctx, "  8.8.8.8 ", "ipv4", false, "secret")
	require.NoError(t, err)

	assert.Equal(t, 1, out.Index)
	assert.Equal(t, []string{"8.8.8.8"}, out.Items)
	assert.Equal(t, []call{{token: "secret", category: "ipv4", items: []string{"8.8.8.8"}}}, fake.Calls())

	cur, err := ptr.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cur)
	assert.JSONEq(t, `{"ok":true}`, string(store.Get(1)))
}

func TestDispatchListUsesBatch(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	fake := &fakeLookuper{answer: json.RawMessage(`[1,2]`)}
	d := New(fake, store)

	out, err := d.Dispatch(ctx, "8.8.8.8  1.1.1.1", "ipv4", true, "secret")
	require.NoError(t, err)

	assert.True(t, out.IsList)
	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].batch)
	assert.Equal(t, []string{"8.8.8.8", "1.1.1.1"}, calls[0].items)
}

func TestDispatchTokenRequiredBeforeNetwork(t *testing.T) {
	store, _ := newStore(t)
	fake := &fakeLookuper{answer: json.RawMessage(`{}`)}
	d := New(fake, store)

	_, err := d.Dispatch(context.Background(), "8.8.8.8", "ipv4", false, "")
	assert.ErrorIs(t, err, ErrTokenRequired)
	assert.Empty(t, fake.Calls())
	assert.Equal(t, 0, store.Count())
}

func TestDispatchEmptyInput(t *testing.T) {
	store, _ := newStore(t)
	fake := &fakeLookuper{}
	d := New(fake, store)

	_, err := d.Dispatch(context.Background(), "   ", "ipv4", true, "secret")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Empty(t, fake.Calls())
}

func TestDispatchRemoteErrorLeavesHistoryUntouched(t *testing.T) {
	ctx := context.Background()
	store, ptr := newStore(t)
	_, err := store.Append(ctx, json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	_, err = ptr.Set(ctx, 0)
	require.NoError(t, err)

	remote := &api.StatusError{StatusCode: 500, Status: "500 Internal Server Error"}
	d := New(&fakeLookuper{err: remote}, store)

	_, err = d.Dispatch(ctx, "example.com", "domain", false, "secret")
	assert.Same(t, remote, err)
	assert.Equal(t, 1, store.Count())

	cur, err := ptr.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, cur)
}

func TestDispatchEndpointMapping(t *testing.T) {
	store, _ := newStore(t)
	fake := &fakeLookuper{answer: json.RawMessage(`{}`)}
	d := New(fake, store, WithEndpoints(map[string]string{"sha256": "hash", "md5": ""}))

	assert.Equal(t, "hash", d.Endpoint("sha256"))
	assert.Equal(t, "md5", d.Endpoint("md5"))
	assert.Equal(t, "ipv4", d.Endpoint("ipv4"))

	out, err := d.Dispatch(context.Background(), "abc", "sha256", false, "t")
	require.NoError(t, err)
	assert.Equal(t, "hash", out.Category)
	assert.Equal(t, "hash", fake.Calls()[0].category)
}

func TestDispatchRejectsConcurrentDispatch(t *testing.T) {
	store, _ := newStore(t)
	fake := &fakeLookuper{answer: json.RawMessage(`{}`), block: make(chan struct{})}
	d := New(fake, store)

	done := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(context.Background(), "8.8.8.8", "ipv4", false, "t")
		done <- err
	}()

	require.Eventually(t, func() bool { return len(fake.Calls()) == 1 }, timeout, tick)

	_, err := d.Dispatch(context.Background(), "1.1.1.1", "ipv4", false, "t")
	assert.ErrorIs(t, err, ErrBusy)

	close(fake.block)
	require.NoError(t, <-done)

	fake.block = nil
	_, err = d.Dispatch(context.Background(), "1.1.1.1", "ipv4", false, "t")
	assert.NoError(t, err)
	assert.Equal(t, 2, store.Count())
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("token checked first", func(t *testing.T) {
		store, _ := newStore(t)
		d := New(&fakeLookuper{}, store)
		_, err := d.Submit(ctx, detect.Detector{}, "", Auto, "")
		assert.ErrorIs(t, err, ErrTokenRequired)
	})

	t.Run("detection disabled needs explicit type", func(t *testing.T) {
		store, _ := newStore(t)
		d := New(&fakeLookuper{}, store)
		_, err := d.Submit(ctx, detect.Detector{Disabled: true}, "8.8.8.8", Auto, "t")
		assert.ErrorIs(t, err, ErrTypeRequired)
	})

	t.Run("mixed list dispatched as other batch", func(t *testing.T) {
		store, _ := newStore(t)
		fake := &fakeLookuper{answer: json.RawMessage(`{}`)}
		d := New(fake, store)
		out, err := d.Submit(ctx, detect.Detector{}, "8.8.8.8 example.com", Auto, "t")
		require.NoError(t, err)
		assert.Equal(t, "other", out.Type)
		assert.True(t, out.IsList)
	})
}

func TestDispatchAgainstHTTPServer(t *testing.T) {
	var (
		gotPath  string
		gotToken string
		gotBody  string
	)
	r := chi.NewRouter()
	r.Post(api.Prefix+"/{category}/", func(w http.ResponseWriter, req *http.Request) {
		data, _ := io.ReadAll(req.Body)
		gotPath, gotToken, gotBody = req.URL.Path, req.Header.Get(api.TokenHeader), string(data)
		_, _ = w.Write([]byte(`{"8.8.8.8":{"asn":15169},"1.1.1.1":{"asn":13335}}`))
	})
	r.Get(api.Prefix+"/{category}/{item}", func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, `{"detail":"unknown"}`, http.StatusNotFound)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	hc := &http.Client{}
	t.Cleanup(hc.CloseIdleConnections)
	client, err := api.NewClient(srv.URL, api.WithHTTPClient(hc))
	require.NoError(t, err)

	ctx := context.Background()
	store, ptr := newStore(t)
	d := New(client, store)

	out, err := d.Submit(ctx, detect.Detector{}, "8.8.8.8 1.1.1.1", Auto, "secret")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/ipv4/", gotPath)
	assert.Equal(t, "secret", gotToken)
	assert.JSONEq(t, `["8.8.8.8","1.1.1.1"]`, gotBody)

	cur, err := ptr.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, out.Index, cur)

	_, err = d.Submit(ctx, detect.Detector{}, "example.com", Auto, "secret")
	var statusErr *api.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, 1, store.Count())
}
