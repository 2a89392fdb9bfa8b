package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/identity-service/internal/domain/entity"
)

type recorded struct {
	method, path string
	body         map[string]any
}

type fakeES struct {
	mu       sync.Mutex
	requests []recorded
	handle   func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if b, _ := io.ReadAll(r.Body); len(b) > 0 {
		_ = json.Unmarshal(b, &body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, recorded{method: r.Method, path: r.URL.Path, body: body})
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	if f.handle != nil {
		f.handle(w, r)
		return
	}
	_, _ = io.WriteString(w, `{}`)
}

func (f *fakeES) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestIndex(t *testing.T, f *fakeES) *IdentityIndex {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewIdentityIndex(es, "identities")
}

func TestIndex_WritesDocument(t *testing.T) {
	f := &fakeES{}
	x := newTestIndex(t, f)
	i, err := entity.NewIdentity("Ann", "ann@example.com", "+5215512345678", "goma800101ab1", "s", entity.RoleAdmin, time.Now())
	require.NoError(t, err)

	require.NoError(t, x.Index(context.Background(), i))

	req := f.last()
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/identities/_doc/"+i.ID().String(), req.path)
	assert.Equal(t, "ann@example.com", req.body["email"])
	assert.Equal(t, "GOMA800101AB1", req.body["tax_id"])
	assert.Equal(t, "Admin", req.body["role"])
	assert.Equal(t, false, req.body["verified"])
}

func TestRemove_IgnoresMissingDocument(t *testing.T) {
	f := &fakeES{handle: func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"result":"not_found"}`)
	}}
	x := newTestIndex(t, f)

	assert.NoError(t, x.Remove(context.Background(), "abc"))
	assert.Equal(t, http.MethodDelete, f.last().method)
	assert.Equal(t, "/identities/_doc/abc", f.last().path)
}

func TestSearch_ReturnsSources(t *testing.T) {
	f := &fakeES{handle: func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"hits":{"hits":[
			{"_source":{"id":"1","name":"Ann"}},
			{"_source":{"id":"2","name":"Annette"}}
		]}}`)
	}}
	x := newTestIndex(t, f)

	hits, err := x.Search(context.Background(), "ann", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Annette", hits[1]["name"])

	req := f.last()
	assert.True(t, strings.HasSuffix(req.path, "/identities/_search"), req.path)
	assert.EqualValues(t, 5, req.body["size"])
	mm := req.body["query"].(map[string]any)["multi_match"].(map[string]any)
	assert.Equal(t, "ann", mm["query"])
}

func TestSearch_ErrorStatus(t *testing.T) {
	f := &fakeES{handle: func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"boom"}`)
	}}
	x := newTestIndex(t, f)

	_, err := x.Search(context.Background(), "ann", 5)
	assert.Error(t, err)
}

func TestEnsureIndex_CreatesWhenMissing(t *testing.T) {
	f := &fakeES{}
	f.handle = func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	}
	x := newTestIndex(t, f)

	require.NoError(t, x.EnsureIndex(context.Background()))
	req := f.last()
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/identities", req.path)
	assert.Contains(t, req.body, "mappings")
}
