package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const detailPageFixture = `<!DOCTYPE html>
<html><body>
<h2>Alpha Holdings LLC</h2>
<div class="card">
  <div class="small muted">Status</div>
  <span class="status">Active</span>
</div>
<div class="card">
  <div class="small muted">Filing Date</div>
  <div>2018-05-01</div>
</div>
<div class="card">
  <div class="small muted">Registered Agent</div>
  <div style="font-weight:600">Jane Q. Agent</div>
  <div class="muted">500 Commerce St, Suite 12</div>
  <div class="muted">Email: <code>jane.agent@example.com</code></div>
</div>
</body></html>`

func TestFetchDetails_ParsesAgentCard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/business/REG-1", r.URL.Path)
		assert.Equal(t, "sess-abc", r.Header.Get("x-search-session"))
		_, _ = w.Write([]byte(detailPageFixture))
	}))
	defer srv.Close()

	details, err := newTestClient(srv).FetchDetails(context.Background(), testSession(), "REG-1")
	require.NoError(t, err)

	assert.Equal(t, "Jane Q. Agent", details.Name)
	assert.Equal(t, "500 Commerce St, Suite 12", details.Address)
	assert.Equal(t, "jane.agent@example.com", details.Email)
}

func TestFetchDetails_EmailWithoutCodeTag(t *testing.T) {
	page := `<html><body>
	<div class="card">
	  <div class="small muted">Registered Agent</div>
	  <div>R. Smith</div>
	  <div class="muted">Email: r.smith@example.com</div>
	</div>
	</body></html>`

	details, err := parseDetailPage([]byte(page))
	require.NoError(t, err)
	assert.Equal(t, "R. Smith", details.Name)
	assert.Equal(t, "r.smith@example.com", details.Email)
	assert.Empty(t, details.Address)
}

func TestFetchDetails_MissingAgentCard(t *testing.T) {
	page := `<html><body><h2>Bare Corp</h2>
	<div class="card"><div class="small muted">Status</div><span class="status">Active</span></div>
	</body></html>`

	details, err := parseDetailPage([]byte(page))
	require.NoError(t, err)
	assert.Empty(t, details.Name)
	assert.Empty(t, details.Address)
	assert.Empty(t, details.Email)
}

func TestFetchDetails_NotFoundBody(t *testing.T) {
	_, err := parseDetailPage([]byte(`<html><body><p>No business found</p></body></html>`))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchDetails_NotFoundStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchDetails(context.Background(), testSession(), "REG-GONE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchDetails_SessionExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchDetails(context.Background(), testSession(), "REG-1")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestFetchDetails_EmptyID(t *testing.T) {
	c := NewClient("http://registry.invalid", WithRateLimit(0))
	_, err := c.FetchDetails(context.Background(), testSession(), "")
	assert.Error(t, err)
}
