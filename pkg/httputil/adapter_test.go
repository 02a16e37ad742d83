package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeflare/pgrest/pkg/client"
)

func newUpstream(t *testing.T, handler http.HandlerFunc) *client.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := client.New(srv.URL, client.WithoutMetrics())
	require.NoError(t, err)
	return c
}

func TestResultHandlerRendersRows(t *testing.T) {
	c := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 1, "title": "first"}]`))
	})

	handler := ResultHandler(func(r *http.Request) *client.QueryBuilder {
		return c.From("articles")
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/articles", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "first", rows[0]["title"])
}

func TestResultHandlerEmptyCollectionIsNotAnError(t *testing.T) {
	c := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})

	handler := ResultHandler(func(r *http.Request) *client.QueryBuilder {
		return c.From("articles")
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/articles", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestResultHandlerBuilderMisuse(t *testing.T) {
	c := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should reach the upstream")
	})

	handler := ResultHandler(func(r *http.Request) *client.QueryBuilder {
		return c.From("articles").Limit(-1)
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/articles", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.NotEmpty(t, resp.Message)
}

func TestResultHandlerUpstreamFailure(t *testing.T) {
	c := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "relation does not exist"}`, http.StatusNotFound)
	})

	handler := ResultHandler(func(r *http.Request) *client.QueryBuilder {
		return c.From("nope")
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  *client.Error
		want int
	}{
		{"validation", &client.Error{Kind: client.KindValidation}, http.StatusBadRequest},
		{"not found", &client.Error{Kind: client.KindNotFound}, http.StatusNotFound},
		{"multiple rows", &client.Error{Kind: client.KindMultipleRows}, http.StatusConflict},
		{"timeout", &client.Error{Kind: client.KindTimeout}, http.StatusGatewayTimeout},
		{"cancelled", &client.Error{Kind: client.KindCancelled}, 499},
		{"server with status", &client.Error{Kind: client.KindServer, StatusCode: 503}, http.StatusServiceUnavailable},
		{"server without status", &client.Error{Kind: client.KindServer}, http.StatusBadGateway},
		{"network", &client.Error{Kind: client.KindNetwork}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFromError(tt.err))
		})
	}
}
