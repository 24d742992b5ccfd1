package mirror

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkomarov/curio/internal/common"
	"github.com/dkomarov/curio/internal/models"
)

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(expiresAt)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestPut(t *testing.T) {
	var gotDoc Document
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v1/item/item1", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotDoc))
		gotDoc.ServerMillis = 12345
		_ = json.NewEncoder(w).Encode(gotDoc)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	millis, err := c.Put(context.Background(), Document{
		Kind:      models.KindItem,
		ID:        "item1",
		Payload:   json.RawMessage(`{"name":"Charizard"}`),
		Timestamp: 99,
		Origin:    "device-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12345), millis)
	assert.Equal(t, "device-1", gotDoc.Origin)
}

func TestGet_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	_, err := c.Get(context.Background(), models.KindItem, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDelete_AbsentIsNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	assert.NoError(t, c.Delete(context.Background(), models.KindItem, "missing"))
}

func TestChanges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/changes", r.URL.Path)
		assert.Equal(t, "cursor-41", r.URL.Query().Get("since"))
		_ = json.NewEncoder(w).Encode(changesResponse{
			Documents: []Document{{Kind: models.KindItem, ID: "item1"}},
			Next:      "cursor-42",
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	docs, next, err := c.Changes(context.Background(), "cursor-41")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "item1", docs[0].ID)
	assert.Equal(t, "cursor-42", next)
}

func TestPing_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	err := c.Ping(context.Background())
	assert.ErrorIs(t, err, common.ErrSyncUnreachable)
}

func TestPing_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	err := c.Ping(context.Background())
	assert.ErrorIs(t, err, common.ErrSyncUnreachable)
}

func TestAuth_BearerHeaderAndCaching(t *testing.T) {
	var issued atomic.Int32
	token := signedToken(t, time.Now().Add(time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+token, r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, func(ctx context.Context) (string, error) {
		issued.Add(1)
		return token, nil
	})

	require.NoError(t, c.Ping(context.Background()))
	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, int32(1), issued.Load(), "token with a far exp is reused")
}

func TestAuth_ExpiredTokenRefreshed(t *testing.T) {
	var issued atomic.Int32
	stale := signedToken(t, time.Now().Add(time.Second))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, func(ctx context.Context) (string, error) {
		issued.Add(1)
		return stale, nil
	})

	// An exp inside the refresh skew forces a new token on every request.
	require.NoError(t, c.Ping(context.Background()))
	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, int32(2), issued.Load())
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	assert.Equal(t, exp, tokenExpiry(signedToken(t, exp)))

	assert.True(t, tokenExpiry("opaque-api-key").IsZero(), "non-JWT tokens never refresh proactively")
}
