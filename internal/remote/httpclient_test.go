package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmkeeper/farmkeeper/internal/common"
	"github.com/farmkeeper/farmkeeper/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, time.Second, nil)
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "7",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLogin_InstallsBearerToken(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	var pingAuth string

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "anna@hilltop.example", req.Email)
		assert.Equal(t, "s3cret", req.Password)
		writeJSON(w, http.StatusOK, map[string]any{
			"token": token,
			"user": map[string]any{
				"user_id": 7, "email": req.Email, "full_name": "Anna Keller",
				"organization": map[string]any{"id": 1, "name": "Hilltop Co-op"},
			},
		})
	})
	mux.HandleFunc("GET /api/ping", func(w http.ResponseWriter, r *http.Request) {
		pingAuth = r.Header.Get(common.AuthHeaderName)
		w.WriteHeader(http.StatusNoContent)
	})

	c := newTestClient(t, mux)
	require.False(t, c.Authenticated())

	profile, err := c.Login(context.Background(), "anna@hilltop.example", []byte("s3cret"), 0)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, int64(7), profile.UserID)
	assert.Equal(t, "Hilltop Co-op", profile.Organization.Name)
	assert.True(t, c.Authenticated())

	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, "Bearer "+token, pingAuth)

	c.Logout()
	assert.False(t, c.Authenticated())
}

func TestLogin_WrongPassword(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "bad credentials"})
	})

	c := newTestClient(t, mux)
	_, err := c.Login(context.Background(), "anna@hilltop.example", []byte("nope"), 0)
	require.ErrorIs(t, err, common.ErrUnauthorized)
	assert.False(t, c.Authenticated())
}

func TestLogin_OrganizationSelection(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.OrganizationID == 0 {
			writeJSON(w, http.StatusConflict, map[string]any{
				"code": "organization_selection_required",
				"organizations": []map[string]any{
					{"id": 1, "name": "Hilltop Co-op"},
					{"id": 2, "name": "Valley Eggs"},
				},
			})
			return
		}
		assert.Equal(t, int64(2), req.OrganizationID)
		writeJSON(w, http.StatusOK, map[string]any{
			"token": token,
			"user":  map[string]any{"user_id": 7, "email": req.Email},
		})
	})

	c := newTestClient(t, mux)
	_, err := c.Login(context.Background(), "anna@hilltop.example", []byte("s3cret"), 0)

	var sel *OrgSelectionError
	require.ErrorAs(t, err, &sel)
	require.Len(t, sel.Organizations, 2)
	assert.Equal(t, "Valley Eggs", sel.Organizations[1].Name)
	assert.False(t, c.Authenticated())

	_, err = c.Login(context.Background(), "anna@hilltop.example", []byte("s3cret"), sel.Organizations[1].ID)
	require.NoError(t, err)
	assert.True(t, c.Authenticated())
}

func TestCreate_SendsIdempotencyKey(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/farms", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok-create", r.Header.Get(common.IdempotencyKeyHeaderName))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hilltop", body["name"])
		assert.Equal(t, "tok-create", body["client_token"])
		assert.NotContains(t, body, "local_id")
		writeJSON(w, http.StatusCreated, map[string]any{
			"id": 11, "client_token": "tok-create", "name": "Hilltop", "location": "Valley Rd 7",
		})
	})

	c := newTestClient(t, mux)
	farm := &models.Farm{SyncMeta: models.SyncMeta{ClientToken: "tok-create"}, Name: "Hilltop", Location: "Valley Rd 7"}

	item, err := c.Create(context.Background(), farm, 0)
	require.NoError(t, err)
	require.NotNil(t, item.Record.Meta().ServerID)
	assert.Equal(t, int64(11), *item.Record.Meta().ServerID)
}

func TestCreate_ConflictResolvesToExistingRecord(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/farms", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"id": 11, "client_token": "tok-replay", "name": "Hilltop",
		})
	})

	c := newTestClient(t, mux)
	farm := &models.Farm{SyncMeta: models.SyncMeta{ClientToken: "tok-replay"}, Name: "Hilltop"}

	item, err := c.Create(context.Background(), farm, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(11), *item.Record.Meta().ServerID)
}

func TestCreate_ConflictWithoutRecord(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/farms", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]any{"message": "duplicate farm name"})
	})

	c := newTestClient(t, mux)
	farm := &models.Farm{SyncMeta: models.SyncMeta{ClientToken: "tok-dup"}, Name: "Hilltop"}

	_, err := c.Create(context.Background(), farm, 0)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "duplicate farm name")
}

func TestUpdate_PutsToRecordPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/flocks/42", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(9), body["farm_id"])
		assert.NotContains(t, body, "client_token")
		writeJSON(w, http.StatusOK, map[string]any{
			"id": 42, "farm_id": 9, "client_token": "tok-u", "name": "Barn A", "initial_count": 180,
		})
	})

	c := newTestClient(t, mux)
	flock := &models.Flock{SyncMeta: models.SyncMeta{ClientToken: "tok-u"}, Name: "Barn A", InitialCount: 180}

	item, err := c.Update(context.Background(), 42, flock, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), item.ParentServerID)
	assert.Equal(t, int64(180), item.Record.(*models.Flock).InitialCount)
}

func TestDelete(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/farms/11", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /api/farms/12", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "no such farm"})
	})

	c := newTestClient(t, mux)
	require.NoError(t, c.Delete(context.Background(), models.KindFarm, 11))

	err := c.Delete(context.Background(), models.KindFarm, 12)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestList_MapsParentServerIDs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/flocks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 42, "farm_id": 9, "client_token": "t1", "name": "Barn A"},
			{"id": 43, "farm_id": 10, "client_token": "t2", "name": "Barn B"},
		})
	})

	c := newTestClient(t, mux)
	items, err := c.List(context.Background(), models.KindFlock)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(9), items[0].ParentServerID)
	assert.Equal(t, int64(10), items[1].ParentServerID)
	assert.Equal(t, "Barn B", items[1].Record.(*models.Flock).Name)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
		target error
	}{
		{"internal error retryable", http.StatusInternalServerError, map[string]any{"message": "boom"}, ErrUnavailable},
		{"bad gateway retryable", http.StatusBadGateway, nil, ErrUnavailable},
		{"unauthorized", http.StatusUnauthorized, nil, common.ErrUnauthorized},
		{"forbidden", http.StatusForbidden, nil, common.ErrUnauthorized},
		{"not found", http.StatusNotFound, nil, common.ErrNotFound},
		{"unprocessable", http.StatusUnprocessableEntity, map[string]any{"message": "date in the future"}, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /api/ping", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			c := newTestClient(t, mux)
			err := c.Ping(context.Background())
			require.ErrorIs(t, err, tt.target)
		})
	}
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewHTTPClient(url, 200*time.Millisecond, nil)
	err := c.Ping(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestTimeoutIsUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ping", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewHTTPClient(srv.URL, 10*time.Millisecond, nil)
	err := c.Ping(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestCallerCancellationIsNotUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ping", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusNoContent)
	})

	c := newTestClient(t, mux)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Ping(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrUnavailable))
}

func TestExpiredTokenIsNotAuthenticated(t *testing.T) {
	c := NewHTTPClient("http://localhost:0", time.Second, nil)
	c.setToken(signedToken(t, time.Now().Add(-time.Minute)))
	assert.False(t, c.Authenticated())

	c.setToken(signedToken(t, time.Now().Add(time.Minute)))
	assert.True(t, c.Authenticated())

	// Opaque tokens carry no expiry and count as live until the server
	// rejects them.
	c.setToken("opaque-session-token")
	assert.True(t, c.Authenticated())
}
