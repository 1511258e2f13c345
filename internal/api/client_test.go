package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerwell/chatclient/internal/model"
	"github.com/peerwell/chatclient/internal/session"
)

func testSession() session.Session {
	return session.New(uuid.New(), "Sam Lee", "test-token")
}

func TestRosterDecodesConnections(t *testing.T) {
	peerID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/connections/", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "user_id": peerID.String(), "full_name": "Priya Sharma", "status": "Pending", "specialty": "Anxiety"},
			{"id": 2, "user_id": uuid.NewString(), "full_name": "Dan Ross", "status": "Accepted"},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, testSession())
	conns, err := client.Roster(context.Background())
	require.NoError(t, err)

	require.Len(t, conns, 2)
	assert.Equal(t, "Priya Sharma", conns[0].FullName)
	assert.Equal(t, peerID, conns[0].UserID)
	assert.Equal(t, model.StatusPending, conns[0].Status)
	assert.False(t, conns[0].ChatEligible())
	assert.True(t, conns[1].ChatEligible())
}

func TestResolveRoom(t *testing.T) {
	peerID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/start/", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, peerID.String(), body["recipient_id"])

		json.NewEncoder(w).Encode(map[string]int64{"id": 42})
	}))
	defer srv.Close()

	client := New(srv.URL, testSession())
	roomID, err := client.ResolveRoom(context.Background(), peerID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), roomID)
}

func TestHistoryPreservesServerOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/42/messages/", r.URL.Path)
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 3, "content": "third", "author_full_name": "Priya Sharma"},
			{"id": 1, "content": "first", "author_full_name": "Sam Lee"},
			{"id": 2, "content": "second", "author_full_name": "Priya Sharma"},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, testSession())
	msgs, err := client.History(context.Background(), 42)
	require.NoError(t, err)

	// Server order is trusted as chronological; the client must not re-sort.
	require.Len(t, msgs, 3)
	assert.Equal(t, []int64{3, 1, 2}, []int64{msgs[0].ID, msgs[1].ID, msgs[2].ID})
}

func TestUnreadCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/unread-counts/", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]int{"42": 3, "7": 0})
	}))
	defer srv.Close()

	client := New(srv.URL, testSession())
	counts, err := client.UnreadCounts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[int64]int{42: 3, 7: 0}, counts)
}

func TestMarkRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/42/mark-read/", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}))
	defer srv.Close()

	client := New(srv.URL, testSession())
	assert.NoError(t, client.MarkRead(context.Background(), 42))
}

func TestRespond(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/connections/respond/", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(5), body["connection_id"])
		assert.Equal(t, "accept", body["action"])

		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}))
	defer srv.Close()

	client := New(srv.URL, testSession())
	assert.NoError(t, client.Respond(context.Background(), 5, ActionAccept))
}

func TestMissingTokenFailsWithoutRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	client := New(srv.URL, session.New(uuid.New(), "Sam Lee", ""))
	_, err := client.Roster(context.Background())

	assert.ErrorIs(t, err, session.ErrNoToken)
	assert.Equal(t, int32(0), hits.Load())
}

func TestNonSuccessStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	client := New(srv.URL, testSession())
	_, err := client.History(context.Background(), 42)

	assert.ErrorContains(t, err, "403")
}
