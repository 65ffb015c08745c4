// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoracare/MemoraLocal/services/companion/datatypes"
	"github.com/memoracare/MemoraLocal/services/companion/store"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s, err := NewServer(Config{Addr: ":0"})
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func postEvent(t *testing.T, ts *httptest.Server, collection string, body map[string]any) map[string]any {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/v1/collections/"+collection, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var confirmed map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&confirmed))
	return confirmed
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInsertAndFetchAll(t *testing.T) {
	_, ts := newTestServer(t)

	confirmed := postEvent(t, ts, "messages", map[string]any{
		"collection": "messages",
		"author_id":  "user-1",
		"text":       "ciao",
		"sender_id":  "user-1",
	})
	assert.NotEmpty(t, confirmed["id"])
	assert.NotEmpty(t, confirmed["created_at"])

	resp, err := http.Get(ts.URL + "/v1/collections/messages")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Events []map[string]any `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Events, 1)
	assert.Equal(t, confirmed["id"], out.Events[0]["id"])
	assert.Equal(t, "ciao", out.Events[0]["text"])
}

func TestInsertRejectsMalformed(t *testing.T) {
	_, ts := newTestServer(t)

	// A comment without post_id fails boundary validation.
	data, _ := json.Marshal(map[string]any{"collection": "comments", "text": "bel post"})
	resp, err := http.Post(ts.URL+"/v1/collections/comments", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInsertCollectionMismatch(t *testing.T) {
	_, ts := newTestServer(t)

	data, _ := json.Marshal(map[string]any{
		"collection": "posts",
		"text":       "x",
		"sender_id":  "user-1",
	})
	resp, err := http.Post(ts.URL+"/v1/collections/messages", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownCollection(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/collections/diary")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateAndDelete(t *testing.T) {
	_, ts := newTestServer(t)

	confirmed := postEvent(t, ts, "messages", map[string]any{
		"collection": "messages",
		"text":       "originale",
		"sender_id":  "user-1",
	})
	id := confirmed["id"].(string)

	data, _ := json.Marshal(map[string]any{
		"collection": "messages",
		"text":       "corretto",
		"sender_id":  "user-1",
		"created_at": confirmed["created_at"],
	})
	req, err := http.NewRequest(http.MethodPut, ts.URL+"/v1/collections/messages/"+id, bytes.NewReader(data))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err = http.NewRequest(http.MethodDelete, ts.URL+"/v1/collections/messages/"+id, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Second delete: already gone.
	resp, err = http.DefaultClient.Do(req.Clone(req.Context()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProfilesRoundTrip(t *testing.T) {
	_, ts := newTestServer(t)

	data, _ := json.Marshal(map[string]any{
		"display_name": "Maria Rossi",
		"role":         "patient",
		"current_mood": "happy",
	})
	req, err := http.NewRequest(http.MethodPut, ts.URL+"/v1/profiles/patient-1", bytes.NewReader(data))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/v1/profiles/patient-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var profile datatypes.Profile
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&profile))
	assert.Equal(t, "Maria Rossi", profile.DisplayName)
	assert.Equal(t, "happy", profile.CurrentMood)
}

func TestProfileNotFound(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/profiles/ghost")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestRealtimeBroadcast: a mutation performed over REST reaches a
// connected websocket client as a change frame.
func TestRealtimeBroadcast(t *testing.T) {
	s, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/realtime"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	confirmed := postEvent(t, ts, "posts", map[string]any{
		"collection":  "posts",
		"text":        "foto della gita",
		"author_name": "Luigi Verdi",
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var change store.Change
	require.NoError(t, conn.ReadJSON(&change))
	assert.Equal(t, store.ChangeInsert, change.Kind)
	assert.Equal(t, datatypes.CollectionPosts, change.Collection)
	assert.Equal(t, confirmed["id"], change.ID)
	require.NotNil(t, change.Event)
	assert.Equal(t, "foto della gita", change.Event.Post.Text)
}

// TestRealtimeCollectionFilter: a client filtered to messages never sees
// post changes.
func TestRealtimeCollectionFilter(t *testing.T) {
	s, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/realtime?collections=messages"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	postEvent(t, ts, "posts", map[string]any{
		"collection":  "posts",
		"text":        "solo per il feed",
		"author_name": "Luigi Verdi",
	})
	postEvent(t, ts, "messages", map[string]any{
		"collection": "messages",
		"text":       "per la chat",
		"sender_id":  "user-1",
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var change store.Change
	require.NoError(t, conn.ReadJSON(&change))
	assert.Equal(t, datatypes.CollectionMessages, change.Collection)
}

func TestRealtimeRejectsUnknownFilter(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/realtime?collections=diary")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
