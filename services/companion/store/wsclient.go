// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/memoracare/MemoraLocal/services/companion/datatypes"
)

// reconnectDelay precedes the single automatic redial after the realtime
// stream drops.
const reconnectDelay = 2 * time.Second

// RemoteConfig configures a RemoteStore.
type RemoteConfig struct {
	// BaseURL is the gateway root, e.g. "http://localhost:8745".
	BaseURL string

	// HTTPClient overrides the default client. May be nil.
	HTTPClient *http.Client

	// Logger may be nil.
	Logger *slog.Logger
}

// RemoteStore speaks to the Memora sync gateway: REST for records and
// profiles, one shared websocket for the live change stream.
//
// Network failures surface as ErrTransientIO so the reconciliation layer
// can apply its retry-once policy. A dropped realtime stream is redialed
// once; if that also fails, subscriptions go silent and the session serves
// cached state until restarted.
//
// # Thread Safety
//
// RemoteStore is safe for concurrent use.
type RemoteStore struct {
	baseURL string
	wsURL   string
	client  *http.Client
	logger  *slog.Logger

	mu      sync.Mutex
	subs    map[string]*remoteSub
	conn    *websocket.Conn
	dialing bool
	closed  bool
}

type remoteSub struct {
	collection datatypes.Collection
	handler    ChangeHandler
}

// NewRemoteStore creates a client for the gateway at cfg.BaseURL. No
// connection is made until the first Subscribe.
func NewRemoteStore(cfg RemoteConfig) (*RemoteStore, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	wsURL := base
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	default:
		return nil, fmt.Errorf("base URL must be http or https, got %q", cfg.BaseURL)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RemoteStore{
		baseURL: base,
		wsURL:   wsURL + "/v1/realtime",
		client:  client,
		logger:  logger,
		subs:    make(map[string]*remoteSub),
	}, nil
}

// FetchAll returns the collection snapshot from the gateway.
func (r *RemoteStore) FetchAll(ctx context.Context, collection datatypes.Collection) ([]*datatypes.Event, error) {
	var out struct {
		Events []*datatypes.Event `json:"events"`
	}
	err := r.doJSON(ctx, http.MethodGet, "/v1/collections/"+string(collection), nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Events, nil
}

// Insert persists a record and returns the confirmed event.
func (r *RemoteStore) Insert(ctx context.Context, event *datatypes.Event) (*datatypes.Event, error) {
	var confirmed datatypes.Event
	err := r.doJSON(ctx, http.MethodPost, "/v1/collections/"+string(event.Collection), event, &confirmed)
	if err != nil {
		return nil, err
	}
	return &confirmed, nil
}

// Update replaces the record with the same id.
func (r *RemoteStore) Update(ctx context.Context, event *datatypes.Event) (*datatypes.Event, error) {
	var updated datatypes.Event
	path := fmt.Sprintf("/v1/collections/%s/%s", event.Collection, event.ID)
	err := r.doJSON(ctx, http.MethodPut, path, event, &updated)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a record by id.
func (r *RemoteStore) Delete(ctx context.Context, collection datatypes.Collection, id string) error {
	path := fmt.Sprintf("/v1/collections/%s/%s", collection, id)
	return r.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// GetProfile returns the profile row for an identity.
func (r *RemoteStore) GetProfile(ctx context.Context, id string) (*datatypes.Profile, error) {
	var profile datatypes.Profile
	if err := r.doJSON(ctx, http.MethodGet, "/v1/profiles/"+id, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpsertProfile creates or replaces the profile row.
func (r *RemoteStore) UpsertProfile(ctx context.Context, profile *datatypes.Profile) error {
	return r.doJSON(ctx, http.MethodPut, "/v1/profiles/"+profile.ID, profile, nil)
}

// Subscribe registers a live change handler. The first subscription dials
// the shared realtime websocket.
func (r *RemoteStore) Subscribe(ctx context.Context, collection datatypes.Collection, handler ChangeHandler) (Unsubscribe, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrStoreClosed
	}
	id := uuid.NewString()
	r.subs[id] = &remoteSub{collection: collection, handler: handler}
	needDial := r.conn == nil && !r.dialing
	if needDial {
		r.dialing = true
	}
	r.mu.Unlock()

	if needDial {
		if err := r.dial(ctx); err != nil {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: dial realtime: %v", ErrTransientIO, err)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
		})
	}, nil
}

// Close shuts the client down. Outstanding subscriptions stop receiving.
func (r *RemoteStore) Close() {
	r.mu.Lock()
	r.closed = true
	conn := r.conn
	r.conn = nil
	r.subs = make(map[string]*remoteSub)
	r.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (r *RemoteStore) dial(ctx context.Context) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, r.wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	r.mu.Lock()
	r.dialing = false
	if err == nil {
		if r.closed {
			r.mu.Unlock()
			_ = conn.Close()
			return ErrStoreClosed
		}
		r.conn = conn
	}
	r.mu.Unlock()

	if err != nil {
		return err
	}
	go r.readLoop(conn)
	return nil
}

// readLoop dispatches change frames until the connection drops, then
// redials once.
func (r *RemoteStore) readLoop(conn *websocket.Conn) {
	for {
		var change Change
		if err := conn.ReadJSON(&change); err != nil {
			r.mu.Lock()
			closed := r.closed
			if r.conn == conn {
				r.conn = nil
			}
			hasSubs := len(r.subs) > 0
			if !closed && hasSubs {
				r.dialing = true
			}
			r.mu.Unlock()

			if closed || !hasSubs {
				return
			}

			r.logger.Warn("realtime stream dropped, redialing once", "error", err)
			time.Sleep(reconnectDelay)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			dialErr := r.dial(ctx)
			cancel()
			if dialErr != nil {
				r.logger.Error("realtime redial failed, live updates stopped", "error", dialErr)
			}
			return
		}
		r.dispatch(change)
	}
}

func (r *RemoteStore) dispatch(change Change) {
	r.mu.Lock()
	handlers := make([]ChangeHandler, 0, len(r.subs))
	for _, sub := range r.subs {
		if sub.collection == change.Collection {
			handlers = append(handlers, sub.handler)
		}
	}
	r.mu.Unlock()

	for _, h := range handlers {
		h(change)
	}
}

// doJSON performs one REST call, mapping transport and status failures to
// the store error taxonomy.
func (r *RemoteStore) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransientIO, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s returned %d", ErrTransientIO, method, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%s %s returned %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

var (
	_ EventStore   = (*RemoteStore)(nil)
	_ ProfileStore = (*RemoteStore)(nil)
)
