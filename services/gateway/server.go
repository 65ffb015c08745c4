// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gateway implements the Memora sync gateway: the hosted side of
// the event store adapter. It serves the record collections and the
// profiles side-table over REST and pushes live changes to connected
// clients over a websocket.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/memoracare/MemoraLocal/services/companion/datatypes"
	"github.com/memoracare/MemoraLocal/services/companion/observability"
	"github.com/memoracare/MemoraLocal/services/companion/store"
)

const shutdownTimeout = 10 * time.Second

// Config holds gateway configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8745".
	Addr string

	// Logger may be nil.
	Logger *slog.Logger
}

// Server is the sync gateway. Records live in an in-memory store; every
// mutation is broadcast to realtime clients through the hub.
type Server struct {
	cfg     Config
	engine  *gin.Engine
	records *store.MemoryStore
	hub     *Hub
	logger  *slog.Logger

	upgrader websocket.Upgrader
}

// NewServer builds the gateway with its routes registered.
func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		cfg:     cfg,
		engine:  gin.New(),
		records: store.NewMemoryStore(),
		hub:     NewHub(logger),
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.engine.Use(gin.Recovery(), s.countRequests)
	s.routes()

	// Every store mutation, regardless of which client performed it,
	// flows out through the hub.
	for _, name := range datatypes.Collections {
		if _, err := s.records.Subscribe(context.Background(), name, s.hub.Broadcast); err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", name, err)
		}
	}
	return s, nil
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("gateway listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/v1")
	v1.GET("/collections/:collection", s.fetchAll)
	v1.POST("/collections/:collection", s.insert)
	v1.PUT("/collections/:collection/:id", s.update)
	v1.DELETE("/collections/:collection/:id", s.remove)
	v1.GET("/profiles/:id", s.getProfile)
	v1.PUT("/profiles/:id", s.putProfile)
	v1.GET("/realtime", s.realtime)
}

// countRequests records per-route request totals.
func (s *Server) countRequests(c *gin.Context) {
	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	observability.RequestsTotal.
		WithLabelValues(route, strconv.Itoa(c.Writer.Status())).
		Inc()
}

// collectionParam validates the :collection path segment.
func collectionParam(c *gin.Context) (datatypes.Collection, bool) {
	name := datatypes.Collection(c.Param("collection"))
	if !name.Valid() {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown collection %q", name)})
		return "", false
	}
	return name, true
}

func (s *Server) fetchAll(c *gin.Context) {
	name, ok := collectionParam(c)
	if !ok {
		return
	}

	events, err := s.records.FetchAll(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) insert(c *gin.Context) {
	name, ok := collectionParam(c)
	if !ok {
		return
	}

	var event datatypes.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if event.Collection == "" {
		event.Collection = name
	}
	if event.Collection != name {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collection mismatch between path and body"})
		return
	}

	// The store assigns id and created_at; pre-validate the payload with
	// placeholders so a malformed record never enters the table.
	probe := event.Clone()
	if probe.ID == "" {
		probe.ID = "pending"
	}
	if probe.CreatedAt.IsZero() {
		probe.CreatedAt = time.Now()
	}
	if err := probe.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	confirmed, err := s.records.Insert(c.Request.Context(), &event)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, confirmed)
}

func (s *Server) update(c *gin.Context) {
	name, ok := collectionParam(c)
	if !ok {
		return
	}

	var event datatypes.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	event.Collection = name
	event.ID = c.Param("id")

	probe := event.Clone()
	if probe.CreatedAt.IsZero() {
		probe.CreatedAt = time.Now()
	}
	if err := probe.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := s.records.Update(c.Request.Context(), &event)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) remove(c *gin.Context) {
	name, ok := collectionParam(c)
	if !ok {
		return
	}

	err := s.records.Delete(c.Request.Context(), name, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getProfile(c *gin.Context) {
	profile, err := s.records.GetProfile(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) putProfile(c *gin.Context) {
	var profile datatypes.Profile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile.ID = c.Param("id")
	if err := profile.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.records.UpsertProfile(c.Request.Context(), &profile); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// realtime upgrades to a websocket and streams changes. The optional
// "collections" query parameter is a comma-separated filter; absent means
// all collections.
func (s *Server) realtime(c *gin.Context) {
	var filter []datatypes.Collection
	if raw := c.Query("collections"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			name := datatypes.Collection(strings.TrimSpace(part))
			if !name.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown collection %q", name)})
				return
			}
			filter = append(filter, name)
		}
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.hub.serve(conn, filter)
}
