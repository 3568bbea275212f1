package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vincentbai/browsetrace-core/internal/database"
	"github.com/vincentbai/browsetrace-core/internal/denoise"
	"github.com/vincentbai/browsetrace-core/internal/engine"
	"github.com/vincentbai/browsetrace-core/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	AppName = "browsetrace-core"
	Version = "0.2.0"

	defaultSinkLimit = 100
	maxBodyBytes     = 8 << 20
)

type Server struct {
	engine  *engine.Engine
	db      *database.Database
	address string
	logger  *log.Logger
	server  *http.Server
	now     func() time.Time
}

func NewServer(core *engine.Engine, db *database.Database, address string, logger *log.Logger) *Server {
	return &Server{
		engine:  core,
		db:      db,
		address: address,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

type healthResponse struct {
	Status    string       `json:"status"`
	AppName   string       `json:"app_name"`
	Version   string       `json:"version"`
	Timestamp time.Time    `json:"timestamp"`
	Engine    engine.Stats `json:"engine"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		AppName:   AppName,
		Version:   Version,
		Timestamp: s.now().UTC(),
		Engine:    s.engine.Stats(),
	})
}

// handleMessages accepts the adapter message contract: events, queries and
// field focus/blur notifications.
func (s *Server) handleMessages(w http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, request.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	reply, err := s.engine.HandleMessage(context.WithoutCancel(request.Context()), body)
	switch {
	case errors.Is(err, engine.ErrMalformedMessage), errors.Is(err, engine.ErrUnknownMessage):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.logger.Error("handle message", "err", err)
		http.Error(w, "Failed to handle message", http.StatusInternalServerError)
		return
	}
	if reply == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleEvents(w http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	limit, ok := parseLimit(w, request, 0)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, models.EventsResponse{Events: s.engine.Query(request.Context(), limit)})
}

// handleExport renders recent events in the format the HTTP sink consumes.
func (s *Server) handleExport(w http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	limit, ok := parseLimit(w, request, 0)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, models.Batch{
		Events:    s.engine.Query(request.Context(), limit),
		Timestamp: s.now().UnixMilli(),
	})
}

type activatedNotification struct {
	TabID    *int `json:"tabId"`
	WindowID *int `json:"windowId"`
}

type removedNotification struct {
	TabID    *int `json:"tabId"`
	WindowID *int `json:"windowId"`
}

type updatedNotification struct {
	TabID    *int   `json:"tabId"`
	WindowID *int   `json:"windowId"`
	URL      string `json:"url"`
	Title    string `json:"title"`
}

func (s *Server) handleTabActivated(w http.ResponseWriter, request *http.Request) {
	var notification activatedNotification
	if !decodePost(w, request, &notification) {
		return
	}
	if notification.TabID == nil || notification.WindowID == nil {
		http.Error(w, "tabId and windowId are required", http.StatusBadRequest)
		return
	}
	s.engine.OnTabActivated(context.WithoutCancel(request.Context()), *notification.WindowID, *notification.TabID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTabRemoved(w http.ResponseWriter, request *http.Request) {
	var notification removedNotification
	if !decodePost(w, request, &notification) {
		return
	}
	if notification.TabID == nil {
		http.Error(w, "tabId is required", http.StatusBadRequest)
		return
	}
	s.engine.OnTabRemoved(context.WithoutCancel(request.Context()), *notification.TabID, notification.WindowID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTabUpdated(w http.ResponseWriter, request *http.Request) {
	var notification updatedNotification
	if !decodePost(w, request, &notification) {
		return
	}
	if notification.TabID == nil {
		http.Error(w, "tabId is required", http.StatusBadRequest)
		return
	}
	s.engine.OnTabUpdated(context.WithoutCancel(request.Context()), engine.TabUpdate{
		TabID:    *notification.TabID,
		WindowID: notification.WindowID,
		URL:      notification.URL,
		Title:    notification.Title,
	})
	w.WriteHeader(http.StatusNoContent)
}

type sinkResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	ProcessedCount int    `json:"processed_count"`
}

// handleInteractions is the export sink: POST stores a batch, GET lists stored
// events, optionally with noise removed.
func (s *Server) handleInteractions(w http.ResponseWriter, request *http.Request) {
	switch request.Method {
	case http.MethodPost:
		var batch models.Batch
		if err := json.NewDecoder(http.MaxBytesReader(w, request.Body, maxBodyBytes)).Decode(&batch); err != nil {
			http.Error(w, "Invalid JSON format", http.StatusBadRequest)
			return
		}
		inserted, err := s.db.InsertBatch(batch)
		if err != nil {
			s.logger.Error("store batch", "events", len(batch.Events), "err", err)
			http.Error(w, "Failed to store events", http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, http.StatusOK, sinkResponse{
			Success:        true,
			Message:        fmt.Sprintf("Processed %d events (%d new)", len(batch.Events), inserted),
			ProcessedCount: len(batch.Events),
		})
	case http.MethodGet:
		limit, ok := parseLimit(w, request, defaultSinkLimit)
		if !ok {
			return
		}
		clean := false
		if raw := request.URL.Query().Get("denoise"); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				http.Error(w, "denoise must be a boolean", http.StatusBadRequest)
				return
			}
			clean = parsed
		}
		events, err := s.db.RecentInteractions(request.Context(), limit)
		if err != nil {
			s.logger.Error("list interactions", "err", err)
			http.Error(w, "Failed to load events", http.StatusInternalServerError)
			return
		}
		if clean {
			events = newestFirst(denoise.Filter(events))
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"events": events, "limit": limit, "denoised": clean})
	default:
		http.Error(w, "GET or POST only", http.StatusMethodNotAllowed)
	}
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/messages", s.handleMessages)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/export", s.handleExport)
	mux.HandleFunc("/tabs/activated", s.handleTabActivated)
	mux.HandleFunc("/tabs/removed", s.handleTabRemoved)
	mux.HandleFunc("/tabs/updated", s.handleTabUpdated)
	mux.HandleFunc("/api/v1/interactions", s.handleInteractions)
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.address, err)
	}
	s.server = &http.Server{
		Handler:      s.setupRoutes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		s.logger.Info("BrowserTrace core listening", "address", listener.Addr().String())
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		s.logger.Info("Shutting down server...")
		shutdownContext, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownContext); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}
	s.logger.Info("Server exited")
	return nil
}

func decodePost(w http.ResponseWriter, request *http.Request, into any) bool {
	if request.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, request.Body, maxBodyBytes)).Decode(into); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return false
	}
	return true
}

func parseLimit(w http.ResponseWriter, request *http.Request, fallback int) (int, bool) {
	raw := request.URL.Query().Get("limit")
	if raw == "" {
		return fallback, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return limit, true
}

func newestFirst(events []models.InteractionEvent) []models.InteractionEvent {
	slices.Reverse(events)
	return events
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		s.logger.Error("write response", "err", err)
	}
}
