package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"i4.energy/across/loramon/at"
	"i4.energy/across/loramon/device"
	"i4.energy/across/loramon/monitor"
)

// Controller is the part of monitor.Monitor the server drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Enqueue(text string)
	ReadTemperature(ctx context.Context) (float64, error)
	SendTemperature(ctx context.Context) (string, error)
	Status() []monitor.DeviceStatus
	Radio() at.RadioConfig
}

// Server handles incoming HTTP requests for controlling the transmitter
// and receiver pair
type Server struct {
	Logger  *slog.Logger
	Monitor Controller

	once   sync.Once
	router chi.Router
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.once.Do(s.setupRoutes)
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/status", s.handleStatus)
	r.Get("/radio", s.handleRadio)
	r.Post("/messages", s.handleMessage)
	r.Get("/temperature", s.handleTemperature)
	r.Post("/temperature/send", s.handleSendTemperature)
	r.Post("/start", s.handleStart)
	r.Post("/stop", s.handleStop)
	s.router = r
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	s.sendJSON(w, ErrorResponse{Message: message}, statusCode)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// temperatureStatus maps a failed temperature read to a response code
func temperatureStatus(err error) int {
	switch {
	case errors.Is(err, device.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, device.ErrTemperatureTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, device.ErrNoTemperature):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	type StatusResponse struct {
		Devices []monitor.DeviceStatus `json:"devices"`
	}
	s.sendJSON(w, StatusResponse{Devices: s.Monitor.Status()}, http.StatusOK)
}

func (s *Server) handleRadio(w http.ResponseWriter, r *http.Request) {
	type Parameter struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	type RadioResponse struct {
		Command    string         `json:"command"`
		Config     at.RadioConfig `json:"config"`
		Parameters []Parameter    `json:"parameters"`
	}

	radio := s.Monitor.Radio()
	resp := RadioResponse{
		Command: strings.TrimSpace(at.RFConfig(radio)),
		Config:  radio,
	}
	for _, p := range radio.Describe() {
		resp.Parameters = append(resp.Parameters, Parameter{Name: p[0], Value: p[1]})
	}
	s.sendJSON(w, resp, http.StatusOK)
}

// handleMessage queues a text on the transmitter
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	type MessageRequest struct {
		Text string `json:"text"`
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Text == "" {
		s.sendError(w, "'text' field is required", http.StatusBadRequest)
		return
	}

	s.Monitor.Enqueue(req.Text)
	s.Logger.Info("Message queued", "length", len(req.Text))

	type QueuedResponse struct {
		Queued string `json:"queued"`
	}
	s.sendJSON(w, QueuedResponse{Queued: req.Text}, http.StatusAccepted)
}

func (s *Server) handleTemperature(w http.ResponseWriter, r *http.Request) {
	value, err := s.Monitor.ReadTemperature(r.Context())
	if err != nil {
		s.Logger.Warn("Temperature read failed", "error", err)
		s.sendError(w, err.Error(), temperatureStatus(err))
		return
	}

	type TemperatureResponse struct {
		Device      string  `json:"device"`
		Temperature float64 `json:"temperature"`
	}
	s.sendJSON(w, TemperatureResponse{
		Device:      device.Transmitter.String(),
		Temperature: value,
	}, http.StatusOK)
}

// handleSendTemperature reads the transmitter temperature and queues it as
// the next message
func (s *Server) handleSendTemperature(w http.ResponseWriter, r *http.Request) {
	text, err := s.Monitor.SendTemperature(r.Context())
	if err != nil {
		s.Logger.Warn("Temperature send failed", "error", err)
		s.sendError(w, err.Error(), temperatureStatus(err))
		return
	}

	type QueuedResponse struct {
		Queued string `json:"queued"`
	}
	s.sendJSON(w, QueuedResponse{Queued: text}, http.StatusAccepted)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.Monitor.Start(r.Context()); err != nil {
		s.Logger.Error("Failed to start devices", "error", err)
		code := http.StatusBadGateway
		if errors.Is(err, device.ErrAlreadyRunning) || errors.Is(err, device.ErrStopped) {
			code = http.StatusConflict
		}
		s.sendError(w, err.Error(), code)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.Monitor.Stop(); err != nil {
		s.Logger.Error("Failed to stop devices", "error", err)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
