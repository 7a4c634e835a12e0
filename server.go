package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"i4.energy/across/smsbridge/gateway"
)

// maxBodySize bounds a /send request. A 480 character message written as
// escaped surrogate pairs plus the phone number fits.
const maxBodySize = 8 << 10

// Submitter accepts an SMS for delivery. *gateway.Gateway implements it.
type Submitter interface {
	Submit(ctx context.Context, msg gateway.OutboundMessage) error
}

// StatusReporter renders the status of every component.
type StatusReporter interface {
	JSON() ([]byte, error)
}

// Indicator is lit while a request is being handled.
type Indicator interface {
	Set(on bool)
}

// Server handles incoming HTTP requests for sending SMS through the
// configured gateway
type Server struct {
	Logger    *slog.Logger
	Gateway   Submitter
	Status    StatusReporter
	Indicator Indicator
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors)
	r.Use(s.indicate)

	r.Get("/", s.handleRoot)
	r.HandleFunc("/send", s.handleSend)
	r.Get("/status", s.handleStatus)
	r.NotFound(s.handleNotFound)

	return r
}

// cors allows browsers on any origin to use the API.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) indicate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Indicator != nil {
			s.Indicator.Set(true)
			defer s.Indicator.Set(false)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	type ErrorResponse struct {
		Error string `json:"error"`
	}
	s.sendJSON(w, statusCode, ErrorResponse{Error: message})
}

func (s *Server) sendStatus(w http.ResponseWriter, status string, statusCode int) {
	type StatusResponse struct {
		Status string `json:"status"`
	}
	s.sendJSON(w, statusCode, StatusResponse{Status: status})
}

// handleSend processes incoming HTTP POST requests to send SMS messages
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		s.sendError(w, "Use POST", http.StatusMethodNotAllowed)
		return
	}

	logger := s.Logger.With("request_id", middleware.GetReqID(r.Context()))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		logger.Warn("Failed to read request body", "error", err)
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		s.sendError(w, "Empty body", http.StatusBadRequest)
		return
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	// Fields that are missing or not strings are empty and fail validation.
	fields, _ := doc.(map[string]any)
	req := gateway.OutboundMessage{
		Phone:   stringField(fields, "phone"),
		Message: stringField(fields, "message"),
	}

	err = s.Gateway.Submit(r.Context(), req)
	switch {
	case err == nil:
		logger.Info("SMS sent successfully", "phone", req.Phone, "message_length", len([]rune(req.Message)))
		s.sendStatus(w, "ok", http.StatusOK)
	case errors.Is(err, gateway.ErrInvalidPhone):
		s.sendError(w, "Invalid phone format. Use +countrycode...", http.StatusBadRequest)
	case errors.Is(err, gateway.ErrInvalidMessageLength):
		s.sendError(w, "Message length 1..480 required", http.StatusBadRequest)
	case errors.Is(err, gateway.ErrNotRegistered):
		s.sendError(w, "Modem not registered on network", http.StatusServiceUnavailable)
	case errors.Is(err, gateway.ErrBusy):
		s.sendError(w, "Modem busy", http.StatusTooManyRequests)
	default:
		logger.Error("Failed to send SMS", "error", err, "phone", req.Phone)
		s.sendStatus(w, "fail", http.StatusInternalServerError)
	}
}

func stringField(fields map[string]any, name string) string {
	v, _ := fields[name].(string)
	return v
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	data, err := s.Status.JSON()
	if err != nil {
		s.Logger.Error("Failed to collect status", "error", err)
		s.sendError(w, "Status unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	fmt.Fprintf(&b, "File Not Found\n\nURI: %s\nMethod: %s\n", r.URL.Path, r.Method)
	args := r.URL.Query()
	fmt.Fprintf(&b, "Arguments: %d\n", len(args))
	for name, values := range args {
		for _, v := range values {
			fmt.Fprintf(&b, " %s: %s\n", name, v)
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	io.WriteString(w, b.String())
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, indexHTML)
}

const indexHTML = `<!doctype html><html><head><meta charset="utf-8"><title>SMS Bridge</title>
<style>body{font-family:system-ui;margin:2rem;max-width:700px}input,textarea{width:100%;padding:.6rem;margin:.3rem 0}button{padding:.6rem 1rem}</style>
</head><body>
<h1>Send SMS</h1>
<p>Use the form below, or call the API directly with <code>POST /send</code> and JSON <code>{"phone":"+40712345678","message":"Hello!"}</code>.<br>
Messages up to 480 characters are accepted; anything over a single SMS is sent as several parts.</p>
<form id="f">
  <label>Phone (e.g. +40712345678)</label>
  <input id="phone" value="+40">
  <label>Message (max 480 characters)</label>
  <textarea id="msg" rows="4" maxlength="480">Test SMS.</textarea>
  <button type="button" onclick="send()">Send</button>
</form>
<pre id="out"></pre>
<script>
async function send(){
  const phone=document.getElementById('phone').value.trim();
  const message=document.getElementById('msg').value;
  const r=await fetch('/send',{method:'POST',headers:{'Content-Type':'application/json'},body:JSON.stringify({phone,message})});
  document.getElementById('out').textContent=await r.text();
}
</script>
</body></html>
`
