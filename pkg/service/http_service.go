package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/aitweaker/tweakd/pkg/model"
	"github.com/aitweaker/tweakd/pkg/store"
)

type HTTPServiceConfiguration struct {
	Port     int32
	CertPath string
}

// Persister makes a merged document durable before the store exposes it.
type Persister interface {
	Save(cfg model.Configuration) error
}

// Proxy is the process control the service exposes.
type Proxy interface {
	Start(port int) error
	Stop() error
	Status() (running bool, port int)
	Subscribe() (backlog []string, lines <-chan string, cancel func())
}

// RulesFeed hands out the rules document the proxy addon applies.
type RulesFeed interface {
	Register(id interface{}, ch chan []byte) []byte
	Unregister(id interface{})
	Current() []byte
}

type HTTPService struct {
	HTTPServiceConfiguration *HTTPServiceConfiguration
	State                    *store.State
	Persister                Persister
	Proxy                    Proxy
	Rules                    RulesFeed
	Registry                 *prometheus.Registry
}

type server struct {
	state     *store.State
	persister Persister
	proxy     Proxy
	rules     RulesFeed
	certPath  string
	upgrader  websocket.Upgrader
	requests  *prometheus.CounterVec
}

func (h *HTTPService) Handler() http.Handler {
	reg := h.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &server{
		state:     h.State,
		persister: h.Persister,
		proxy:     h.Proxy,
		rules:     h.Rules,
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tweakd",
			Subsystem: "service",
			Name:      "requests_total",
			Help:      "Handled requests by route and status code.",
		}, []string{"route", "code"}),
	}
	reg.MustRegister(s.requests)
	if h.HTTPServiceConfiguration != nil {
		s.certPath = h.HTTPServiceConfiguration.CertPath
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	}).Handler)
	r.Get("/status", s.status)
	r.Post("/control", s.control)
	r.Get("/config", s.getConfig)
	r.Post("/config", s.updateConfig)
	r.Get("/cert", s.cert)
	r.Get("/ws/logs", s.logs)
	r.Get("/rules", s.getRules)
	r.Get("/ws/rules", s.watchRules)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}

func (h *HTTPService) Serve(ctx context.Context) error {
	if h.HTTPServiceConfiguration == nil {
		return errors.New("http service configuration has not been initialised")
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", h.HTTPServiceConfiguration.Port),
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Infof("serving configuration store on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	running, port := s.proxy.Status()
	s.writeJSON(w, "status", http.StatusOK, map[string]interface{}{
		"running": running,
		"port":    port,
		"ip":      localIP(),
	})
}

func (s *server) control(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
		Port   *int   `json:"port"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "control", http.StatusUnprocessableEntity, err.Error())
		return
	}
	port := model.DefaultPort
	if req.Port != nil {
		port = *req.Port
	}
	var err error
	switch req.Action {
	case "start":
		err = s.proxy.Start(port)
	case "stop":
		err = s.proxy.Stop()
	default:
		s.writeError(w, "control", http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
		return
	}
	if err != nil {
		s.writeError(w, "control", http.StatusInternalServerError, err.Error())
		return
	}
	running, _ := s.proxy.Status()
	s.writeJSON(w, "control", http.StatusOK, map[string]interface{}{"status": "ok", "running": running})
}

func (s *server) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.state.Configuration()
	if err != nil {
		s.writeError(w, "config", http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, "config", http.StatusOK, cfg)
}

func (s *server) updateConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Updates json.RawMessage `json:"updates"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "config", http.StatusUnprocessableEntity, err.Error())
		return
	}
	if len(req.Updates) == 0 || string(req.Updates) == "null" {
		s.writeError(w, "config", http.StatusUnprocessableEntity, "updates is required")
		return
	}
	var saveErr error
	commit := func(cfg model.Configuration) error {
		if s.persister == nil {
			return nil
		}
		saveErr = s.persister.Save(cfg)
		return saveErr
	}
	profile, err := s.state.Merge(req.Updates, commit)
	switch {
	case saveErr != nil:
		s.writeError(w, "config", http.StatusInternalServerError, saveErr.Error())
		return
	case err != nil:
		s.writeError(w, "config", http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, "config", http.StatusOK, profile)
}

func (s *server) cert(w http.ResponseWriter, r *http.Request) {
	if s.certPath == "" {
		s.writeError(w, "cert", http.StatusNotFound, "Certificate not found. Start the proxy once to generate it.")
		return
	}
	f, err := os.Open(s.certPath)
	if err != nil {
		s.writeError(w, "cert", http.StatusNotFound, "Certificate not found. Start the proxy once to generate it.")
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "application/x-pem-file")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(s.certPath)))
	s.requests.WithLabelValues("cert", "200").Inc()
	_, _ = io.Copy(w, f)
}

func (s *server) logs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("log stream upgrade: %v", err)
		return
	}
	defer conn.Close()
	s.requests.WithLabelValues("logs", "101").Inc()

	backlog, lines, cancel := s.proxy.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, line := range backlog {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
		}
	}
}

func (s *server) getRules(w http.ResponseWriter, r *http.Request) {
	var current []byte
	if s.rules != nil {
		current = s.rules.Current()
	}
	if current == nil {
		s.writeError(w, "rules", http.StatusServiceUnavailable, "rules have not been generated yet")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	s.requests.WithLabelValues("rules", "200").Inc()
	_, _ = w.Write(current)
}

// watchRules sends the current rules document, then every regenerated one.
func (s *server) watchRules(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		s.writeError(w, "rules", http.StatusServiceUnavailable, "rules are not served")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("rules stream upgrade: %v", err)
		return
	}
	defer conn.Close()
	s.requests.WithLabelValues("rules", "101").Inc()

	updates := make(chan []byte, 1)
	current := s.rules.Register(updates, updates)
	defer s.rules.Unregister(updates)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if current != nil {
		if err := conn.WriteMessage(websocket.TextMessage, current); err != nil {
			return
		}
	}
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case doc := <-updates:
			if err := conn.WriteMessage(websocket.TextMessage, doc); err != nil {
				return
			}
		}
	}
}

func (s *server) writeJSON(w http.ResponseWriter, route string, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	s.requests.WithLabelValues(route, fmt.Sprint(code)).Inc()
	_ = json.NewEncoder(w).Encode(body)
}

func (s *server) writeError(w http.ResponseWriter, route string, code int, detail string) {
	log.Errorf("%s: %s", route, detail)
	s.writeJSON(w, route, code, map[string]string{"detail": detail})
}

// localIP is the address other devices should point their proxy setting at.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err == nil {
		defer conn.Close()
		if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
			return addr.IP.String()
		}
	}
	host, err := os.Hostname()
	if err != nil {
		return "127.0.0.1"
	}
	addrs, err := net.LookupHost(host)
	if err != nil || len(addrs) == 0 {
		return "127.0.0.1"
	}
	return addrs[0]
}
