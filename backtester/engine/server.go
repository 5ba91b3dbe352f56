package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofrs/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thrasher-corp/barsim/backtester/common"
	"github.com/thrasher-corp/barsim/log"
)

const writeWait = 10 * time.Second

var errInvalidTaskID = errors.New("invalid task id")

// Route is a single endpoint of the task server
type Route struct {
	Name        string
	Method      string
	Pattern     string
	HandlerFunc http.HandlerFunc
}

// Server exposes a TaskManager over HTTP with a websocket progress stream
type Server struct {
	manager  *TaskManager
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
	srv      *http.Server
}

// NewServer creates a task server. A nil gatherer disables the metrics
// endpoint
func NewServer(manager *TaskManager, gatherer prometheus.Gatherer) (*Server, error) {
	if manager == nil {
		return nil, fmt.Errorf("%w TaskManager", common.ErrNilPointer)
	}
	return &Server{
		manager:  manager,
		gatherer: gatherer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}, nil
}

// Router returns the mux router serving all task routes
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	routes := []Route{
		{"ListTasks", http.MethodGet, "/tasks", s.listTasks},
		{"GetTask", http.MethodGet, "/tasks/{id}", s.getTask},
		{"GetTaskResult", http.MethodGet, "/tasks/{id}/result", s.getResult},
		{"StartTask", http.MethodPost, "/tasks/{id}/start", s.startTask},
		{"StartAllTasks", http.MethodPost, "/tasks/start", s.startAllTasks},
		{"StopTask", http.MethodPost, "/tasks/{id}/stop", s.stopTask},
		{"ClearTask", http.MethodDelete, "/tasks/{id}", s.clearTask},
		{"TaskProgress", http.MethodGet, "/tasks/{id}/progress", s.progress},
	}
	for _, route := range routes {
		router.
			Methods(route.Method).
			Path(route.Pattern).
			Name(route.Name).
			Handler(requestLogger(route.HandlerFunc, route.Name))
	}
	if s.gatherer != nil {
		router.Methods(http.MethodGet).Path("/metrics").Name("Metrics").
			Handler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return router
}

// ListenAndServe serves the router on addr until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		log.Infof(log.Server, "task server listening on http://%v", addr)
		errs <- s.srv.ListenAndServe()
	}()
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(inner http.Handler, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		inner.ServeHTTP(w, r)
		log.Debugf(log.Server, "%s\t%s\t%s\t%s", r.Method, r.RequestURI, name, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Errorf(log.Server, "failed to send JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errInvalidTaskID):
		status = http.StatusBadRequest
	case errors.Is(err, errTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errNoResult),
		errors.Is(err, errAlreadyRan),
		errors.Is(err, errTaskHasNotRan),
		errors.Is(err, errTaskIsRunning),
		errors.Is(err, errCannotClear):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func taskID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.FromString(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", errInvalidTaskID, err)
	}
	return id, nil
}

func (s *Server) listTasks(w http.ResponseWriter, _ *http.Request) {
	resp, err := s.manager.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.manager.GetSummary(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.manager.Result(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) startTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err = s.manager.StartTask(id); err != nil {
		writeError(w, err)
		return
	}
	s.getTask(w, r)
}

func (s *Server) startAllTasks(w http.ResponseWriter, _ *http.Request) {
	ids, err := s.manager.StartAllTasks()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) stopTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err = s.manager.StopTask(id); err != nil {
		writeError(w, err)
		return
	}
	s.getTask(w, r)
}

func (s *Server) clearTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err = s.manager.ClearTask(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// progress upgrades to a websocket and streams the task's progress until the
// run finishes or the client goes away
func (s *Server) progress(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	updates, unsubscribe, err := s.manager.Subscribe(id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf(log.Server, "websocket upgrade for task %v failed: %v", id, err)
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case p, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "task finished"),
					time.Now().Add(writeWait))
				return
			}
			if err = conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err = conn.WriteJSON(p); err != nil {
				log.Debugf(log.Server, "progress stream for task %v closed: %v", id, err)
				return
			}
		case <-gone:
			return
		}
	}
}
