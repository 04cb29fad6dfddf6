package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"kernelapi/pkg/api"
)

// Greeting is the body of GET /.
const Greeting = "Welcome to Semantic Kernel!"

// maxBodyBytes bounds the invoke request body.
const maxBodyBytes = 1 << 20

// Register mounts the kernel routes on r.
func Register(r *mux.Router, exec api.Executor) {
	h := &httpHandler{exec: exec}
	r.HandleFunc("/", h.home).Methods("GET")
	r.HandleFunc("/plugins/{pluginName}/invoke/{functionName}", h.invoke).Methods("POST")
	r.HandleFunc("/planner", h.planner).Methods("GET")
	r.HandleFunc("/memory", h.memory).Methods("GET")
}

type httpHandler struct {
	exec api.Executor
}

func (h *httpHandler) home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, Greeting)
}

func (h *httpHandler) invoke(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var ask api.UserAsk
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&ask); err != nil {
		slog.WarnContext(r.Context(), "Invalid invoke body", "error", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	out, err := h.exec.InvokeFunction(r.Context(), vars["pluginName"], vars["functionName"], ask.Ask)
	if err != nil {
		internalError(w, r, "Function invocation failed", err)
		return
	}
	writeJSON(w, r, api.Answer{Answer: out})
}

func (h *httpHandler) planner(w http.ResponseWriter, r *http.Request) {
	query, ok := requireQuery(w, r)
	if !ok {
		return
	}

	out, err := h.exec.RunPlanner(r.Context(), query, nil)
	if err != nil {
		internalError(w, r, "Planner failed", err)
		return
	}
	writeJSON(w, r, api.Answer{Answer: out})
}

func (h *httpHandler) memory(w http.ResponseWriter, r *http.Request) {
	query, ok := requireQuery(w, r)
	if !ok {
		return
	}

	answer, err := h.exec.RunMemory(r.Context(), query, nil)
	if err != nil {
		internalError(w, r, "Memory planner failed", err)
		return
	}
	writeJSON(w, r, answer)
}

// requireQuery returns the query parameter, replying 400 when it is blank.
func requireQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	query := r.URL.Query().Get("query")
	if strings.TrimSpace(query) == "" {
		http.Error(w, "missing query parameter", http.StatusBadRequest)
		return "", false
	}
	return query, true
}

// internalError logs err and replies 500 without detail.
func internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.ErrorContext(r.Context(), msg, "path", r.URL.Path, "error", err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "Error encoding response", "error", err)
	}
}
