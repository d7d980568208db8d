package tasks

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

const (
	HeaderClassCode = "X-Class-Code"
	HeaderStudentID = "X-Student-Id"
)

var errNamespaceRequired = errors.New("namespace required")

// Client-facing messages for namespace errors.
const (
	msgNamespaceRequired = "class_code and student_id are required (query or headers)."
	msgInvalidIdentifier = "Only letters, digits, underscore, and dash are allowed (max 64)."
)

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errResponse struct {
	Error   string       `json:"error"`
	Details []fieldError `json:"details,omitempty"`
}

// RegisterRoutes mounts the task routes on r. writeGate wraps the
// mutating routes only; reads stay open.
func RegisterRoutes(r chi.Router, repo Repository, logger *slog.Logger, writeGate ...func(http.Handler) http.Handler) {
	r.Get("/tasks", listTasks(repo, logger))

	r.Group(func(r chi.Router) {
		r.Use(writeGate...)
		r.Post("/tasks", createTask(repo, logger))
		r.Patch("/tasks/{id:[0-9]+}", updateTask(repo, logger))
		r.Delete("/tasks/{id:[0-9]+}", deleteTask(repo, logger))
	})
}

func listTasks(repo Repository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ns, err := namespaceFrom(r)
		if err != nil {
			writeRepoError(w, r, logger, err)
			return
		}

		tasks, err := repo.List(ns)
		if err != nil {
			writeRepoError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, tasks)
	}
}

func createTask(repo Repository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ns, err := namespaceFrom(r)
		if err != nil {
			writeRepoError(w, r, logger, err)
			return
		}

		payload := decodeObject(r.Body)
		title, _ := payload["title"].(string)
		title = strings.TrimSpace(title)
		if title == "" {
			writeRepoError(w, r, logger, ErrTitleRequired)
			return
		}

		var due *string
		if v, ok := payload["due_date"]; ok && truthy(v) {
			s := jsonText(v)
			due = &s
		}

		t, err := repo.Create(ns, title, due)
		if err != nil {
			writeRepoError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func updateTask(repo Repository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ns, err := namespaceFrom(r)
		if err != nil {
			writeRepoError(w, r, logger, err)
			return
		}
		id, ok := taskID(r)
		if !ok {
			writeNotFound(w)
			return
		}

		t, found, err := repo.Update(ns, id, patchFrom(decodeObject(r.Body)))
		if err != nil {
			writeRepoError(w, r, logger, err)
			return
		}
		if !found {
			writeNotFound(w)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func deleteTask(repo Repository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ns, err := namespaceFrom(r)
		if err != nil {
			writeRepoError(w, r, logger, err)
			return
		}
		id, ok := taskID(r)
		if !ok {
			writeNotFound(w)
			return
		}

		removed, err := repo.Delete(ns, id)
		if err != nil {
			writeRepoError(w, r, logger, err)
			return
		}
		if !removed {
			writeNotFound(w)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// namespaceFrom reads class_code and student_id from the query string,
// falling back to the X-Class-Code and X-Student-Id headers.
func namespaceFrom(r *http.Request) (Namespace, error) {
	classCode := firstNonEmpty(r.URL.Query().Get("class_code"), r.Header.Get(HeaderClassCode))
	studentID := firstNonEmpty(r.URL.Query().Get("student_id"), r.Header.Get(HeaderStudentID))
	if classCode == "" || studentID == "" {
		return Namespace{}, errNamespaceRequired
	}
	return NewNamespace(classCode, studentID)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func taskID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// decodeObject reads a body holding exactly one JSON object. Anything
// else, including trailing data after the object, decodes as an empty
// object.
func decodeObject(body io.Reader) map[string]any {
	out := map[string]any{}
	if body == nil {
		return out
	}
	dec := json.NewDecoder(body)
	dec.UseNumber()
	var v map[string]any
	if err := dec.Decode(&v); err != nil || v == nil {
		return out
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return out
	}
	return v
}

func patchFrom(body map[string]any) Patch {
	var p Patch
	if v, ok := body["done"]; ok {
		done := truthy(v)
		p.Done = &done
	}
	if v, ok := body["title"]; ok && v != nil {
		title := jsonText(v)
		p.Title = &title
	}
	if v, ok := body["due_date"]; ok {
		due := ""
		if v != nil {
			due = jsonText(v)
		}
		p.DueDate = &due
	}
	return p
}

// truthy treats false, null, zero, "" and empty arrays or objects as false.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

// jsonText returns strings as-is and any other value as its JSON encoding.
func jsonText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func writeRepoError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, errNamespaceRequired):
		writeJSON(w, http.StatusBadRequest, errResponse{Error: msgNamespaceRequired})
	case errors.Is(err, ErrInvalidIdentifier):
		writeJSON(w, http.StatusBadRequest, errResponse{Error: msgInvalidIdentifier})
	case errors.Is(err, ErrTitleRequired):
		writeJSON(w, http.StatusBadRequest, errResponse{
			Error: "validation_error",
			Details: []fieldError{
				{Field: "title", Message: ErrTitleRequired.Error()},
			},
		})
	default:
		logger.Error("task_store_error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("req_id", chimw.GetReqID(r.Context())),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
	}
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errResponse{Error: "Task not found"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
