package widgets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/launchdarkly/api-test-harness/framework"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	ServiceName       = "widgets"
	SessionCookieName = "widgets-session"

	maxUploadSize = 10 << 20
)

// Capabilities are reported by the status resource.
var Capabilities = []string{"widgets", "attachments", "sessions", "etags"} //nolint:gochecknoglobals

// Widget is the resource managed by the service.
type Widget struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Tags        []string `json:"tags,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

type widgetFields struct {
	Name *string  `json:"name"`
	Tags []string `json:"tags"`
}

// DefaultWidgets is the data a new Service starts with.
func DefaultWidgets() []Widget {
	return []Widget{
		{ID: 1, Name: "bolt"},
		{ID: 2, Name: "nut"},
	}
}

// Service is an in-memory widget REST service. It is the example instance under test for the
// harness, and is used by the harness's own tests.
type Service struct {
	widgets    map[int]Widget
	versions   map[int]int
	nextID     int
	uploadsDir string
	onClose    func()
	handler    http.Handler
	logger     framework.Logger
	lock       sync.RWMutex
}

// NewService creates a Service holding DefaultWidgets. Attachments are written under uploadsDir.
func NewService(uploadsDir string, logger framework.Logger) *Service {
	if logger == nil {
		logger = framework.NullLogger()
	}
	s := &Service{uploadsDir: uploadsDir, logger: logger}
	s.Reset(DefaultWidgets())

	router := mux.NewRouter()
	router.HandleFunc("/", s.getStatus).Methods("GET", "HEAD")
	router.HandleFunc("/", s.close).Methods("DELETE")
	router.HandleFunc("/widgets", s.listWidgets).Methods("GET")
	router.HandleFunc("/widgets", methodNotAllowed).Methods("POST", "PUT", "DELETE")
	router.HandleFunc("/widgets/new", s.createWidget).Methods("POST")
	router.HandleFunc("/widgets/{id:[0-9]+}", s.getWidget).Methods("GET")
	router.HandleFunc("/widgets/{id:[0-9]+}", s.replaceWidget).Methods("PUT")
	router.HandleFunc("/widgets/{id:[0-9]+}", s.deleteWidget).Methods("DELETE")
	router.HandleFunc("/widgets/{id:[0-9]+}/attachments", s.addAttachments).Methods("POST")
	router.HandleFunc("/session", s.startSession).Methods("GET")
	router.HandleFunc("/whoami", s.whoAmI).Methods("GET")
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "no such resource: "+r.URL.Path)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	s.handler = router

	return s
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logger.Printf("%s %s", r.Method, r.URL.Path)
	s.handler.ServeHTTP(w, r)
}

// Reset replaces all widgets.
func (s *Service) Reset(widgets []Widget) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.widgets = make(map[int]Widget, len(widgets))
	s.versions = make(map[int]int, len(widgets))
	s.nextID = 1
	for _, w := range widgets {
		s.widgets[w.ID] = w
		s.versions[w.ID] = 1
		if w.ID >= s.nextID {
			s.nextID = w.ID + 1
		}
	}
}

// OnClose sets a function to be called when a client sends DELETE to the root resource.
func (s *Service) OnClose(fn func()) {
	s.lock.Lock()
	s.onClose = fn
	s.lock.Unlock()
}

func (s *Service) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":         ServiceName,
		"capabilities": Capabilities,
	})
}

func (s *Service) close(w http.ResponseWriter, _ *http.Request) {
	s.lock.RLock()
	onClose := s.onClose
	s.lock.RUnlock()
	s.logger.Printf("Got DELETE - closing service")
	w.WriteHeader(http.StatusNoContent)
	if onClose != nil {
		go onClose()
	}
}

func (s *Service) listWidgets(w http.ResponseWriter, _ *http.Request) {
	s.lock.RLock()
	list := make([]Widget, 0, len(s.widgets))
	for _, widget := range s.widgets {
		list = append(list, widget)
	}
	s.lock.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	writeJSON(w, http.StatusOK, list)
}

func (s *Service) createWidget(w http.ResponseWriter, r *http.Request) {
	fields, ok := readFields(w, r)
	if !ok {
		return
	}
	if fields.Name == nil || *fields.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	s.lock.Lock()
	widget := Widget{ID: s.nextID, Name: *fields.Name, Tags: fields.Tags}
	s.nextID++
	s.widgets[widget.ID] = widget
	s.versions[widget.ID] = 1
	s.lock.Unlock()
	writeJSON(w, http.StatusCreated, widget)
}

func (s *Service) getWidget(w http.ResponseWriter, r *http.Request) {
	id := widgetID(r)
	s.lock.RLock()
	widget, ok := s.widgets[id]
	etag := fmt.Sprintf(`"%d-%d"`, id, s.versions[id])
	s.lock.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("widget %d not found", id))
		return
	}
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, widget)
}

func (s *Service) replaceWidget(w http.ResponseWriter, r *http.Request) {
	id := widgetID(r)
	fields, ok := readFields(w, r)
	if !ok {
		return
	}
	s.lock.Lock()
	widget, exists := s.widgets[id]
	if exists {
		if fields.Name != nil {
			widget.Name = *fields.Name
		}
		widget.Tags = fields.Tags
		s.widgets[id] = widget
		s.versions[id]++
	}
	s.lock.Unlock()
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Sprintf("widget %d not found", id))
		return
	}
	writeJSON(w, http.StatusOK, widget)
}

func (s *Service) deleteWidget(w http.ResponseWriter, r *http.Request) {
	id := widgetID(r)
	s.lock.Lock()
	widget, exists := s.widgets[id]
	delete(s.widgets, id)
	delete(s.versions, id)
	s.lock.Unlock()
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Sprintf("widget %d not found", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": widget.ID, "name": widget.Name})
}

func (s *Service) addAttachments(w http.ResponseWriter, r *http.Request) {
	id := widgetID(r)
	s.lock.RLock()
	_, exists := s.widgets[id]
	s.lock.RUnlock()
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Sprintf("widget %d not found", id))
		return
	}
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "expected a multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var names []string
	for _, files := range r.MultipartForm.File {
		for _, fh := range files {
			name := filepath.Base(fh.Filename)
			src, err := fh.Open()
			if err == nil {
				err = s.saveUpload(id, name, src)
				_ = src.Close()
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		writeError(w, http.StatusBadRequest, "no files were uploaded")
		return
	}
	sort.Strings(names)

	s.lock.Lock()
	widget := s.widgets[id]
	widget.Attachments = append(widget.Attachments, names...)
	s.widgets[id] = widget
	s.versions[id]++
	s.lock.Unlock()
	writeJSON(w, http.StatusOK, widget)
}

func (s *Service) saveUpload(id int, name string, src io.Reader) error {
	if s.uploadsDir == "" {
		return errors.New("uploads are not enabled")
	}
	dir := filepath.Join(s.uploadsDir, strconv.Itoa(id))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	dest, err := os.Create(filepath.Join(dir, name)) //nolint:gosec
	if err != nil {
		return err
	}
	defer dest.Close()
	_, err = io.Copy(dest, src)
	return err
}

func (s *Service) startSession(w http.ResponseWriter, _ *http.Request) {
	session := uuid.NewString()
	http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: session, Path: "/"})
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}

func (s *Service) whoAmI(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": cookie.Value})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, fmt.Sprintf("%s is not allowed for %s", r.Method, r.URL.Path))
}

func widgetID(r *http.Request) int {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	return id
}

func readFields(w http.ResponseWriter, r *http.Request) (widgetFields, bool) {
	var fields widgetFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON: "+err.Error())
		return fields, false
	}
	return fields, true
}

func writeJSON(w http.ResponseWriter, status int, value interface{}) {
	data, _ := json.Marshal(value)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message})
}
