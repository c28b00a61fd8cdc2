// Package autocadiotest provides an in-memory Design Automation service for tests.
package autocadiotest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"time"

	"cadio-client/internal/common/autocadio"
)

var entityRe = regexp.MustCompile(`^/(Activities|WorkItems)\('(.*)'\)(/.*)?$`)

// Request is a request the fake service received.
type Request struct {
	Method        string
	Path          string
	Authorization string
}

// Server is a fake Design Automation endpoint backed by httptest.
type Server struct {
	*httptest.Server

	// AccessToken is issued by the token endpoint.
	AccessToken string
	// RequireAuth, when set, rejects API calls whose Authorization header differs.
	RequireAuth string
	// Statuses is returned by successive status polls; the last entry repeats.
	Statuses []autocadio.ExecutionStatus
	// Report and Result are served once a work item reaches a terminal status.
	Report []byte
	Result []byte

	mu         sync.Mutex
	activities map[string]autocadio.Activity
	versions   map[string][]autocadio.ActivityVersion
	workItems  map[string]*autocadio.WorkItem
	polls      map[string]int
	files      map[string][]byte
	requests   []Request
	nextID     int
}

// NewServer starts a fake service. Close it when done.
func NewServer() *Server {
	s := &Server{
		AccessToken: "test-token",
		Statuses:    []autocadio.ExecutionStatus{autocadio.StatusInProgress, autocadio.StatusSucceeded},
		Report:      []byte("[10/18/2026 10:00:00] Job finished\n"),
		Result:      []byte("AC1032 imported drawing"),
		activities:  make(map[string]autocadio.Activity),
		versions:    make(map[string][]autocadio.ActivityVersion),
		workItems:   make(map[string]*autocadio.WorkItem),
		polls:       make(map[string]int),
		files:       make(map[string][]byte),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// BaseURL is the API root to hand to autocadio.NewClient.
func (s *Server) BaseURL() string {
	return s.URL + "/"
}

// TokenURL is the fake client-credentials endpoint.
func (s *Server) TokenURL() string {
	return s.URL + "/authentication/v1/authenticate"
}

// PutActivity seeds an existing activity.
func (s *Server) PutActivity(a autocadio.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeActivity(a)
}

// PutFile serves data at URL + "/files/" + name.
func (s *Server) PutFile(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = data
}

// Activity returns the stored activity.
func (s *Server) Activity(id string) (autocadio.Activity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[id]
	return a, ok
}

// WorkItem returns a submitted work item.
func (s *Server) WorkItem(id string) (autocadio.WorkItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workItems[id]
	if !ok {
		return autocadio.WorkItem{}, false
	}
	return *w, true
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// CountRequests counts requests matching method and a path prefix.
func (s *Server) CountRequests(method, pathPrefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, pathPrefix) {
			n++
		}
	}
	return n
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Authorization: r.Header.Get("Authorization")})

	if strings.HasPrefix(r.URL.Path, "/files/") {
		data, ok := s.files[strings.TrimPrefix(r.URL.Path, "/files/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
		return
	}

	if r.URL.Path == "/authentication/v1/authenticate" {
		s.issueToken(w, r)
		return
	}

	if s.RequireAuth != "" && r.Header.Get("Authorization") != s.RequireAuth {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if r.URL.Path == "/Activities" && r.Method == http.MethodPost {
		s.createActivity(w, r)
		return
	}
	if r.URL.Path == "/WorkItems" && r.Method == http.MethodPost {
		s.createWorkItem(w, r)
		return
	}

	m := entityRe.FindStringSubmatch(r.URL.Path)
	if m == nil {
		http.NotFound(w, r)
		return
	}
	set, id, sub := m[1], strings.ReplaceAll(m[2], "''", "'"), m[3]

	switch {
	case set == "Activities" && sub == "" && r.Method == http.MethodGet:
		a, ok := s.activities[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, a)
	case set == "Activities" && sub == "" && r.Method == http.MethodPatch:
		s.updateActivity(w, r, id)
	case set == "Activities" && sub == "/Operations.GetVersions()":
		if _, ok := s.activities[id]; !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"value": s.versions[id]})
	case set == "Activities" && sub == "/Operations.SetVersion" && r.Method == http.MethodPost:
		s.setVersion(w, r, id)
	case set == "WorkItems" && sub == "/Status":
		s.pollStatus(w, r, id)
	case set == "WorkItems" && sub == "":
		item, ok := s.workItems[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, item)
	default:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}

func (s *Server) createActivity(w http.ResponseWriter, r *http.Request) {
	var a autocadio.Activity
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, exists := s.activities[a.Id]; exists {
		http.Error(w, "activity already exists", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusCreated, s.storeActivity(a))
}

func (s *Server) updateActivity(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := s.activities[id]; !ok {
		http.NotFound(w, r)
		return
	}
	var a autocadio.Activity
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.Id = id
	s.storeActivity(a)
	w.WriteHeader(http.StatusNoContent)
}

// storeActivity saves a as a new version. Callers hold mu.
func (s *Server) storeActivity(a autocadio.Activity) autocadio.Activity {
	ts := time.Now().UTC().Truncate(time.Second)
	a.Version = len(s.versions[a.Id]) + 1
	a.Timestamp = ts.Format(time.RFC3339)
	s.versions[a.Id] = append(s.versions[a.Id], autocadio.ActivityVersion{Version: a.Version, Timestamp: ts})
	s.activities[a.Id] = a
	return a
}

func (s *Server) setVersion(w http.ResponseWriter, r *http.Request, id string) {
	a, ok := s.activities[id]
	if !ok {
		http.NotFound(w, r)
		return
	}
	var body struct {
		Version int `json:"Version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Version < 1 || body.Version > len(s.versions[id]) {
		http.Error(w, "unknown version", http.StatusBadRequest)
		return
	}
	a.Version = body.Version
	s.activities[id] = a
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createWorkItem(w http.ResponseWriter, r *http.Request) {
	var item autocadio.WorkItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, ok := s.activities[item.ActivityId]; !ok {
		http.Error(w, "unknown activity", http.StatusBadRequest)
		return
	}
	if item.Id != "" {
		http.Error(w, "Id must be empty", http.StatusBadRequest)
		return
	}
	s.nextID++
	item.Id = fmt.Sprintf("wi-%d", s.nextID)
	item.Status = autocadio.StatusPending
	s.workItems[item.Id] = &item
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) pollStatus(w http.ResponseWriter, r *http.Request, id string) {
	item, ok := s.workItems[id]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if len(s.Statuses) > 0 {
		i := s.polls[id]
		if i >= len(s.Statuses) {
			i = len(s.Statuses) - 1
		}
		item.Status = s.Statuses[i]
		s.polls[id]++
	}
	if item.Status.IsTerminal() && item.StatusDetails == nil {
		s.complete(item)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"value": item.Status})
}

// complete publishes the report and, on success, the service-provided result. Callers hold mu.
func (s *Server) complete(item *autocadio.WorkItem) {
	reportName := item.Id + "-report.txt"
	s.files[reportName] = s.Report
	item.StatusDetails = &autocadio.StatusDetails{Report: s.URL + "/files/" + reportName}
	if !item.Status.IsSuccess() {
		return
	}
	for i, arg := range item.Arguments.OutputArguments {
		if arg.Resource != nil {
			continue
		}
		name := item.Id + "-" + arg.Name
		s.files[name] = s.Result
		item.Arguments.OutputArguments[i].Resource = autocadio.StringPtr(s.URL + "/files/" + name)
	}
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" || r.PostForm.Get("client_id") == "" {
		http.Error(w, `{"developerMessage":"invalid client"}`, http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token_type":   "Bearer",
		"access_token": s.AccessToken,
		"expires_in":   1799,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
