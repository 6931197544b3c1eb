package syncharness

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const (
	harnessToken = "harness-token"
	tokenPath    = "/api/v1/access_token"
	multiPrefix  = "/api/multi/user/"
)

// Service is an in-memory reddit serving the endpoints reorg uses. Multireddit
// names are case-insensitive and keep the spelling they were created with.
type Service struct {
	mu sync.Mutex

	user     string
	multis   map[string]*multi // keyed by lowercased name
	subs     map[string]bool
	failures map[string]int // write call -> HTTP status
	writes   []string

	// RequireSubscribed rejects adding a sub the account is not subscribed to.
	RequireSubscribed bool
	// PageSize caps the subscription listing page; 0 honors the limit param.
	PageSize int
}

type multi struct {
	name string
	subs []string
}

// NewService returns an empty account named user.
func NewService(user string) *Service {
	return &Service{
		user:     user,
		multis:   make(map[string]*multi),
		subs:     make(map[string]bool),
		failures: make(map[string]int),
	}
}

// SeedMulti creates a multireddit directly, bypassing the API.
func (s *Service) SeedMulti(name string, subs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &multi{name: name}
	for _, sub := range subs {
		m.subs = append(m.subs, strings.ToLower(sub))
	}
	s.multis[strings.ToLower(name)] = m
}

// SeedSubscription subscribes the account directly.
func (s *Service) SeedSubscription(subs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range subs {
		s.subs[strings.ToLower(sub)] = true
	}
}

// Fail makes the write call fail with status until cleared. Calls are
// spelled as in Writes: "subscribe golang", "create news", "add news golang",
// "delete news".
func (s *Service) Fail(call string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[call] = status
}

// ClearFailures removes every injected failure.
func (s *Service) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]int)
}

// Writes returns the successful write calls in order.
func (s *Service) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

// ResetWrites clears the write log.
func (s *Service) ResetWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = nil
}

// Multi returns the members of a multireddit and whether it exists.
func (s *Service) Multi(name string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.multis[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return append([]string(nil), m.subs...), true
}

// MultiNames returns the multireddit names as spelled remotely, sorted.
func (s *Service) MultiNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.multis {
		out = append(out, m.name)
	}
	sort.Strings(out)
	return out
}

// Subscribed reports whether the account is subscribed to sub.
func (s *Service) Subscribed(sub string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[strings.ToLower(sub)]
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == tokenPath {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": harnessToken,
			"token_type":   "bearer",
			"expires_in":   3600,
		})
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+harnessToken {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthorized", "error": 401})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/me":
		writeJSON(w, http.StatusOK, map[string]any{"name": s.user})
	case r.Method == http.MethodGet && r.URL.Path == "/subreddits/mine/subscriber":
		s.serveSubscriptions(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/api/multi/mine":
		s.serveMine(w)
	case r.Method == http.MethodPost && r.URL.Path == "/api/subscribe":
		s.serveSubscribe(w, r)
	case strings.HasPrefix(r.URL.Path, multiPrefix):
		s.serveMulti(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found", "error": 404})
	}
}

func (s *Service) serveSubscriptions(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.subs))
	for sub := range s.subs {
		names = append(names, sub)
	}
	sort.Strings(names)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if s.PageSize > 0 && (limit <= 0 || s.PageSize < limit) {
		limit = s.PageSize
	}
	if limit <= 0 {
		limit = 25
	}
	start := 0
	if after := strings.TrimPrefix(r.URL.Query().Get("after"), "t5_"); after != "" {
		start = sort.SearchStrings(names, after)
		if start < len(names) && names[start] == after {
			start++
		}
	}
	end := min(start+limit, len(names))

	children := make([]map[string]any, 0, end-start)
	for _, sub := range names[start:end] {
		children = append(children, map[string]any{
			"kind": "t5",
			"data": map[string]any{
				"display_name": sub,
				"url":          "/r/" + sub + "/",
				"title":        sub,
				"subscribers":  len(sub) * 1000,
			},
		})
	}
	after := ""
	if end < len(names) {
		after = "t5_" + names[end-1]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind": "Listing",
		"data": map[string]any{"after": after, "children": children},
	})
}

func (s *Service) serveMine(w http.ResponseWriter) {
	keys := make([]string, 0, len(s.multis))
	for k := range s.multis {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]map[string]any, len(keys))
	for i, k := range keys {
		out[i] = multiThing(s.multis[k])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) serveSubscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("action") != "sub" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "bad request"})
		return
	}
	sub := strings.ToLower(r.PostForm.Get("sr_name"))
	call := "subscribe " + sub
	if s.injected(w, call) {
		return
	}
	s.subs[sub] = true
	s.writes = append(s.writes, call)
	writeJSON(w, http.StatusOK, map[string]any{})
}

// serveMulti handles /api/multi/user/{user}/m/{name}[/r/{sub}].
func (s *Service) serveMulti(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, multiPrefix), "/")
	if len(parts) != 3 && len(parts) != 5 || parts[1] != "m" || len(parts) == 5 && parts[3] != "r" {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found", "error": 404})
		return
	}
	if parts[0] != s.user {
		writeJSON(w, http.StatusForbidden, map[string]any{"message": "Forbidden", "error": 403})
		return
	}
	name := parts[2]
	key := strings.ToLower(name)
	m, exists := s.multis[key]

	if len(parts) == 5 {
		if r.Method != http.MethodPut {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"message": "Method Not Allowed"})
			return
		}
		s.addSub(w, m, exists, strings.ToLower(parts[4]))
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !exists {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found", "error": 404})
			return
		}
		writeJSON(w, http.StatusOK, multiThing(m))
	case http.MethodPost:
		call := "create " + key
		if s.injected(w, call) {
			return
		}
		if exists {
			writeJSON(w, http.StatusConflict, map[string]any{"explanation": "that multireddit already exists", "reason": "MULTI_EXISTS"})
			return
		}
		var model struct {
			Subreddits []struct {
				Name string `json:"name"`
			} `json:"subreddits"`
		}
		if err := r.ParseForm(); err != nil || json.Unmarshal([]byte(r.PostForm.Get("model")), &model) != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "bad model"})
			return
		}
		nm := &multi{name: name}
		for _, sr := range model.Subreddits {
			sub := strings.ToLower(sr.Name)
			if s.RequireSubscribed && !s.subs[sub] {
				writeJSON(w, http.StatusForbidden, map[string]any{"explanation": "not subscribed to r/" + sub})
				return
			}
			nm.subs = append(nm.subs, sub)
		}
		s.multis[key] = nm
		s.writes = append(s.writes, call)
		writeJSON(w, http.StatusCreated, multiThing(nm))
	case http.MethodDelete:
		call := "delete " + key
		if s.injected(w, call) {
			return
		}
		if !exists {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found", "error": 404})
			return
		}
		delete(s.multis, key)
		s.writes = append(s.writes, call)
		w.WriteHeader(http.StatusAccepted)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"message": "Method Not Allowed"})
	}
}

func (s *Service) addSub(w http.ResponseWriter, m *multi, exists bool, sub string) {
	if !exists {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found", "error": 404})
		return
	}
	call := fmt.Sprintf("add %s %s", strings.ToLower(m.name), sub)
	if s.injected(w, call) {
		return
	}
	if s.RequireSubscribed && !s.subs[sub] {
		writeJSON(w, http.StatusForbidden, map[string]any{"explanation": "not subscribed to r/" + sub})
		return
	}
	for _, have := range m.subs {
		if have == sub {
			writeJSON(w, http.StatusOK, map[string]any{"name": sub})
			return
		}
	}
	m.subs = append(m.subs, sub)
	s.writes = append(s.writes, call)
	writeJSON(w, http.StatusOK, map[string]any{"name": sub})
}

// injected writes the injected failure for call, if any. Caller holds mu.
func (s *Service) injected(w http.ResponseWriter, call string) bool {
	status, ok := s.failures[call]
	if !ok {
		return false
	}
	writeJSON(w, status, map[string]any{"message": http.StatusText(status), "error": status})
	return true
}

func multiThing(m *multi) map[string]any {
	subs := make([]map[string]string, len(m.subs))
	for i, sub := range m.subs {
		subs[i] = map[string]string{"name": sub}
	}
	return map[string]any{
		"kind": "LabeledMulti",
		"data": map[string]any{
			"name":         m.name,
			"display_name": m.name,
			"visibility":   "private",
			"subreddits":   subs,
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
