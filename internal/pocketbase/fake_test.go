package pocketbase

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
)

// fakePB mimics the parts of the PocketBase API the client uses, including
// owner rules and realtime fan-out.
type fakePB struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	rows      map[string][]dashboard.Record
	users     map[string]fakeUser
	tokens    map[string]string
	nextID    int
	clients   map[string]*fakeClient
	connects  int
	dropNext  int
	rejectAt  int // stream connections from this one on get 401
	refreshes int
	uploads   []string
	contacts  []ContactMessage
	listPaths []string
	tokenTTL  time.Duration
}

type fakeUser struct {
	id       string
	email    string
	password string
}

type fakeClient struct {
	user   string
	topics map[string]bool
	ch     chan string
}

var ownerFilterRe = regexp.MustCompile(`^owner = "([^"]*)"$`)

func newFakePB(t *testing.T) *fakePB {
	t.Helper()
	f := &fakePB{
		t:        t,
		rows:     make(map[string][]dashboard.Record),
		users:    make(map[string]fakeUser),
		tokens:   make(map[string]string),
		clients:  make(map[string]*fakeClient),
		tokenTTL: 7 * 24 * time.Hour,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/collections/{c}/records", f.handleList)
	mux.HandleFunc("POST /api/collections/{c}/records", f.handleCreate)
	mux.HandleFunc("PATCH /api/collections/{c}/records/{id}", f.handleUpdate)
	mux.HandleFunc("DELETE /api/collections/{c}/records/{id}", f.handleDelete)
	mux.HandleFunc("POST /api/collections/users/auth-with-password", f.handleAuth)
	mux.HandleFunc("POST /api/collections/users/auth-refresh", f.handleRefresh)
	mux.HandleFunc("GET /api/realtime", f.handleStream)
	mux.HandleFunc("POST /api/realtime", f.handleSubscribe)
	mux.HandleFunc("POST "+ContactPath, f.handleContact)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(func() {
		f.srv.CloseClientConnections()
		f.srv.Close()
	})
	return f
}

func (f *fakePB) client(t *testing.T) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: f.srv.URL, Retry: RetryConfig{InitialWait: 5 * time.Millisecond, MaxWait: 20 * time.Millisecond, Multiplier: 2}})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (f *fakePB) addUser(email, password string) fakeUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addUserLocked(email, password)
}

func (f *fakePB) addUserLocked(email, password string) fakeUser {
	f.nextID++
	u := fakeUser{id: fmt.Sprintf("user%03d", f.nextID), email: email, password: password}
	f.users[email] = u
	return u
}

func (f *fakePB) issueToken(userID string, ttl time.Duration) string {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		ID:        strconv.Itoa(len(f.tokens)),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		f.t.Fatalf("sign token: %v", err)
	}
	f.tokens[tok] = userID
	return tok
}

// login returns a token for a fresh user, bypassing the HTTP flow.
func (f *fakePB) login(email string) (fakeUser, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.addUserLocked(email, "pw")
	return u, f.issueToken(u.id, f.tokenTTL)
}

func (f *fakePB) seed(collection string, rec dashboard.Record) dashboard.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertLocked(collection, rec)
}

func (f *fakePB) insertLocked(collection string, rec dashboard.Record) dashboard.Record {
	f.nextID++
	stored := rec.Clone()
	stored["id"] = fmt.Sprintf("rec%05d", f.nextID)
	stamp := dashboard.FormatTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(f.nextID) * time.Second))
	stored["created"] = stamp
	stored["updated"] = stamp
	f.rows[collection] = append(f.rows[collection], stored)
	return stored
}

func (f *fakePB) authUser(r *http.Request) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[r.Header.Get("Authorization")]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"status": status, "message": msg, "data": map[string]any{}})
}

func (f *fakePB) handleList(w http.ResponseWriter, r *http.Request) {
	user := f.authUser(r)
	if user == "" {
		writeErr(w, http.StatusUnauthorized, "The request requires valid record authorization token.")
		return
	}
	m := ownerFilterRe.FindStringSubmatch(r.URL.Query().Get("filter"))
	if m == nil {
		writeErr(w, http.StatusBadRequest, "bad filter")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 30
	}

	f.mu.Lock()
	f.listPaths = append(f.listPaths, r.URL.RawQuery)
	var visible []dashboard.Record
	for _, rec := range f.rows[r.PathValue("c")] {
		if rec.Owner() == dashboard.Principal(user) && rec.String("owner") == m[1] {
			visible = append(visible, rec.Clone())
		}
	}
	f.mu.Unlock()

	if r.URL.Query().Get("sort") == "-created" {
		for i, j := 0, len(visible)-1; i < j; i, j = i+1, j-1 {
			visible[i], visible[j] = visible[j], visible[i]
		}
	}
	totalPages := (len(visible) + perPage - 1) / perPage
	start := min((page-1)*perPage, len(visible))
	end := min(start+perPage, len(visible))
	writeJSON(w, http.StatusOK, map[string]any{
		"page":       page,
		"perPage":    perPage,
		"totalItems": len(visible),
		"totalPages": totalPages,
		"items":      visible[start:end],
	})
}

func (f *fakePB) handleCreate(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("c")
	var rec dashboard.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid body")
		return
	}
	if collection == UsersCollection {
		f.mu.Lock()
		defer f.mu.Unlock()
		email := rec.String("email")
		if _, exists := f.users[email]; exists || email == "" {
			writeErr(w, http.StatusBadRequest, "Failed to create record.")
			return
		}
		u := f.addUserLocked(email, rec.String("password"))
		writeJSON(w, http.StatusOK, map[string]any{"id": u.id, "email": u.email})
		return
	}
	user := f.authUser(r)
	if user == "" || rec.String("owner") != user {
		writeErr(w, http.StatusBadRequest, "Failed to create record.")
		return
	}
	f.mu.Lock()
	stored := f.insertLocked(collection, rec)
	f.mu.Unlock()
	f.broadcast(collection, "create", stored)
	writeJSON(w, http.StatusOK, stored)
}

func (f *fakePB) locate(collection, id, user string) (int, bool) {
	for i, rec := range f.rows[collection] {
		if rec.ID() == id && rec.String("owner") == user {
			return i, true
		}
	}
	return -1, false
}

func (f *fakePB) handleUpdate(w http.ResponseWriter, r *http.Request) {
	collection, id := r.PathValue("c"), r.PathValue("id")
	user := f.authUser(r)
	patch := dashboard.Record{}
	ct, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				writeErr(w, http.StatusBadRequest, "bad multipart")
				return
			}
			data, _ := io.ReadAll(part)
			f.mu.Lock()
			f.uploads = append(f.uploads, part.FormName()+":"+part.FileName()+":"+strconv.Itoa(len(data)))
			f.mu.Unlock()
			patch[part.FormName()] = "stored_" + part.FileName()
		}
	} else if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid body")
		return
	}

	f.mu.Lock()
	idx, ok := f.locate(collection, id, user)
	if !ok || user == "" {
		f.mu.Unlock()
		writeErr(w, http.StatusNotFound, "The requested resource wasn't found.")
		return
	}
	row := f.rows[collection][idx].Clone()
	for k, v := range patch {
		if k == "id" || k == "created" {
			continue
		}
		row[k] = v
	}
	f.rows[collection][idx] = row
	f.mu.Unlock()
	f.broadcast(collection, "update", row)
	writeJSON(w, http.StatusOK, row)
}

func (f *fakePB) handleDelete(w http.ResponseWriter, r *http.Request) {
	collection, id := r.PathValue("c"), r.PathValue("id")
	user := f.authUser(r)
	f.mu.Lock()
	idx, ok := f.locate(collection, id, user)
	if !ok || user == "" {
		f.mu.Unlock()
		writeErr(w, http.StatusNotFound, "The requested resource wasn't found.")
		return
	}
	row := f.rows[collection][idx]
	f.rows[collection] = append(f.rows[collection][:idx:idx], f.rows[collection][idx+1:]...)
	f.mu.Unlock()
	f.broadcast(collection, "delete", row)
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakePB) authPayload(u fakeUser, ttl time.Duration) map[string]any {
	return map[string]any{
		"token":  f.issueToken(u.id, ttl),
		"record": map[string]any{"id": u.id, "email": u.email},
	}
}

func (f *fakePB) handleAuth(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identity string `json:"identity"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[body.Identity]
	if !ok || u.password != body.Password {
		writeErr(w, http.StatusBadRequest, "Failed to authenticate.")
		return
	}
	writeJSON(w, http.StatusOK, f.authPayload(u, f.tokenTTL))
}

func (f *fakePB) handleRefresh(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	userID := f.tokens[r.Header.Get("Authorization")]
	for _, u := range f.users {
		if u.id == userID && userID != "" {
			writeJSON(w, http.StatusOK, f.authPayload(u, f.tokenTTL))
			return
		}
	}
	writeErr(w, http.StatusUnauthorized, "The request requires valid record authorization token.")
}

func (f *fakePB) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "no flusher")
		return
	}
	f.mu.Lock()
	f.connects++
	if f.rejectAt > 0 && f.connects >= f.rejectAt {
		f.mu.Unlock()
		writeErr(w, http.StatusUnauthorized, "The request requires valid record authorization token.")
		return
	}
	id := fmt.Sprintf("client%d", f.connects)
	fc := &fakeClient{topics: make(map[string]bool), ch: make(chan string, 64)}
	f.clients[id] = fc
	drop := f.dropNext > 0
	if drop {
		f.dropNext--
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.clients, id)
		f.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "id:%s\nevent:PB_CONNECT\ndata:{\"clientId\":%q}\n\n", id, id)
	flusher.Flush()

	for {
		select {
		case msg := <-fc.ch:
			fmt.Fprint(w, msg)
			flusher.Flush()
		case <-r.Context().Done():
			return
		case <-time.After(50 * time.Millisecond):
			if drop {
				return
			}
		}
	}
}

func (f *fakePB) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID      string   `json:"clientId"`
		Subscriptions []string `json:"subscriptions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid body")
		return
	}
	user := f.authUser(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	fc, ok := f.clients[body.ClientID]
	if !ok {
		writeErr(w, http.StatusNotFound, "Missing or invalid client id.")
		return
	}
	fc.user = user
	fc.topics = make(map[string]bool)
	for _, s := range body.Subscriptions {
		fc.topics[s] = true
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakePB) broadcast(collection, action string, rec dashboard.Record) {
	payload, _ := json.Marshal(map[string]any{"action": action, "record": rec})
	msg := fmt.Sprintf("event:%s/*\ndata:%s\n\n", collection, payload)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fc := range f.clients {
		if fc.topics[collection+"/*"] && fc.user == rec.String("owner") {
			fc.ch <- msg
		}
	}
}

func (f *fakePB) handleContact(w http.ResponseWriter, r *http.Request) {
	var m ContactMessage
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid body")
		return
	}
	f.mu.Lock()
	f.contacts = append(f.contacts, m)
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakePB) subscribedTopics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, fc := range f.clients {
		for t := range fc.topics {
			out = append(out, t)
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func hasPrefix(list []string, prefix string) bool {
	for _, s := range list {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
