package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	"testing"

	"organaizer/api/internal/authpw"
	"organaizer/api/internal/config"
	"organaizer/api/internal/reorder"
	"organaizer/api/internal/store"
)

// fakeStore implements the service's data store on top of the in-memory
// entry store, with maps for the relational side tables.
type fakeStore struct {
	mem *store.Memory

	mu           sync.Mutex
	users        map[string]store.User
	usersByEmail map[string]string
	relations    map[string][]store.Relation
	votes        map[string]map[string]int
	ratings      map[string]map[string]float64
	labels       map[string]string
	assemblies   map[string]store.Assembly
	configs      map[string]store.AssemblyConfig
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		mem:          store.NewMemory(),
		users:        make(map[string]store.User),
		usersByEmail: make(map[string]string),
		relations:    make(map[string][]store.Relation),
		votes:        make(map[string]map[string]int),
		ratings:      make(map[string]map[string]float64),
		labels:       map[string]string{"Important": "#d9534f"},
		assemblies:   make(map[string]store.Assembly),
		configs:      make(map[string]store.AssemblyConfig),
	}
}

func (f *fakeStore) ListEntries(ctx context.Context) ([]store.Entry, error) {
	return f.mem.All(), nil
}

func (f *fakeStore) GetEntry(ctx context.Context, key string) (store.Entry, error) {
	return f.mem.FetchByKey(ctx, key)
}

func (f *fakeStore) InsertEntry(ctx context.Context, e store.Entry) (store.Entry, error) {
	if e.Rank == 0 {
		max := 0.0
		for _, existing := range f.mem.All() {
			if existing.Rank > max {
				max = existing.Rank
			}
		}
		e.Rank = max + 1
	}
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	f.mem.Put(e)
	return e, nil
}

func (f *fakeStore) UpdateEntry(ctx context.Context, key string, update store.EntryUpdate) (store.Entry, error) {
	e, err := f.mem.FetchByKey(ctx, key)
	if err != nil {
		return store.Entry{}, err
	}
	if update.Title != nil {
		e.Title = *update.Title
	}
	if update.Content != nil {
		e.Content = *update.Content
	}
	if update.Type != nil {
		e.Type = *update.Type
	}
	if update.Status != nil {
		e.Status = *update.Status
	}
	e.UpdatedAt = time.Now()
	f.mem.Put(e)
	return e, nil
}

func (f *fakeStore) DeleteEntry(ctx context.Context, key string) error {
	if _, err := f.mem.FetchByKey(ctx, key); err != nil {
		return err
	}
	f.mem.Delete(key)
	return nil
}

func (f *fakeStore) SetVote(ctx context.Context, entryKey, voter string, value int) (int, error) {
	f.mu.Lock()
	if f.votes[entryKey] == nil {
		f.votes[entryKey] = make(map[string]int)
	}
	if value == 0 {
		delete(f.votes[entryKey], voter)
	} else {
		f.votes[entryKey][voter] = value
	}
	sum := 0
	for _, v := range f.votes[entryKey] {
		sum += v
	}
	f.mu.Unlock()

	e, err := f.mem.FetchByKey(ctx, entryKey)
	if err != nil {
		return 0, err
	}
	e.VoteSum = sum
	f.mem.Put(e)
	return sum, nil
}

func (f *fakeStore) SetRating(ctx context.Context, entryKey, userID string, rating float64) (float64, error) {
	f.mu.Lock()
	if f.ratings[entryKey] == nil {
		f.ratings[entryKey] = make(map[string]float64)
	}
	f.ratings[entryKey][userID] = rating
	total := 0.0
	for _, v := range f.ratings[entryKey] {
		total += v
	}
	avg := total / float64(len(f.ratings[entryKey]))
	f.mu.Unlock()

	stars := math.Round(avg*2) / 2
	e, err := f.mem.FetchByKey(ctx, entryKey)
	if err != nil {
		return 0, err
	}
	e.Stars = stars
	f.mem.Put(e)
	return stars, nil
}

func (f *fakeStore) ListLabels(ctx context.Context) ([]store.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Label, 0, len(f.labels))
	for label, color := range f.labels {
		out = append(out, store.Label{Label: label, Color: color})
	}
	return out, nil
}

func (f *fakeStore) ReplaceEntryLabels(ctx context.Context, entryKey string, labels []string) error {
	e, err := f.mem.FetchByKey(ctx, entryKey)
	if err != nil {
		return err
	}
	f.mu.Lock()
	for _, label := range labels {
		if _, ok := f.labels[label]; !ok {
			f.labels[label] = "#808080"
		}
	}
	f.mu.Unlock()
	e.Labels = labels
	f.mem.Put(e)
	return nil
}

func (f *fakeStore) ReplaceEntryRelations(ctx context.Context, entryKey string, relations []store.Relation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relations[entryKey] = relations
	return nil
}

func (f *fakeStore) ListEntryRelations(ctx context.Context, entryKey string) ([]store.Relation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.relations[entryKey], nil
}

func (f *fakeStore) ListAssemblies(ctx context.Context) ([]store.Assembly, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Assembly, 0, len(f.assemblies))
	for _, a := range f.assemblies {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeStore) GetAssembly(ctx context.Context, id string) (store.Assembly, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assemblies[id]
	if !ok {
		return store.Assembly{}, store.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) GetAssemblyConfig(ctx context.Context, id string) (store.AssemblyConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.configs[id]
	if !ok {
		return store.AssemblyConfig{
			Includes: []string{},
			Excludes: []string{},
			Filters:  []store.AssemblyFilterRow{},
			Columns:  map[string]bool{},
		}, nil
	}
	return cfg, nil
}

func (f *fakeStore) InsertAssembly(ctx context.Context, a store.Assembly, cfg store.AssemblyConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assemblies[a.ID] = a
	f.configs[a.ID] = cfg
	return nil
}

func (f *fakeStore) UpdateAssembly(ctx context.Context, a store.Assembly, cfg store.AssemblyConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.assemblies[a.ID]; !ok {
		return store.ErrNotFound
	}
	f.assemblies[a.ID] = a
	f.configs[a.ID] = cfg
	return nil
}

func (f *fakeStore) DeleteAssembly(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.assemblies[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.assemblies, id)
	delete(f.configs, id)
	return nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.usersByEmail[email]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return f.users[id], nil
}

func (f *fakeStore) CreateUser(ctx context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	f.usersByEmail[user.Email] = user.ID
	return nil
}

func (f *fakeStore) EnsureUser(ctx context.Context, user store.User) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.users[user.ID]; ok {
		return existing, nil
	}
	f.users[user.ID] = user
	f.usersByEmail[user.Email] = user.ID
	return user, nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

// fakeSessions is an in-memory refresh-token backend.
type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]fakeSession
}

type fakeSession struct {
	userID    string
	expiresAt time.Time
	revoked   bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]fakeSession)}
}

func (f *fakeSessions) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[tokenHash] = fakeSession{userID: userID, expiresAt: expiresAt}
	return nil
}

func (f *fakeSessions) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[tokenHash]
	if !ok || session.revoked || time.Now().After(session.expiresAt) {
		return store.User{}, store.ErrNotFound
	}
	return store.User{ID: session.userID}, nil
}

func (f *fakeSessions) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[tokenHash]
	if !ok {
		return store.ErrNotFound
	}
	session.revoked = true
	f.sessions[tokenHash] = session
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeStore) {
	t.Helper()
	fake := newFakeStore()
	cfg := config.Config{
		Env:        "development",
		JWTSecret:  "test-secret",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 720 * time.Hour,
		CORSOrigin: "*",
	}
	service := New(cfg, fake, reorder.New(fake.mem), Options{
		Sessions: newFakeSessions(),
		AuthPW:   authpw.NewService(fake),
	})
	server := httptest.NewServer(NewHTTPServer(service, cfg.CORSOrigin).Handler())
	t.Cleanup(server.Close)
	return server, fake
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func login(t *testing.T, server *httptest.Server) (token, refresh string) {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/session/login", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dev login failed with status %d: %v", resp.StatusCode, body)
	}
	token, _ = body["accessToken"].(string)
	refresh, _ = body["refreshToken"].(string)
	if token == "" || refresh == "" {
		t.Fatalf("expected tokens in login response, got %v", body)
	}
	return token, refresh
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["ok"] != true {
		t.Errorf("expected ok:true, got %v", body)
	}
}

func TestReadyReportsDatabase(t *testing.T) {
	server, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/ready", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["status"] != "ready" {
		t.Errorf("expected ready, got %v", body["status"])
	}
}

func TestEntriesRequireAuth(t *testing.T) {
	server, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/entries", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %v", resp.StatusCode, body)
	}
}

func TestSessionEndpointWithoutToken(t *testing.T) {
	server, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/session", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["authenticated"] != false {
		t.Errorf("expected authenticated:false, got %v", body)
	}
}

func TestDevLoginAndSession(t *testing.T) {
	server, _ := newTestServer(t)
	token, _ := login(t, server)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/session", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["authenticated"] != true {
		t.Fatalf("expected authenticated:true, got %v", body)
	}
	if body["userId"] != DevUserID {
		t.Errorf("expected dev user id, got %v", body["userId"])
	}
}

func TestEntryLifecycle(t *testing.T) {
	server, _ := newTestServer(t)
	token, _ := login(t, server)

	resp, created := doJSON(t, http.MethodPost, server.URL+"/api/entries", token, map[string]any{
		"title":  "Review budget",
		"type":   "Task",
		"labels": []string{"Important"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create failed with %d: %v", resp.StatusCode, created)
	}
	key, _ := created["key"].(string)
	if key == "" {
		t.Fatalf("expected generated key, got %v", created)
	}
	if created["rank"].(float64) != 1 {
		t.Errorf("expected first entry to get rank 1, got %v", created["rank"])
	}

	resp, fetched := doJSON(t, http.MethodGet, server.URL+"/api/entries/"+key, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get failed with %d", resp.StatusCode)
	}
	if fetched["title"] != "Review budget" {
		t.Errorf("unexpected title %v", fetched["title"])
	}

	resp, updated := doJSON(t, http.MethodPatch, server.URL+"/api/entries/"+key, token, map[string]any{
		"status": "Done",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update failed with %d: %v", resp.StatusCode, updated)
	}
	if updated["status"] != "Done" {
		t.Errorf("expected Done, got %v", updated["status"])
	}
	if updated["title"] != "Review budget" {
		t.Errorf("partial update must not clear title, got %v", updated["title"])
	}

	resp, _ = doJSON(t, http.MethodDelete, server.URL+"/api/entries/"+key, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete failed with %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/entries/"+key, token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestCreateEntryRequiresTitle(t *testing.T) {
	server, _ := newTestServer(t)
	token, _ := login(t, server)
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/entries", token, map[string]any{
		"title": "   ",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %v", resp.StatusCode, body)
	}
	if body["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %v", body["code"])
	}
}

func TestVoteAndRate(t *testing.T) {
	server, _ := newTestServer(t)
	token, _ := login(t, server)

	_, created := doJSON(t, http.MethodPost, server.URL+"/api/entries", token, map[string]any{"title": "Vote on me"})
	key := created["key"].(string)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/entries/"+key+"/vote", token, map[string]any{"value": 1})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("vote failed with %d: %v", resp.StatusCode, body)
	}
	if body["votes"].(float64) != 1 {
		t.Errorf("expected vote sum 1, got %v", body["votes"])
	}

	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/entries/"+key+"/vote", token, map[string]any{"value": 2})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for out-of-range vote, got %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/entries/"+key+"/rating", token, map[string]any{"rating": 4.0})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rating failed with %d: %v", resp.StatusCode, body)
	}
	if body["stars"].(float64) != 4 {
		t.Errorf("expected stars 4, got %v", body["stars"])
	}

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/entries/"+key+"/rating", token, map[string]any{"rating": 6})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for out-of-range rating, got %d", resp.StatusCode)
	}
}

func TestReorderEndpoint(t *testing.T) {
	server, fake := newTestServer(t)
	token, _ := login(t, server)

	for i, key := range []string{"a", "b", "c"} {
		fake.mem.Put(store.Entry{Key: key, Title: key, Type: "Task", Status: "Open", Rank: float64(i + 1)})
	}

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/entries/reorder", token, map[string]any{
		"entryKey": "a",
		"newRank":  3,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reorder failed with %d: %v", resp.StatusCode, body)
	}
	if body["success"] != true {
		t.Errorf("expected success:true, got %v", body)
	}
	if body["affectedEntries"].(float64) != 2 {
		t.Errorf("expected affectedEntries 2, got %v", body["affectedEntries"])
	}
	reordered, _ := body["reorderedEntries"].([]any)
	if len(reordered) != 2 {
		t.Fatalf("expected 2 shifted peers, got %v", body["reorderedEntries"])
	}
	first := reordered[0].(map[string]any)
	if first["key"] != "b" || first["newRank"].(float64) != 1 {
		t.Errorf("expected first peer b at newRank 1, got %v", first)
	}

	order := fake.mem.All()
	want := []string{"b", "c", "a"}
	for i, entry := range order {
		if entry.Key != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], entry.Key)
		}
	}
}

func TestReorderScopeSkipsFilteredOutEntries(t *testing.T) {
	server, fake := newTestServer(t)
	token, _ := login(t, server)

	fake.mem.Put(store.Entry{Key: "a", Type: "Task", Status: "Open", Rank: 1})
	fake.mem.Put(store.Entry{Key: "b", Type: "Note", Status: "Open", Rank: 2})
	fake.mem.Put(store.Entry{Key: "c", Type: "Task", Status: "Open", Rank: 3})

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/entries/reorder", token, map[string]any{
		"entryKey":       "a",
		"newRank":        3,
		"assemblyFilter": map[string]any{"types": []string{"Task"}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reorder failed with %d: %v", resp.StatusCode, body)
	}

	entries := make(map[string]float64)
	for _, entry := range fake.mem.All() {
		entries[entry.Key] = entry.Rank
	}
	if entries["b"] != 2 {
		t.Errorf("out-of-scope entry must keep its rank, got %v", entries["b"])
	}
	if entries["c"] != 2 {
		t.Errorf("in-scope peer should shift to 2, got %v", entries["c"])
	}
	if entries["a"] != 3 {
		t.Errorf("target should land at 3, got %v", entries["a"])
	}
}

func TestReorderUnknownEntry(t *testing.T) {
	server, _ := newTestServer(t)
	token, _ := login(t, server)
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/entries/reorder", token, map[string]any{
		"entryKey": "nope",
		"newRank":  1,
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %v", resp.StatusCode, body)
	}
}

func TestReorderNoOpMessage(t *testing.T) {
	server, fake := newTestServer(t)
	token, _ := login(t, server)
	fake.mem.Put(store.Entry{Key: "a", Type: "Task", Status: "Open", Rank: 1})
	fake.mem.Put(store.Entry{Key: "b", Type: "Task", Status: "Open", Rank: 2})

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/entries/reorder", token, map[string]any{
		"entryKey": "b",
		"newRank":  2,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("no-op reorder failed with %d: %v", resp.StatusCode, body)
	}
	if body["success"] != true || body["message"] != "No rank change needed" {
		t.Errorf("expected no-op envelope, got %v", body)
	}
	if _, present := body["reorderedEntries"]; present {
		t.Errorf("no-op response must not list reordered entries, got %v", body)
	}
}

func TestReorderMissingEntryKey(t *testing.T) {
	server, _ := newTestServer(t)
	token, _ := login(t, server)
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/entries/reorder", token, map[string]any{
		"newRank": 1,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %v", resp.StatusCode, body)
	}
	if body["code"] != "INVALID_INPUT" {
		t.Errorf("expected INVALID_INPUT, got %v", body["code"])
	}
}

func TestReorderMissingNewRankWritesNothing(t *testing.T) {
	server, fake := newTestServer(t)
	token, _ := login(t, server)
	fake.mem.Put(store.Entry{Key: "a", Type: "Task", Status: "Open", Rank: 1})
	fake.mem.Put(store.Entry{Key: "b", Type: "Task", Status: "Open", Rank: 2})

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/entries/reorder", token, map[string]any{
		"entryKey": "b",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for absent newRank, got %d: %v", resp.StatusCode, body)
	}
	if body["code"] != "INVALID_INPUT" {
		t.Errorf("expected INVALID_INPUT, got %v", body["code"])
	}
	a, _ := fake.mem.FetchByKey(context.Background(), "a")
	b, _ := fake.mem.FetchByKey(context.Background(), "b")
	if a.Rank != 1 || b.Rank != 2 {
		t.Errorf("rejected request must not mutate ranks, got a=%v b=%v", a.Rank, b.Rank)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	server, _ := newTestServer(t)
	_, refresh := login(t, server)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/session/refresh", "", map[string]any{
		"refreshToken": refresh,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh failed with %d: %v", resp.StatusCode, body)
	}
	if body["accessToken"] == "" || body["refreshToken"] == refresh {
		t.Errorf("expected rotated tokens, got %v", body)
	}

	// The consumed refresh token must be dead.
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/session/refresh", "", map[string]any{
		"refreshToken": refresh,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for reused refresh token, got %d", resp.StatusCode)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	server, _ := newTestServer(t)
	_, refresh := login(t, server)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/session/logout", "", map[string]any{
		"refreshToken": refresh,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout failed with %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/session/refresh", "", map[string]any{
		"refreshToken": refresh,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", resp.StatusCode)
	}
}

func TestSignUpAndSignIn(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/auth/signup", "", map[string]any{
		"email":       "ada@example.com",
		"password":    "correct-horse",
		"displayName": "Ada",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup failed with %d: %v", resp.StatusCode, body)
	}
	if body["accessToken"] == "" {
		t.Fatalf("expected session tokens on signup, got %v", body)
	}

	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/auth/signin", "", map[string]any{
		"email":    "Ada@Example.com",
		"password": "correct-horse",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signin failed with %d: %v", resp.StatusCode, body)
	}
	if body["userName"] != "Ada" {
		t.Errorf("expected Ada, got %v", body["userName"])
	}

	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/auth/signin", "", map[string]any{
		"email":    "ada@example.com",
		"password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", resp.StatusCode)
	}
	if body["code"] != "INVALID_CREDENTIALS" {
		t.Errorf("expected INVALID_CREDENTIALS, got %v", body["code"])
	}
}

func TestDuplicateSignUp(t *testing.T) {
	server, _ := newTestServer(t)
	payload := map[string]any{
		"email":       "dup@example.com",
		"password":    "correct-horse",
		"displayName": "Dup",
	}
	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/auth/signup", "", payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first signup failed with %d", resp.StatusCode)
	}
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/auth/signup", "", payload)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d: %v", resp.StatusCode, body)
	}
}

func TestAssemblyLifecycleAndEntries(t *testing.T) {
	server, fake := newTestServer(t)
	token, _ := login(t, server)

	fake.mem.Put(store.Entry{Key: "t1", Title: "Task one", Type: "Task", Status: "Open", Rank: 1})
	fake.mem.Put(store.Entry{Key: "n1", Title: "Note one", Type: "Note", Status: "Open", Rank: 2})
	fake.mem.Put(store.Entry{Key: "t2", Title: "Task two", Type: "Task", Status: "Done", Rank: 3})

	resp, created := doJSON(t, http.MethodPost, server.URL+"/api/assemblies", token, map[string]any{
		"name":      "Open tasks",
		"sortOrder": "Rank",
		"filters": []map[string]any{
			{"filterType": "Type", "value": "Task"},
			{"filterType": "Status", "value": "Open"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create assembly failed with %d: %v", resp.StatusCode, created)
	}
	assemblyID := created["id"].(string)

	resp, view := doJSON(t, http.MethodGet, server.URL+"/api/assemblies/"+assemblyID+"/entries", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("assembly entries failed with %d: %v", resp.StatusCode, view)
	}
	if view["success"] != true {
		t.Errorf("expected success:true envelope, got %v", view)
	}
	entries, _ := view["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected 1 matching entry, got %d: %v", len(entries), view)
	}
	first := entries[0].(map[string]any)
	if first["key"] != "t1" {
		t.Errorf("expected t1, got %v", first["key"])
	}

	resp, _ = doJSON(t, http.MethodDelete, server.URL+"/api/assemblies/"+assemblyID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete assembly failed with %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/assemblies/"+assemblyID, token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestAssemblyIncludesBypassFilters(t *testing.T) {
	server, fake := newTestServer(t)
	token, _ := login(t, server)

	fake.mem.Put(store.Entry{Key: "t1", Title: "Task", Type: "Task", Status: "Open", Rank: 1})
	fake.mem.Put(store.Entry{Key: "n1", Title: "Pinned note", Type: "Note", Status: "Open", Rank: 2})

	_, created := doJSON(t, http.MethodPost, server.URL+"/api/assemblies", token, map[string]any{
		"name":     "Tasks plus pin",
		"includes": []string{"n1"},
		"filters":  []map[string]any{{"filterType": "Type", "value": "Task"}},
	})
	assemblyID := created["id"].(string)

	_, view := doJSON(t, http.MethodGet, server.URL+"/api/assemblies/"+assemblyID+"/entries", token, nil)
	entries, _ := view["entries"].([]any)
	keys := make([]string, 0, len(entries))
	for _, raw := range entries {
		keys = append(keys, raw.(map[string]any)["key"].(string))
	}
	if fmt.Sprint(keys) != "[t1 n1]" {
		t.Errorf("expected included note to bypass the type filter, got %v", keys)
	}
}

func TestListEntriesQueryFilters(t *testing.T) {
	server, fake := newTestServer(t)
	token, _ := login(t, server)

	fake.mem.Put(store.Entry{Key: "t1", Title: "Ship release", Type: "Task", Status: "Open", Rank: 1})
	fake.mem.Put(store.Entry{Key: "n1", Title: "Release notes", Type: "Note", Status: "Open", Rank: 2})
	fake.mem.Put(store.Entry{Key: "t2", Title: "Clean desk", Type: "Task", Status: "Done", Rank: 3})

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/entries?type=Task&status=Open", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list failed with %d: %v", resp.StatusCode, body)
	}
	entries, _ := body["entries"].([]any)
	if len(entries) != 1 || entries[0].(map[string]any)["key"] != "t1" {
		t.Errorf("expected only t1, got %v", body["entries"])
	}

	_, body = doJSON(t, http.MethodGet, server.URL+"/api/entries?search=release", token, nil)
	entries, _ = body["entries"].([]any)
	if len(entries) != 2 {
		t.Errorf("expected 2 matches for 'release', got %v", body["entries"])
	}
}

func TestOrderedEntriesAdHocFilter(t *testing.T) {
	server, fake := newTestServer(t)
	token, _ := login(t, server)

	fake.mem.Put(store.Entry{Key: "a", Type: "Task", Status: "Open", Rank: 2, VoteSum: 5})
	fake.mem.Put(store.Entry{Key: "b", Type: "Task", Status: "Open", Rank: 1, VoteSum: 1})
	fake.mem.Put(store.Entry{Key: "c", Type: "Note", Status: "Open", Rank: 3, VoteSum: 9})

	filter := url.QueryEscape(`{"filters":[{"filterType":"Type","value":"Task"}],"sortOrder":"Voting"}`)
	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/entries/ordered?assemblyFilter="+filter, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ordered failed with %d: %v", resp.StatusCode, body)
	}
	entries, _ := body["entries"].([]any)
	if len(entries) != 2 {
		t.Fatalf("expected 2 tasks, got %v", body["entries"])
	}
	if entries[0].(map[string]any)["key"] != "a" {
		t.Errorf("expected highest-voted task first, got %v", entries[0])
	}
}

func TestOrderedEntriesRejectsBadFilterJSON(t *testing.T) {
	server, _ := newTestServer(t)
	token, _ := login(t, server)
	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/entries/ordered?assemblyFilter=%7Bnope", token, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %v", resp.StatusCode, body)
	}
}

func TestFlatVoteRoute(t *testing.T) {
	server, fake := newTestServer(t)
	token, _ := login(t, server)
	fake.mem.Put(store.Entry{Key: "v1", Title: "Voteable", Type: "Task", Status: "Open", Rank: 1})

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/entries/vote", token, map[string]any{
		"key": "v1", "value": -1,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("flat vote failed with %d: %v", resp.StatusCode, body)
	}
	if body["votes"].(float64) != -1 {
		t.Errorf("expected -1, got %v", body["votes"])
	}
}

func TestUnknownRoute(t *testing.T) {
	server, _ := newTestServer(t)
	token, _ := login(t, server)
	resp, _ := doJSON(t, http.MethodGet, server.URL+"/api/nonsense", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
