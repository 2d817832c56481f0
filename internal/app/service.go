package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"organaizer/api/internal/assembly"
	"organaizer/api/internal/auth"
	"organaizer/api/internal/authpw"
	"organaizer/api/internal/config"
	"organaizer/api/internal/export"
	"organaizer/api/internal/reorder"
	"organaizer/api/internal/search"
	"organaizer/api/internal/store"
	"organaizer/api/internal/upload"
	"organaizer/api/internal/util"
)

// DevUserID is the fixed identity used by the development login bypass.
const (
	DevUserID    = "dev-user-123"
	DevUserEmail = "dev@organaizer.app"
	DevUserName  = "Dev User"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

type EntryInput struct {
	Key     string   `json:"key"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Type    string   `json:"type"`
	Status  string   `json:"status"`
	Labels  []string `json:"labels"`
}

type EntryUpdateInput struct {
	Title     *string         `json:"title"`
	Content   *string         `json:"content"`
	Type      *string         `json:"type"`
	Status    *string         `json:"status"`
	Labels    *[]string       `json:"labels"`
	Relations []RelationInput `json:"relations"`
}

type RelationInput struct {
	Type      string `json:"type"`
	TargetKey string `json:"targetKey"`
}

// ReorderScope narrows which peers shift during a reorder, mirroring
// the filter the client currently has applied. An empty scope means
// the whole global order participates.
type ReorderScope struct {
	Types    []string `json:"types"`
	Statuses []string `json:"statuses"`
	Labels   []string `json:"labels"`
	DateFrom string   `json:"dateFrom"`
	DateTo   string   `json:"dateTo"`
}

type AssemblyInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	SortOrder   string          `json:"sortOrder"`
	IsDefault   bool            `json:"isDefault"`
	Includes    []string        `json:"includes"`
	Excludes    []string        `json:"excludes"`
	Filters     []FilterInput   `json:"filters"`
	Columns     map[string]bool `json:"columns"`
}

type FilterInput struct {
	FilterType    string `json:"filterType"`
	Value         string `json:"value"`
	VisibleInView bool   `json:"visibleInView"`
}

type dataStore interface {
	ListEntries(context.Context) ([]store.Entry, error)
	GetEntry(context.Context, string) (store.Entry, error)
	InsertEntry(context.Context, store.Entry) (store.Entry, error)
	UpdateEntry(context.Context, string, store.EntryUpdate) (store.Entry, error)
	DeleteEntry(context.Context, string) error
	SetVote(context.Context, string, string, int) (int, error)
	SetRating(context.Context, string, string, float64) (float64, error)
	ListLabels(context.Context) ([]store.Label, error)
	ReplaceEntryLabels(context.Context, string, []string) error
	ReplaceEntryRelations(context.Context, string, []store.Relation) error
	ListEntryRelations(context.Context, string) ([]store.Relation, error)
	ListAssemblies(context.Context) ([]store.Assembly, error)
	GetAssembly(context.Context, string) (store.Assembly, error)
	GetAssemblyConfig(context.Context, string) (store.AssemblyConfig, error)
	InsertAssembly(context.Context, store.Assembly, store.AssemblyConfig) error
	UpdateAssembly(context.Context, store.Assembly, store.AssemblyConfig) error
	DeleteAssembly(context.Context, string) error
	GetUserByID(context.Context, string) (store.User, error)
	EnsureUser(context.Context, store.User) (store.User, error)
	Ping(ctx context.Context) error
}

// sessionStore is the refresh-token backend: Redis when configured,
// Postgres otherwise.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	reorderer *reorder.Engine
	authpw    *authpw.Service
	search    *search.Service
	reports   *export.Service
	uploads   *upload.Store
}

// Options carries optional collaborators that may be absent depending
// on deployment configuration.
type Options struct {
	Sessions sessionStore
	AuthPW   *authpw.Service
	Search   *search.Service
	Reports  *export.Service
	Uploads  *upload.Store
}

func New(cfg config.Config, dataStore dataStore, engine *reorder.Engine, opts Options) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  opts.Sessions,
		reorderer: engine,
		authpw:    opts.AuthPW,
		search:    opts.Search,
		reports:   opts.Reports,
		uploads:   opts.Uploads,
	}
}

// Bootstrap seeds a demo data set on an empty database so a fresh
// development instance has something to show.
func (s *Service) Bootstrap(ctx context.Context) error {
	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return nil
	}

	owner, err := s.store.EnsureUser(ctx, store.User{
		ID:          DevUserID,
		DisplayName: DevUserName,
		Email:       DevUserEmail,
	})
	if err != nil {
		return err
	}

	seeds := []store.Entry{
		{Key: "ent-welcome", Title: "Welcome to OrganAIzer", Content: "Collect notes, tasks and options here, then drag them into the order you want.", Type: "Note", Status: "Open"},
		{Key: "ent-agenda", Title: "Prepare weekly agenda", Content: "Pick the entries for Monday's meeting and generate the agenda report.", Type: "Task", Status: "Open"},
		{Key: "ent-venue", Title: "Offsite venue: lakeside", Content: "One of the venue options for the team offsite.", Type: "Option", Status: "Open"},
	}
	for _, seed := range seeds {
		seed.CreatedBy = owner.ID
		if _, err := s.store.InsertEntry(ctx, seed); err != nil {
			return err
		}
	}
	if err := s.store.ReplaceEntryLabels(ctx, "ent-agenda", []string{"Important"}); err != nil {
		return err
	}

	defaultAssembly := store.Assembly{
		ID:          util.NewID("asm"),
		Name:        "All entries",
		Description: "Every entry in rank order",
		Owner:       owner.ID,
		SortOrder:   string(assembly.SortRank),
		IsDefault:   true,
	}
	cfg := store.AssemblyConfig{
		Includes: []string{},
		Excludes: []string{},
		Filters:  []store.AssemblyFilterRow{},
		Columns:  map[string]bool{"title": true, "type": true, "status": true, "votes": true, "stars": true},
	}
	if err := s.store.InsertAssembly(ctx, defaultAssembly, cfg); err != nil {
		return err
	}

	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

// Login is the development bypass: it signs the caller in as the fixed
// dev identity without credentials. Disabled outside development.
func (s *Service) Login(ctx context.Context) (Session, error) {
	if !s.cfg.IsDevelopment() {
		return Session{}, domainError(http.StatusForbidden, "DEV_LOGIN_DISABLED", "Development login is disabled", nil)
	}
	user, err := s.store.EnsureUser(ctx, store.User{
		ID:          DevUserID,
		DisplayName: DevUserName,
		Email:       DevUserEmail,
	})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	if s.authpw == nil {
		return Session{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	user, err := s.authpw.SignUp(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	if s.authpw == nil {
		return Session{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	user, err := s.authpw.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	// The Redis backend stores only the user id; load the full row.
	if user.DisplayName == "" {
		user, err = s.store.GetUserByID(ctx, user.ID)
		if err != nil {
			return Session{}, err
		}
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		Name:  user.DisplayName,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

func (s *Service) ListEntries(ctx context.Context) ([]map[string]any, error) {
	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		items = append(items, entryPayload(entry))
	}
	return items, nil
}

// FilteredEntries narrows the global list by exact type/status match
// and a case-insensitive text needle, with optional paging.
func (s *Service) FilteredEntries(ctx context.Context, entryType, status, text string, limit, offset int) ([]map[string]any, error) {
	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(text))
	matched := make([]store.Entry, 0, len(entries))
	for _, entry := range entries {
		if entryType != "" && entry.Type != entryType {
			continue
		}
		if status != "" && entry.Status != status {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(entry.Title), needle) &&
			!strings.Contains(strings.ToLower(entry.Content), needle) {
			continue
		}
		matched = append(matched, entry)
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	items := make([]map[string]any, 0, len(matched))
	for _, entry := range matched {
		items = append(items, entryPayload(entry))
	}
	return items, nil
}

// OrderedEntries applies an ad-hoc assembly configuration, passed as
// JSON, without saving it. An empty filter returns the full rank order.
func (s *Service) OrderedEntries(ctx context.Context, filterJSON string) (map[string]any, error) {
	var input AssemblyInput
	if strings.TrimSpace(filterJSON) != "" {
		if err := json.Unmarshal([]byte(filterJSON), &input); err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid assemblyFilter JSON", nil)
		}
	}
	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	compiled := assembly.Compile(assembly.SpecFromConfig(
		store.Assembly{SortOrder: normalizeSortOrder(input.SortOrder)},
		assemblyConfigFromInput(input),
	))
	matched := make([]store.Entry, 0, len(entries))
	for _, entry := range entries {
		if compiled.Predicate(entry) {
			matched = append(matched, entry)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return compiled.Less(matched[i], matched[j])
	})
	items := make([]map[string]any, 0, len(matched))
	for _, entry := range matched {
		items = append(items, entryPayload(entry))
	}
	payload := map[string]any{"success": true, "entries": items}
	if len(compiled.Warnings) > 0 {
		payload["warnings"] = compiled.Warnings
	}
	return payload, nil
}

func (s *Service) GetEntry(ctx context.Context, key string) (map[string]any, error) {
	entry, err := s.store.GetEntry(ctx, key)
	if err != nil {
		return nil, err
	}
	payload := entryPayload(entry)
	relations, err := s.store.ListEntryRelations(ctx, key)
	if err != nil {
		return nil, err
	}
	rels := make([]map[string]any, 0, len(relations))
	for _, rel := range relations {
		rels = append(rels, map[string]any{"type": rel.Type, "targetKey": rel.TargetKey})
	}
	payload["relations"] = rels
	return payload, nil
}

func (s *Service) CreateEntry(ctx context.Context, input EntryInput, userID string) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	key := strings.TrimSpace(input.Key)
	if key == "" {
		key = util.NewID("ent")
	}
	entryType := input.Type
	if entryType == "" {
		entryType = "Note"
	}
	status := input.Status
	if status == "" {
		status = "Open"
	}

	entry, err := s.store.InsertEntry(ctx, store.Entry{
		Key:       key,
		Title:     title,
		Content:   input.Content,
		Type:      entryType,
		Status:    status,
		CreatedBy: userID,
	})
	if err != nil {
		return nil, err
	}
	if len(input.Labels) > 0 {
		if err := s.store.ReplaceEntryLabels(ctx, entry.Key, input.Labels); err != nil {
			return nil, err
		}
		entry, err = s.store.GetEntry(ctx, entry.Key)
		if err != nil {
			return nil, err
		}
	}
	s.indexEntry(entry)
	return entryPayload(entry), nil
}

func (s *Service) UpdateEntry(ctx context.Context, key string, input EntryUpdateInput) (map[string]any, error) {
	entry, err := s.store.UpdateEntry(ctx, key, store.EntryUpdate{
		Title:   input.Title,
		Content: input.Content,
		Type:    input.Type,
		Status:  input.Status,
	})
	if err != nil {
		return nil, err
	}
	if input.Labels != nil {
		if err := s.store.ReplaceEntryLabels(ctx, key, *input.Labels); err != nil {
			return nil, err
		}
	}
	if input.Relations != nil {
		relations := make([]store.Relation, 0, len(input.Relations))
		for _, rel := range input.Relations {
			relations = append(relations, store.Relation{Type: rel.Type, TargetKey: rel.TargetKey})
		}
		if err := s.store.ReplaceEntryRelations(ctx, key, relations); err != nil {
			return nil, err
		}
	}
	if input.Labels != nil || input.Relations != nil {
		entry, err = s.store.GetEntry(ctx, key)
		if err != nil {
			return nil, err
		}
	}
	s.indexEntry(entry)
	return entryPayload(entry), nil
}

func (s *Service) DeleteEntry(ctx context.Context, key string) error {
	if err := s.store.DeleteEntry(ctx, key); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteEntry(key)
	}
	return nil
}

func (s *Service) Vote(ctx context.Context, entryKey, voter string, value int) (map[string]any, error) {
	if value < -1 || value > 1 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "vote must be -1, 0, or 1", nil)
	}
	if _, err := s.store.GetEntry(ctx, entryKey); err != nil {
		return nil, err
	}
	sum, err := s.store.SetVote(ctx, entryKey, voter, value)
	if err != nil {
		return nil, err
	}
	return map[string]any{"key": entryKey, "votes": sum}, nil
}

func (s *Service) Rate(ctx context.Context, entryKey, userID string, rating float64) (map[string]any, error) {
	if rating < 0 || rating > 5 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "rating must be between 0 and 5", nil)
	}
	if _, err := s.store.GetEntry(ctx, entryKey); err != nil {
		return nil, err
	}
	stars, err := s.store.SetRating(ctx, entryKey, userID, rating)
	if err != nil {
		return nil, err
	}
	return map[string]any{"key": entryKey, "stars": stars}, nil
}

// Reorder moves an entry to a new rank. The scope mirrors the filter
// active in the caller's view so entries outside of it keep their
// positions.
func (s *Service) Reorder(ctx context.Context, entryKey string, newRank float64, scope *ReorderScope) (map[string]any, error) {
	result, err := s.reorderer.Reorder(ctx, entryKey, newRank, scopePredicate(scope))
	if err != nil {
		if errors.Is(err, reorder.ErrNotFound) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Entry not found", nil)
		}
		return nil, err
	}
	if result.NoOp {
		return map[string]any{
			"success": true,
			"message": "No rank change needed",
			"entry":   entryPayload(result.Entry),
		}, nil
	}
	reordered := result.Reordered
	if reordered == nil {
		reordered = []reorder.PeerChange{}
	}
	return map[string]any{
		"success":          true,
		"entry":            entryPayload(result.Entry),
		"affectedEntries":  len(reordered),
		"reorderedEntries": reordered,
	}, nil
}

func scopePredicate(scope *ReorderScope) func(store.Entry) bool {
	if scope == nil {
		return nil
	}
	empty := len(scope.Types) == 0 && len(scope.Statuses) == 0 && len(scope.Labels) == 0 &&
		scope.DateFrom == "" && scope.DateTo == ""
	if empty {
		return nil
	}
	var from, to time.Time
	if scope.DateFrom != "" {
		from, _ = time.Parse("2006-01-02", scope.DateFrom)
	}
	if scope.DateTo != "" {
		to, _ = time.Parse("2006-01-02", scope.DateTo)
	}
	return func(e store.Entry) bool {
		if len(scope.Types) > 0 && !containsString(scope.Types, e.Type) {
			return false
		}
		if len(scope.Statuses) > 0 && !containsString(scope.Statuses, e.Status) {
			return false
		}
		if len(scope.Labels) > 0 {
			matched := false
			for _, want := range scope.Labels {
				if containsString(e.Labels, want) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		}
		if !from.IsZero() && e.CreatedAt.Before(from) {
			return false
		}
		if !to.IsZero() && e.CreatedAt.After(to.Add(24*time.Hour)) {
			return false
		}
		return true
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func (s *Service) Search(ctx context.Context, text, filterType, filterStatus string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{
		Text:         text,
		FilterType:   filterType,
		FilterStatus: filterStatus,
		Limit:        limit,
		Offset:       offset,
	}), nil
}

func (s *Service) ListLabels(ctx context.Context) ([]map[string]any, error) {
	labels, err := s.store.ListLabels(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(labels))
	for _, label := range labels {
		items = append(items, map[string]any{"label": label.Label, "color": label.Color})
	}
	return items, nil
}

func (s *Service) ListAssemblies(ctx context.Context) ([]map[string]any, error) {
	assemblies, err := s.store.ListAssemblies(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(assemblies))
	for _, item := range assemblies {
		items = append(items, assemblyPayload(item, nil))
	}
	return items, nil
}

func (s *Service) GetAssembly(ctx context.Context, assemblyID string) (map[string]any, error) {
	item, err := s.store.GetAssembly(ctx, assemblyID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.store.GetAssemblyConfig(ctx, assemblyID)
	if err != nil {
		return nil, err
	}
	return assemblyPayload(item, &cfg), nil
}

func (s *Service) CreateAssembly(ctx context.Context, input AssemblyInput, userID string) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	item := store.Assembly{
		ID:          util.NewID("asm"),
		Name:        name,
		Description: input.Description,
		Owner:       userID,
		SortOrder:   normalizeSortOrder(input.SortOrder),
		IsDefault:   input.IsDefault,
	}
	if err := s.store.InsertAssembly(ctx, item, assemblyConfigFromInput(input)); err != nil {
		return nil, err
	}
	return s.GetAssembly(ctx, item.ID)
}

func (s *Service) UpdateAssembly(ctx context.Context, assemblyID string, input AssemblyInput) (map[string]any, error) {
	existing, err := s.store.GetAssembly(ctx, assemblyID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = existing.Name
	}
	item := store.Assembly{
		ID:          assemblyID,
		Name:        name,
		Description: input.Description,
		Owner:       existing.Owner,
		SortOrder:   normalizeSortOrder(input.SortOrder),
		IsDefault:   input.IsDefault,
	}
	if err := s.store.UpdateAssembly(ctx, item, assemblyConfigFromInput(input)); err != nil {
		return nil, err
	}
	return s.GetAssembly(ctx, assemblyID)
}

func (s *Service) DeleteAssembly(ctx context.Context, assemblyID string) error {
	return s.store.DeleteAssembly(ctx, assemblyID)
}

// AssemblyEntries applies the assembly's compiled filter and sort to
// the full entry set and returns the resulting view.
func (s *Service) AssemblyEntries(ctx context.Context, assemblyID string) (map[string]any, error) {
	item, err := s.store.GetAssembly(ctx, assemblyID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.store.GetAssemblyConfig(ctx, assemblyID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		return nil, err
	}

	compiled := assembly.Compile(assembly.SpecFromConfig(item, cfg))
	matched := make([]store.Entry, 0, len(entries))
	for _, entry := range entries {
		if compiled.Predicate(entry) {
			matched = append(matched, entry)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return compiled.Less(matched[i], matched[j])
	})

	items := make([]map[string]any, 0, len(matched))
	for _, entry := range matched {
		items = append(items, entryPayload(entry))
	}
	payload := map[string]any{
		"success":  true,
		"assembly": assemblyPayload(item, &cfg),
		"entries":  items,
	}
	if len(compiled.Warnings) > 0 {
		payload["warnings"] = compiled.Warnings
	}
	return payload, nil
}

// ReportRequest is the body of a report generation call.
type ReportRequest struct {
	Kind       string              `json:"kind"`
	AssemblyID string              `json:"assemblyId"`
	Meeting    *export.MeetingInfo `json:"meeting"`
	Attendees  []string            `json:"attendees"`
}

// GenerateReport renders a report over an assembly's entries, or over
// every entry when no assembly is given.
func (s *Service) GenerateReport(ctx context.Context, req ReportRequest, userName string) (export.Result, error) {
	if s.reports == nil {
		return export.Result{}, domainError(http.StatusServiceUnavailable, "REPORTS_UNAVAILABLE", "Report service not configured", nil)
	}
	kind := req.Kind
	if kind == "minutes" {
		kind = string(export.KindProtocol)
	}
	assemblyID := req.AssemblyID

	title := "All entries"
	var rows []export.Row
	if assemblyID != "" {
		item, err := s.store.GetAssembly(ctx, assemblyID)
		if err != nil {
			return export.Result{}, err
		}
		cfg, err := s.store.GetAssemblyConfig(ctx, assemblyID)
		if err != nil {
			return export.Result{}, err
		}
		entries, err := s.store.ListEntries(ctx)
		if err != nil {
			return export.Result{}, err
		}
		compiled := assembly.Compile(assembly.SpecFromConfig(item, cfg))
		matched := make([]store.Entry, 0, len(entries))
		for _, entry := range entries {
			if compiled.Predicate(entry) {
				matched = append(matched, entry)
			}
		}
		sort.SliceStable(matched, func(i, j int) bool {
			return compiled.Less(matched[i], matched[j])
		})
		title = item.Name
		rows = reportRows(matched)
	} else {
		entries, err := s.store.ListEntries(ctx)
		if err != nil {
			return export.Result{}, err
		}
		rows = reportRows(entries)
	}

	if export.Kind(kind) == export.KindTodo {
		filtered := rows[:0]
		for _, row := range rows {
			if row.Type == "Task" {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	result, err := s.reports.Generate(export.Request{
		Kind:        export.Kind(kind),
		Title:       title,
		GeneratedBy: userName,
		Meeting:     req.Meeting,
		Attendees:   req.Attendees,
		Rows:        rows,
	})
	if errors.Is(err, export.ErrUnknownKind) {
		return export.Result{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown report kind", nil)
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return export.Result{}, domainError(http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF rendering is not available", nil)
	}
	return result, err
}

func (s *Service) ResolveReport(filename string) (string, error) {
	if s.reports == nil {
		return "", domainError(http.StatusServiceUnavailable, "REPORTS_UNAVAILABLE", "Report service not configured", nil)
	}
	path, err := s.reports.Resolve(filename)
	if err != nil {
		return "", domainError(http.StatusNotFound, "NOT_FOUND", "Report not found", nil)
	}
	return path, nil
}

func (s *Service) Uploads() *upload.Store {
	return s.uploads
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) indexEntry(entry store.Entry) {
	if s.search == nil {
		return
	}
	s.search.IndexEntry(search.EntryRecord{
		Key:     entry.Key,
		Title:   entry.Title,
		Content: entry.Content,
		Type:    entry.Type,
		Status:  entry.Status,
		Labels:  entry.Labels,
		Rank:    entry.Rank,
	})
}

func reportRows(entries []store.Entry) []export.Row {
	rows := make([]export.Row, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, export.Row{
			Key:       entry.Key,
			Title:     entry.Title,
			Content:   entry.Content,
			Type:      entry.Type,
			Status:    entry.Status,
			Rank:      entry.Rank,
			Stars:     entry.Stars,
			VoteSum:   entry.VoteSum,
			Labels:    entry.Labels,
			CreatedBy: entry.CreatedBy,
			CreatedAt: entry.CreatedAt,
			UpdatedAt: entry.UpdatedAt,
		})
	}
	return rows
}

func entryPayload(entry store.Entry) map[string]any {
	labels := entry.Labels
	if labels == nil {
		labels = []string{}
	}
	return map[string]any{
		"key":       entry.Key,
		"title":     entry.Title,
		"content":   entry.Content,
		"type":      entry.Type,
		"status":    entry.Status,
		"rank":      entry.Rank,
		"stars":     entry.Stars,
		"votes":     entry.VoteSum,
		"labels":    labels,
		"createdat": entry.CreatedAt,
		"updatedat": entry.UpdatedAt,
		"createdby": entry.CreatedBy,
	}
}

func assemblyPayload(item store.Assembly, cfg *store.AssemblyConfig) map[string]any {
	payload := map[string]any{
		"id":          item.ID,
		"name":        item.Name,
		"description": item.Description,
		"owner":       item.Owner,
		"sortOrder":   item.SortOrder,
		"isDefault":   item.IsDefault,
		"createdat":   item.CreatedAt,
		"updatedat":   item.UpdatedAt,
	}
	if cfg != nil {
		filters := make([]map[string]any, 0, len(cfg.Filters))
		for _, filter := range cfg.Filters {
			filters = append(filters, map[string]any{
				"filterType":    filter.FilterType,
				"value":         filter.Value,
				"visibleInView": filter.VisibleInView,
			})
		}
		payload["includes"] = cfg.Includes
		payload["excludes"] = cfg.Excludes
		payload["filters"] = filters
		payload["columns"] = cfg.Columns
	}
	return payload
}

func assemblyConfigFromInput(input AssemblyInput) store.AssemblyConfig {
	cfg := store.AssemblyConfig{
		Includes: input.Includes,
		Excludes: input.Excludes,
		Filters:  make([]store.AssemblyFilterRow, 0, len(input.Filters)),
		Columns:  input.Columns,
	}
	if cfg.Includes == nil {
		cfg.Includes = []string{}
	}
	if cfg.Excludes == nil {
		cfg.Excludes = []string{}
	}
	if cfg.Columns == nil {
		cfg.Columns = map[string]bool{}
	}
	for _, filter := range input.Filters {
		cfg.Filters = append(cfg.Filters, store.AssemblyFilterRow{
			FilterType:    filter.FilterType,
			Value:         filter.Value,
			VisibleInView: filter.VisibleInView,
		})
	}
	return cfg
}

func normalizeSortOrder(raw string) string {
	switch assembly.SortOrder(raw) {
	case assembly.SortVoting, assembly.SortStars, assembly.SortType,
		assembly.SortStatus, assembly.SortCreatedAt, assembly.SortUpdatedAt:
		return raw
	default:
		return string(assembly.SortRank)
	}
}
