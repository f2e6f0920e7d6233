package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"mindfuel/internal/books"
	"mindfuel/internal/catalog"
	"mindfuel/internal/docstore"
	"mindfuel/internal/domain"
	"mindfuel/internal/identity"
	"mindfuel/internal/quotes"
	"mindfuel/internal/ratelimit"
	"mindfuel/internal/search"
	"mindfuel/internal/trivia"
	"mindfuel/internal/util"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Identity                   *identity.Client
	Docs                       *docstore.Client
	Catalog                    *catalog.Aggregator
	Books                      *books.Client
	Quotes                     *quotes.Client
	Trivia                     *trivia.Service
	Search                     *search.Debouncer
	RedisAddr                  string
	RedisPassword              string
	RegisterRateLimitPerMinute int
	LoginRateLimitPerMinute    int
}

// Server exposes the app-facing HTTP endpoints.
type Server struct {
	identity        *identity.Client
	docs            *docstore.Client
	catalog         *catalog.Aggregator
	books           *books.Client
	quotes          *quotes.Client
	trivia          *trivia.Service
	search          *search.Debouncer
	mux             *http.ServeMux
	registerLimiter *ratelimit.FixedWindowLimiter
	loginLimiter    *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured. Rate limiting is
// enabled only when a Redis address is supplied.
func New(cfg Config) (*Server, error) {
	s := &Server{
		identity: cfg.Identity,
		docs:     cfg.Docs,
		catalog:  cfg.Catalog,
		books:    cfg.Books,
		quotes:   cfg.Quotes,
		trivia:   cfg.Trivia,
		search:   cfg.Search,
		mux:      http.NewServeMux(),
	}
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		registerLimit := cfg.RegisterRateLimitPerMinute
		if registerLimit <= 0 {
			registerLimit = 5
		}
		loginLimit := cfg.LoginRateLimitPerMinute
		if loginLimit <= 0 {
			loginLimit = 10
		}
		newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
			prefix := "mindfuel:ratelimit:" + name
			limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		var err error
		if s.registerLimiter, err = newLimiter("register", registerLimit); err != nil {
			return nil, err
		}
		if s.loginLimiter, err = newLimiter("login", loginLimit); err != nil {
			return nil, err
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("mindfuel", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/splash", s.handleSplash)

	// auth
	s.mux.HandleFunc("/api/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)

	// signed-in surface
	s.mux.Handle("/api/dashboard", s.authenticated(s.handleDashboard))
	s.mux.Handle("/api/books", s.authenticated(s.handleBooks))
	s.mux.Handle("/api/search", s.authenticated(s.handleSearch))
	s.mux.Handle("/api/quotes", s.authenticated(s.handleQuotes))
	s.mux.Handle("/api/trivia/sessions", s.authenticated(s.handleTriviaStart))
	s.mux.Handle("/api/trivia/sessions/", s.authenticated(s.handleTriviaAnswer))

	// admin
	s.mux.Handle("/api/admin/books", s.adminOnly(s.handleAdminBooks))
	s.mux.Handle("/api/admin/books/", s.adminOnly(s.handleAdminBookByID))
	s.mux.Handle("/api/admin/users", s.adminOnly(s.handleAdminUsers))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

// headerUser recovers the caller identity from the X-User-Id and
// X-User-Role headers. The app is trusted to report the role it was
// granted at login.
func headerUser(r *http.Request) (domain.User, bool) {
	id := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if id == "" {
		return domain.User{}, false
	}
	role, ok := domain.ParseRole(r.Header.Get("X-User-Role"))
	if !ok {
		return domain.User{}, false
	}
	return domain.User{ID: id, Role: role}, true
}

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := headerUser(r)
		if !ok {
			s.audit(r, "app.authorize", "fail")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		s.audit(r, "app.authorize", "success", "user_id", user.ID)
		next(w, r, user)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := headerUser(r)
		if !ok {
			s.audit(r, "app.admin.authorize", "fail", "reason", "missing_identity")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if user.Role != domain.RoleAdmin {
			s.audit(r, "app.admin.authorize", "fail", "user_id", user.ID, "reason", "forbidden")
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		s.audit(r, "app.admin.authorize", "success", "user_id", user.ID)
		next(w, r, user)
	})
}

// userRecord is the users/{id} document shape in the store.
type userRecord struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
	Name  string      `json:"name,omitempty"`
}

// auth handlers
func (s *Server) handleSplash(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	quote, err := s.quotes.Random(r.Context())
	if err != nil {
		writeQuoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.registerLimiter, "too many registration attempts") {
		s.audit(r, "app.register", "rate_limited")
		return
	}
	var req authRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "app.register", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		s.audit(r, "app.register", "fail", "reason", "invalid_role")
		writeError(w, http.StatusBadRequest, "please select a role (user/admin)")
		return
	}
	account, err := s.identity.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, "app.register", "fail", "reason", err.Error())
		writeIdentityError(w, err)
		return
	}
	record := userRecord{Email: account.Email, Role: role}
	if err := s.docs.Put(r.Context(), "users/"+account.UserID, record); err != nil {
		s.audit(r, "app.register", "fail", "user_id", account.UserID, "reason", "profile_write_failed")
		writeStoreError(w, err)
		return
	}
	s.audit(r, "app.register", "success", "user_id", account.UserID)
	writeJSON(w, http.StatusCreated, sessionResponse{
		UserID: account.UserID,
		Email:  account.Email,
		Role:   role,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "app.login", "rate_limited")
		return
	}
	var req authRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "app.login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		s.audit(r, "app.login", "fail", "reason", "invalid_role")
		writeError(w, http.StatusBadRequest, "please select a role (user/admin)")
		return
	}
	account, err := s.identity.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, "app.login", "fail", "reason", err.Error())
		writeIdentityError(w, err)
		return
	}
	var record userRecord
	found, err := s.docs.Get(r.Context(), "users/"+account.UserID, &record)
	if err != nil {
		s.audit(r, "app.login", "fail", "user_id", account.UserID, "reason", "profile_read_failed")
		writeStoreError(w, err)
		return
	}
	if !found {
		s.audit(r, "app.login", "fail", "user_id", account.UserID, "reason", "profile_missing")
		writeError(w, http.StatusNotFound, "user data not found")
		return
	}
	if record.Role != role {
		s.audit(r, "app.login", "fail", "user_id", account.UserID, "reason", "role_mismatch")
		writeError(w, http.StatusForbidden, "role mismatch, please select the role you registered with")
		return
	}
	s.audit(r, "app.login", "success", "user_id", account.UserID, "role", string(role))
	resp := sessionResponse{
		UserID: account.UserID,
		Email:  account.Email,
		Role:   role,
	}
	if !account.Expires.IsZero() {
		resp.ExpiresAt = account.Expires.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDashboard returns the role-specific landing payload. A missing
// or unreadable profile degrades to a generic greeting.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	greeting := "User"
	destinations := []string{"books", "search", "quotes", "trivia"}
	if user.Role == domain.RoleAdmin {
		greeting = "Admin"
		destinations = []string{"admin/books", "admin/users"}
	}
	var record userRecord
	found, err := s.docs.Get(r.Context(), "users/"+user.ID, &record)
	if err != nil {
		s.audit(r, "app.dashboard", "fail", "user_id", user.ID, "reason", "profile_read_failed")
	}
	if found {
		switch {
		case user.Role == domain.RoleAdmin && record.Name != "":
			greeting = record.Name
		case user.Role == domain.RoleUser && record.Email != "":
			greeting = record.Email
		}
	}
	writeJSON(w, http.StatusOK, dashboardResponse{
		Role:         user.Role,
		Greeting:     greeting,
		Destinations: destinations,
	})
}

// /api/books
func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request, user domain.User) {
	_ = user
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	items := s.catalog.Fetch(r.Context())
	if relatedTo := strings.TrimSpace(r.URL.Query().Get("related_to")); relatedTo != "" {
		var selected *domain.Book
		for i := range items {
			if items[i].ID == relatedTo {
				selected = &items[i]
				break
			}
		}
		if selected == nil {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		related := catalog.Related(items, *selected)
		writeJSON(w, http.StatusOK, listResponse{Items: related, Count: len(related)})
		return
	}
	items = catalog.Filter(items, r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, listResponse{Items: items, Count: len(items)})
}

// handleSearch serves the live search box. Keystrokes arrive faster
// than results are wanted, so each caller's query sits out a quiet
// period first; a query superseded while waiting gets 409 and the
// newest one proceeds to the external catalog.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusOK, listResponse{Items: []domain.Book{}, Count: 0})
		return
	}
	if err := s.search.Wait(r.Context(), user.ID); err != nil {
		if errors.Is(err, search.ErrSuperseded) {
			writeError(w, http.StatusConflict, "superseded by a newer search")
		}
		return
	}
	items, err := s.books.Search(r.Context(), query)
	if err != nil {
		writeBookError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Count: len(items)})
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request, user domain.User) {
	_ = user
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	items, err := s.quotes.List(r.Context())
	if err != nil {
		writeQuoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// trivia handlers
func (s *Server) handleTriviaStart(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	sess, err := s.trivia.Start(r.Context(), user.ID)
	if err != nil {
		s.audit(r, "app.trivia.start", "fail", "user_id", user.ID, "reason", err.Error())
		writeError(w, http.StatusBadGateway, "trivia service unavailable")
		return
	}
	s.audit(r, "app.trivia.start", "success", "user_id", user.ID, "session_id", sess.ID)
	writeJSON(w, http.StatusCreated, sessionView(sess))
}

// /api/trivia/sessions/{id}/answers
func (s *Server) handleTriviaAnswer(w http.ResponseWriter, r *http.Request, user domain.User) {
	_ = user
	path := strings.TrimPrefix(r.URL.Path, "/api/trivia/sessions/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" || len(parts) != 2 || parts[1] != "answers" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req answerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Option == "" {
		writeError(w, http.StatusBadRequest, "option is required")
		return
	}
	result, err := s.trivia.Answer(r.Context(), id, req.Option)
	if err != nil {
		switch {
		case errors.Is(err, trivia.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "trivia session not found")
		case errors.Is(err, trivia.ErrSessionCompleted):
			writeError(w, http.StatusConflict, "trivia session already completed")
		default:
			writeError(w, http.StatusBadGateway, "trivia service unavailable")
		}
		return
	}
	writeJSON(w, http.StatusOK, answerView(result))
}

// admin handlers
func (s *Server) handleAdminBooks(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var in catalog.Input
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	items, err := s.catalog.Create(r.Context(), in)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	s.audit(r, "app.admin.books.create", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, listResponse{Items: items, Count: len(items)})
}

// /api/admin/books/{id}?source=store|external
func (s *Server) handleAdminBookByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/books/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	provenance, ok := parseProvenance(r.URL.Query().Get("source"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid source")
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var in catalog.Input
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		items, err := s.catalog.Update(r.Context(), id, provenance, in)
		if err != nil {
			writeCatalogError(w, err)
			return
		}
		s.audit(r, "app.admin.books.update", "success", "user_id", user.ID, "book_id", id)
		writeJSON(w, http.StatusOK, listResponse{Items: items, Count: len(items)})
	case http.MethodDelete:
		items, err := s.catalog.Delete(r.Context(), id, provenance)
		if err != nil {
			writeCatalogError(w, err)
			return
		}
		s.audit(r, "app.admin.books.delete", "success", "user_id", user.ID, "book_id", id)
		writeJSON(w, http.StatusOK, listResponse{Items: items, Count: len(items)})
	default:
		methodNotAllowed(w)
	}
}

// handleAdminUsers lists registered profiles, admins excluded.
func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request, user domain.User) {
	_ = user
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	var records map[string]userRecord
	if err := s.docs.List(r.Context(), "users", &records); err != nil {
		writeStoreError(w, err)
		return
	}
	keys := make([]string, 0, len(records))
	for key := range records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	items := make([]userView, 0, len(records))
	for _, key := range keys {
		record := records[key]
		if record.Role == domain.RoleAdmin {
			continue
		}
		view := userView{ID: key, Email: record.Email, Role: record.Role}
		if view.Email == "" {
			view.Email = "No Email"
		}
		if view.Role == "" {
			view.Role = domain.RoleUser
		}
		items = append(items, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type sessionResponse struct {
	UserID    string      `json:"userId"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	ExpiresAt string      `json:"expiresAt,omitempty"`
}

type dashboardResponse struct {
	Role         domain.Role `json:"role"`
	Greeting     string      `json:"greeting"`
	Destinations []string    `json:"destinations"`
}

type listResponse struct {
	Items []domain.Book `json:"items"`
	Count int           `json:"count"`
}

type answerRequest struct {
	Option string `json:"option"`
}

type userView struct {
	ID    string      `json:"id"`
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

// questionView hides the correct answer from the client.
type questionView struct {
	Prompt  string   `json:"question"`
	Options []string `json:"options"`
}

type triviaSessionView struct {
	SessionID string        `json:"sessionId"`
	Index     int           `json:"index"`
	Score     int           `json:"score"`
	Total     int           `json:"total"`
	Question  *questionView `json:"question,omitempty"`
}

type triviaAnswerView struct {
	Correct   bool               `json:"correct"`
	Score     int                `json:"score"`
	Index     int                `json:"index"`
	Total     int                `json:"total"`
	Completed bool               `json:"completed"`
	Persisted bool               `json:"persisted"`
	Question  *questionView      `json:"question,omitempty"`
	Next      *triviaSessionView `json:"next,omitempty"`
}

func viewOfQuestion(q domain.Question) *questionView {
	return &questionView{Prompt: q.Prompt, Options: q.Options}
}

func sessionView(sess trivia.Session) triviaSessionView {
	view := triviaSessionView{
		SessionID: sess.ID,
		Index:     sess.Index,
		Score:     sess.Score,
		Total:     len(sess.Questions),
	}
	if sess.Index < len(sess.Questions) {
		view.Question = viewOfQuestion(sess.Questions[sess.Index])
	}
	return view
}

func answerView(result trivia.Result) triviaAnswerView {
	view := triviaAnswerView{
		Correct:   result.Correct,
		Score:     result.Score,
		Index:     result.Index,
		Total:     result.Total,
		Completed: result.Completed,
		Persisted: result.Persisted,
	}
	if result.Current != nil {
		view.Question = viewOfQuestion(*result.Current)
	}
	if result.Next != nil {
		next := sessionView(*result.Next)
		view.Next = &next
	}
	return view
}

func parseProvenance(source string) (domain.Provenance, bool) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "", string(domain.ProvenanceStore):
		return domain.ProvenanceStore, true
	case string(domain.ProvenanceExternal):
		return domain.ProvenanceExternal, true
	default:
		return "", false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeIdentityError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*identity.APIError); ok {
		writeError(w, apiErr.Status, apiErr.Message)
		return
	}
	writeError(w, http.StatusBadGateway, "identity provider unavailable")
}

func writeStoreError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*docstore.APIError); ok {
		writeError(w, apiErr.Status, apiErr.Message)
		return
	}
	writeError(w, http.StatusBadGateway, "data store unavailable")
}

func writeBookError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*books.APIError); ok {
		writeError(w, apiErr.Status, apiErr.Message)
		return
	}
	writeError(w, http.StatusBadGateway, "book search unavailable")
}

func writeQuoteError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*quotes.APIError); ok {
		writeError(w, apiErr.Status, apiErr.Message)
		return
	}
	writeError(w, http.StatusBadGateway, "quote service unavailable")
}

func writeCatalogError(w http.ResponseWriter, err error) {
	var readOnly *catalog.ReadOnlyError
	if errors.As(err, &readOnly) {
		writeError(w, http.StatusForbidden, readOnly.Error())
		return
	}
	var invalid *catalog.ValidationError
	if errors.As(err, &invalid) {
		writeError(w, http.StatusBadRequest, invalid.Error())
		return
	}
	writeStoreError(w, err)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, nil)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logger := util.LoggerFromContext(r.Context())
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, nil),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}
