package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"moscowboard/api/internal/board"
	"moscowboard/api/internal/export"
	"moscowboard/api/internal/feed"
	"moscowboard/api/internal/i18n"
	"moscowboard/api/internal/metrics"
	"moscowboard/api/internal/search"
)

// ReadinessCheck is an extra dependency probed by /api/ready.
type ReadinessCheck func(ctx context.Context) error

type HTTPOptions struct {
	CORSOrigin     string
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         logrus.FieldLogger
	Checks         map[string]ReadinessCheck
}

type HTTPServer struct {
	service *Service
	live    *feed.WSHandler
	limiter *RateLimiter
	opts    HTTPOptions
	logger  logrus.FieldLogger
}

func NewHTTPServer(service *Service, live *feed.WSHandler, opts HTTPOptions) *HTTPServer {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	return &HTTPServer{
		service: service,
		live:    live,
		limiter: NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		opts:    opts,
		logger:  opts.Logger.WithField("component", "http"),
	}
}

func (s *HTTPServer) Limiter() *RateLimiter { return s.limiter }

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestContext(s.logger), cors(s.opts.CORSOrigin), metrics.InstrumentHandler, middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, CodeNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, CodeNotFound, "Method not allowed", nil)
	})

	r.Get("/api/health", s.handleHealth)
	r.Head("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/api/moscow", s.handleExplanation)
	r.Get("/api/session", s.handleSession)
	r.With(s.rateLimit).Post("/api/session/anonymous", s.handleRegister)
	r.Post("/api/session/refresh", s.handleRefresh)
	r.Post("/api/session/logout", s.handleLogout)
	r.Get("/api/live", s.handleLive)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Get("/api/functionalities", s.handleListFunctionalities)
		r.With(s.rateLimit).Post("/api/functionalities", s.handleAdd)
		r.Get("/api/functionalities/{id}/history", s.handleHistory)
		r.With(s.rateLimit).Post("/api/functionalities/{id}/move", s.handleMove)

		r.Get("/api/board", s.handleBoard)
		r.Post("/api/board/drop", s.handleDrop)
		r.Get("/api/board/export", s.handleExport)
		r.With(s.rateLimit).Post("/api/board/archive", s.handleArchive)

		r.Get("/api/changelog", s.handleChangeLog)
		r.Get("/api/search", s.handleSearch)
	})
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}

	probe := func(name string, check func(context.Context) error) {
		if err := check(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			return
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	probe("database", s.service.Ping)
	for name, check := range s.opts.Checks {
		probe(name, check)
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     statusCode == http.StatusOK,
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleExplanation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Explanation(s.locale(r)))
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	signedOut := map[string]any{"authenticated": false, "username": nil}
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, signedOut)
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if status, _, _, _ := mapError(err); status >= http.StatusInternalServerError {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, signedOut)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userId":        session.UserID,
		"username":      session.Username,
		"expiresAt":     session.ExpiresAt,
	})
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"username":     session.Username,
		"expiresAt":    session.ExpiresAt,
	}
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, CodeInvalidBody, err.Error(), nil)
		return
	}
	session, err := s.service.Register(r.Context(), body.Username)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, CodeInvalidBody, err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.RefreshToken) == "" {
		s.writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "Refresh token invalid", nil)
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	session := Session{}
	if token := bearerToken(r); token != "" {
		if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			session = parsed
		}
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	_ = s.service.Logout(r.Context(), session, body.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleLive authenticates before the upgrade. Browsers cannot set headers
// on a websocket handshake, so the token may come in the query string.
func (s *HTTPServer) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.live == nil {
		s.writeError(w, r, http.StatusNotFound, CodeNotFound, "Live feed disabled", nil)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	if token == "" {
		s.writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", nil)
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.live.Serve(w, r, session.UserID)
}

func (s *HTTPServer) handleListFunctionalities(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListFunctionalities(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"functionalities": items})
}

func (s *HTTPServer) handleAdd(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	var input board.AddInput
	if err := decodeBody(r, &input); err != nil {
		s.writeError(w, r, http.StatusBadRequest, CodeInvalidBody, err.Error(), nil)
		return
	}
	result, err := s.service.AddFunctionality(r.Context(), session, input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	locale := s.locale(r)
	notification := s.service.Catalog().Notify(locale, CodeFunctionalityAdded, i18n.VariantDefault, map[string]string{
		"text":          board.ShortText(result.Functionality.Text),
		"priorityLabel": s.service.Catalog().PriorityLabel(locale, result.Functionality.Priority),
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"functionality":  result.Functionality,
		"changeLogEntry": result.Entry,
		"notification":   notification,
	})
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	f, entries, err := s.service.History(r.Context(), s.locale(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"functionality": f, "changeLog": entries})
}

func (s *HTTPServer) handleMove(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	var input board.MoveInput
	if err := decodeBody(r, &input); err != nil {
		s.writeError(w, r, http.StatusBadRequest, CodeInvalidBody, err.Error(), nil)
		return
	}
	result, err := s.service.MoveFunctionality(r.Context(), session, chi.URLParam(r, "id"), input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	locale := s.locale(r)
	catalog := s.service.Catalog()
	notification := catalog.Notify(locale, CodeFunctionalityMoved, i18n.VariantDefault, map[string]string{
		"text":         board.ShortText(result.Functionality.Text),
		"fromPriority": catalog.PriorityLabel(locale, result.Entry.FromPriority),
		"toPriority":   catalog.PriorityLabel(locale, result.Entry.ToPriority),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"functionality":  result.Functionality,
		"changeLogEntry": result.Entry,
		"notification":   notification,
	})
}

func (s *HTTPServer) handleBoard(w http.ResponseWriter, r *http.Request) {
	locale := s.locale(r)
	columns, err := s.service.Board(r.Context(), locale)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locale": locale, "columns": columns})
}

func (s *HTTPServer) handleDrop(w http.ResponseWriter, r *http.Request) {
	var drop board.Drop
	if err := decodeBody(r, &drop); err != nil {
		s.writeError(w, r, http.StatusBadRequest, CodeInvalidBody, err.Error(), nil)
		return
	}
	outcome, err := s.service.ResolveDrop(r.Context(), drop)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *HTTPServer) handleChangeLog(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.service.ChangeLog(r.Context(), s.locale(r), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changeLog": entries})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	response := s.service.Search(r.Context(), strings.TrimSpace(query.Get("q")), search.ResultType(query.Get("type")), limit, offset)
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.service.Export(r.Context(), format, s.locale(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleArchive(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.Archive(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *HTTPServer) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", nil)
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), session)))
	})
}

func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !s.limiter.Allow(key) {
			s.logger.WithFields(logrus.Fields{
				"request_id": requestIDFrom(r.Context()),
				"key":        key,
				"path":       r.URL.Path,
			}).Warn("rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			s.writeError(w, r, http.StatusTooManyRequests, CodeRateLimited, "Too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) locale(r *http.Request) string {
	return s.service.Catalog().Resolve(r.URL.Query().Get("locale"), r.Header.Get("Accept-Language"))
}

// fail maps err to a response. Server errors are logged with the request id;
// the client only sees the localized notification.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"request_id": requestIDFrom(r.Context()),
			"path":       r.URL.Path,
			"code":       code,
		}).Error("request failed")
	}
	s.writeError(w, r, status, code, message, details)
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	response := map[string]any{
		"code":         code,
		"error":        message,
		"notification": s.service.Catalog().Notify(s.locale(r), code, i18n.VariantDestructive, nil),
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
