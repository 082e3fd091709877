// Package remotetest provides an in-process stand-in for the hosted
// identity, row and storage service. It backs the client in tests and in
// the server's memory backend.
package remotetest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pstu-cpl/cpl/internal/remote"
)

const (
	// URL is the base address the Server answers on through Client.
	URL = "http://remote.test"
	// AnonKey is the public key clients must send.
	AnonKey = "remotetest-anon-key"

	defaultTokenTTL = time.Hour
)

// ErrDown is returned by the transport while the Server is marked down.
var ErrDown = errors.New("remotetest: connection refused")

type account struct {
	id       string
	email    string
	hash     []byte
	metadata map[string]any
}

// Server is a fake remote service. The zero value is not usable; call New.
type Server struct {
	// Failure injection. Safe to toggle while requests are in flight.
	Down                 atomic.Bool
	FailUploads          atomic.Bool
	FailSign             atomic.Bool
	UpsertReturnsEmpty   atomic.Bool
	SignUpWithoutSession atomic.Bool

	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
	requests atomic.Int64

	mu         sync.Mutex
	accounts   map[string]*account // by email
	refresh    map[string]string   // refresh token to account id
	tables     map[string][]map[string]any
	objects    map[string]object
	buckets    map[string]bool // bucket to public
	recoveries []string
}

type object struct {
	data        []byte
	contentType string
}

// Option configures a Server.
type Option func(*Server)

// WithTokenTTL sets the lifetime of issued access tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) { s.tokenTTL = ttl }
}

// WithClock sets the server's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates an empty Server with a public "avatars" bucket.
func New(opts ...Option) *Server {
	s := &Server{
		secret:   []byte(uuid.NewString()),
		tokenTTL: defaultTokenTTL,
		now:      time.Now,
		accounts: make(map[string]*account),
		refresh:  make(map[string]string),
		tables:   make(map[string][]map[string]any),
		objects:  make(map[string]object),
		buckets:  map[string]bool{"avatars": true},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns a client configuration that reaches s in process.
func (s *Server) Config() remote.Config {
	return remote.Config{URL: URL, AnonKey: AnonKey, HTTPClient: s.Client(), Now: s.now}
}

// Client returns an http.Client whose transport calls s directly.
func (s *Server) Client() *http.Client {
	return &http.Client{Transport: transport{s}}
}

type transport struct{ s *Server }

func (t transport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.s.requests.Add(1)
	if t.s.Down.Load() {
		return nil, ErrDown
	}
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	rec := httptest.NewRecorder()
	t.s.ServeHTTP(rec, req)
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

// Requests returns how many requests reached the transport.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

// SetBucket creates or reconfigures a storage bucket.
func (s *Server) SetBucket(name string, public bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[name] = public
}

// AddAccount registers an account directly and returns its id.
func (s *Server) AddAccount(email, password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("remotetest: hashing password: %v", err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &account{id: uuid.NewString(), email: strings.ToLower(email), hash: hash}
	s.accounts[a.email] = a
	return a.id
}

// Seed appends rows to table.
func (s *Server) Seed(table string, rows ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.tables[table] = append(s.tables[table], normalizeRow(r))
	}
}

// Rows returns a copy of table.
func (s *Server) Rows(table string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		out = append(out, copyRow(r))
	}
	return out
}

// Object returns a stored blob.
func (s *Server) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[bucket+"/"+key]
	return o.data, ok
}

// Objects returns the keys stored in bucket.
func (s *Server) Objects(bucket string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.objects {
		if rest, ok := strings.CutPrefix(k, bucket+"/"); ok {
			keys = append(keys, rest)
		}
	}
	return keys
}

// Recoveries returns the addresses password recovery was requested for.
func (s *Server) Recoveries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.recoveries...)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	objectURL := r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/storage/v1/object/")
	if !objectURL && r.Header.Get("apikey") != AnonKey {
		writeError(w, http.StatusUnauthorized, "no_api_key", "Invalid API key")
		return
	}

	switch path := r.URL.Path; {
	case strings.HasPrefix(path, "/auth/v1/"):
		s.serveAuth(w, r, strings.TrimPrefix(path, "/auth/v1/"))
	case strings.HasPrefix(path, "/rest/v1/"):
		s.serveRows(w, r, strings.TrimPrefix(path, "/rest/v1/"))
	case strings.HasPrefix(path, "/storage/v1/object/"):
		s.serveStorage(w, r, strings.TrimPrefix(path, "/storage/v1/object/"))
	default:
		writeError(w, http.StatusNotFound, "not_found", "no route")
	}
}

type claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// subject returns the account id of a valid bearer token, or "" for the
// anon key. ok is false for an invalid token.
func (s *Server) subject(r *http.Request) (id string, ok bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" || token == AnonKey {
		return "", true
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", false
	}
	return c.Subject, true
}

func (s *Server) issue(a *account) map[string]any {
	now := s.now()
	exp := now.Add(s.tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: a.email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		panic(fmt.Sprintf("remotetest: signing token: %v", err))
	}
	refresh := uuid.NewString()
	s.refresh[refresh] = a.id

	return map[string]any{
		"access_token":  signed,
		"token_type":    "bearer",
		"expires_in":    int64(s.tokenTTL / time.Second),
		"expires_at":    exp.Unix(),
		"refresh_token": refresh,
		"user":          userJSON(a),
	}
}

func userJSON(a *account) map[string]any {
	return map[string]any{"id": a.id, "email": a.email, "user_metadata": a.metadata}
}

func (s *Server) accountByID(id string) *account {
	for _, a := range s.accounts {
		if a.id == id {
			return a
		}
	}
	return nil
}

func (s *Server) serveAuth(w http.ResponseWriter, r *http.Request, route string) {
	var body struct {
		Email        string         `json:"email"`
		Password     string         `json:"password"`
		RefreshToken string         `json:"refresh_token"`
		Data         map[string]any `json:"data"`
	}
	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "bad_json", err.Error())
			return
		}
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case route == "signup" && r.Method == http.MethodPost:
		if email == "" || len(body.Password) < 6 {
			writeError(w, http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters.")
			return
		}
		if _, exists := s.accounts[email]; exists {
			writeError(w, http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.MinCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "unexpected_failure", err.Error())
			return
		}
		a := &account{id: uuid.NewString(), email: email, hash: hash, metadata: body.Data}
		s.accounts[email] = a
		if s.SignUpWithoutSession.Load() {
			writeJSON(w, http.StatusOK, userJSON(a))
			return
		}
		writeJSON(w, http.StatusOK, s.issue(a))

	case route == "token" && r.Method == http.MethodPost:
		switch r.URL.Query().Get("grant_type") {
		case "password":
			a, ok := s.accounts[email]
			if !ok || bcrypt.CompareHashAndPassword(a.hash, []byte(body.Password)) != nil {
				writeError(w, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
				return
			}
			writeJSON(w, http.StatusOK, s.issue(a))
		case "refresh_token":
			id, ok := s.refresh[body.RefreshToken]
			a := s.accountByID(id)
			if !ok || a == nil {
				writeError(w, http.StatusBadRequest, "refresh_token_not_found", "Invalid Refresh Token: Refresh Token Not Found")
				return
			}
			delete(s.refresh, body.RefreshToken)
			writeJSON(w, http.StatusOK, s.issue(a))
		default:
			writeError(w, http.StatusBadRequest, "unsupported_grant_type", "unsupported grant type")
		}

	case route == "logout" && r.Method == http.MethodPost:
		id, ok := s.subject(r)
		if !ok || id == "" {
			writeError(w, http.StatusUnauthorized, "bad_jwt", "invalid JWT")
			return
		}
		for token, owner := range s.refresh {
			if owner == id {
				delete(s.refresh, token)
			}
		}
		w.WriteHeader(http.StatusNoContent)

	case route == "user":
		id, ok := s.subject(r)
		a := s.accountByID(id)
		if !ok || a == nil {
			writeError(w, http.StatusUnauthorized, "bad_jwt", "invalid JWT")
			return
		}
		if r.Method == http.MethodPut && body.Password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.MinCost)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "unexpected_failure", err.Error())
				return
			}
			a.hash = hash
		}
		writeJSON(w, http.StatusOK, userJSON(a))

	case route == "recover" && r.Method == http.MethodPost:
		s.recoveries = append(s.recoveries, email)
		writeJSON(w, http.StatusOK, map[string]any{})

	default:
		writeError(w, http.StatusNotFound, "not_found", "no auth route "+route)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"code": status, "error_code": code, "msg": msg})
}
