package backendtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"example.com/puppylog/domain"
)

// Server emulates the hosted service's REST surface over httptest: the auth
// provider under /auth/v1, the row store under /rest/v1, and object storage
// under /storage/v1. It signs access tokens with a throwaway HS256 secret,
// which is enough for a client that decodes claims without verifying.
type Server struct {
	ts     *httptest.Server
	secret []byte

	mu       sync.Mutex
	accounts map[string]account
	profiles map[string]domain.Profile
	rows     map[string]domain.Activity
	objects  map[string][]byte
	nextID   int
	refresh  map[string]string // refresh token -> email
}

type account struct {
	password string
	userID   string
	verified bool
}

// NewServer starts the emulation; callers own Close.
func NewServer() *Server {
	s := &Server{
		secret:   []byte("backendtest-secret"),
		accounts: make(map[string]account),
		profiles: make(map[string]domain.Profile),
		rows:     make(map[string]domain.Activity),
		objects:  make(map[string][]byte),
		refresh:  make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/signup", s.signup)
	mux.HandleFunc("/auth/v1/token", s.token)
	mux.HandleFunc("/auth/v1/logout", s.logout)
	mux.HandleFunc("/rest/v1/profiles", s.profileRows)
	mux.HandleFunc("/rest/v1/activities", s.activityRows)
	mux.HandleFunc("/storage/v1/object/", s.object)
	s.ts = httptest.NewServer(mux)
	return s
}

// URL is the emulated service endpoint.
func (s *Server) URL() string { return s.ts.URL }

// Close shuts the HTTP listener down.
func (s *Server) Close() { s.ts.Close() }

// Register creates an account with a provisioned profile, as if the hosted
// trigger already ran.
func (s *Server) Register(email, password, userID, name, puppyName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[email] = account{password: password, userID: userID, verified: true}
	s.profiles[userID] = domain.Profile{UserID: userID, DisplayName: name, PuppyName: puppyName}
}

// RegisterUnprovisioned creates an account whose profile row does not exist
// yet.
func (s *Server) RegisterUnprovisioned(email, password, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[email] = account{password: password, userID: userID, verified: true}
}

// ObjectCount reports how many blobs have been stored.
func (s *Server) ObjectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *Server) mintToken(acct account, email string) string {
	claims := jwt.MapClaims{
		"sub":            acct.userID,
		"email":          email,
		"email_verified": acct.verified,
		"exp":            time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		panic(fmt.Sprintf("backendtest: sign token: %v", err))
	}
	return signed
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Data     struct {
			Name      string `json:"name"`
			PuppyName string `json:"puppy_name"`
		} `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "unable to parse body")
		return
	}

	s.mu.Lock()
	if _, exists := s.accounts[req.Email]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusUnprocessableEntity, "user already registered")
		return
	}
	s.nextID++
	acct := account{password: req.Password, userID: fmt.Sprintf("user-%d", s.nextID), verified: false}
	s.accounts[req.Email] = acct
	// Deliberately no profile row here: the provisioning trigger is a
	// separate concern and tests opt into it via Register.
	s.mu.Unlock()

	s.writeGrant(w, acct, req.Email)
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}
	switch r.URL.Query().Get("grant_type") {
	case "password":
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "unable to parse body")
			return
		}
		s.mu.Lock()
		acct, ok := s.accounts[req.Email]
		s.mu.Unlock()
		if !ok || acct.password != req.Password {
			writeError(w, http.StatusUnauthorized, "invalid login credentials")
			return
		}
		s.writeGrant(w, acct, req.Email)
	case "refresh_token":
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "unable to parse body")
			return
		}
		s.mu.Lock()
		email, ok := s.refresh[req.RefreshToken]
		acct := s.accounts[email]
		s.mu.Unlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		s.writeGrant(w, acct, email)
	default:
		writeError(w, http.StatusBadRequest, "unsupported grant type")
	}
}

func (s *Server) writeGrant(w http.ResponseWriter, acct account, email string) {
	refreshToken := fmt.Sprintf("refresh-%s-%d", acct.userID, time.Now().UnixNano())
	s.mu.Lock()
	s.refresh[refreshToken] = email
	s.mu.Unlock()

	verifiedAt := ""
	if acct.verified {
		verifiedAt = time.Now().UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  s.mintToken(acct, email),
		"refresh_token": refreshToken,
		"expires_in":    3600,
		"user": map[string]string{
			"id":                 acct.userID,
			"email":              email,
			"email_confirmed_at": verifiedAt,
		},
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) profileRows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}
	userID := eqFilter(r, "user_id")

	s.mu.Lock()
	profile, ok := s.profiles[userID]
	s.mu.Unlock()

	single := strings.Contains(r.Header.Get("Accept"), "vnd.pgrst.object")
	if !ok {
		if single {
			writeError(w, http.StatusNotAcceptable, "JSON object requested, multiple (or no) rows returned")
			return
		}
		writeJSON(w, http.StatusOK, []domain.Profile{})
		return
	}
	if single {
		writeJSON(w, http.StatusOK, profile)
		return
	}
	writeJSON(w, http.StatusOK, []domain.Profile{profile})
}

func (s *Server) activityRows(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listRows(w, r)
	case http.MethodPost:
		s.insertRow(w, r)
	case http.MethodPatch:
		s.updateRows(w, r)
	case http.MethodDelete:
		s.deleteRows(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
	}
}

func (s *Server) listRows(w http.ResponseWriter, r *http.Request) {
	userID := eqFilter(r, "user_id")

	s.mu.Lock()
	out := make([]domain.Activity, 0, len(s.rows))
	for _, row := range s.rows {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	s.mu.Unlock()

	if strings.HasPrefix(r.URL.Query().Get("order"), "timestamp.desc") {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) insertRow(w http.ResponseWriter, r *http.Request) {
	var fields domain.NewActivity
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "unable to parse body")
		return
	}
	if !fields.Type.Valid() {
		writeError(w, http.StatusBadRequest, "invalid activity type")
		return
	}

	s.mu.Lock()
	s.nextID++
	row := domain.Activity{
		ID:        fmt.Sprintf("row-%d", s.nextID),
		UserID:    fields.UserID,
		Type:      fields.Type,
		Timestamp: time.Now().UTC(),
		Notes:     fields.Notes,
		PhotoURL:  fields.PhotoURL,
	}
	s.rows[row.ID] = row
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, []domain.Activity{row})
}

func (s *Server) updateRows(w http.ResponseWriter, r *http.Request) {
	id, userID := eqFilter(r, "id"), eqFilter(r, "user_id")
	var patch domain.ActivityPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "unable to parse body")
		return
	}

	s.mu.Lock()
	row, ok := s.rows[id]
	if !ok || row.UserID != userID {
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, []domain.Activity{})
		return
	}
	if patch.Type != nil {
		row.Type = *patch.Type
	}
	if patch.Timestamp != nil {
		row.Timestamp = *patch.Timestamp
	}
	if patch.Notes != nil {
		row.Notes = *patch.Notes
	}
	if patch.PhotoURL != nil {
		row.PhotoURL = *patch.PhotoURL
	}
	s.rows[id] = row
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, []domain.Activity{row})
}

func (s *Server) deleteRows(w http.ResponseWriter, r *http.Request) {
	id, userID := eqFilter(r, "id"), eqFilter(r, "user_id")

	s.mu.Lock()
	if row, ok := s.rows[id]; ok && row.UserID == userID {
		delete(s.rows, id)
	}
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) object(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/storage/v1/object/")
	switch r.Method {
	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unable to read body")
			return
		}
		s.mu.Lock()
		s.objects[path] = body
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"Key": path})
	case http.MethodDelete:
		s.mu.Lock()
		delete(s.objects, path)
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
	}
}

// eqFilter extracts the value of a PostgREST-style eq. filter parameter.
func eqFilter(r *http.Request, column string) string {
	return strings.TrimPrefix(r.URL.Query().Get(column), "eq.")
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"message": detail})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
