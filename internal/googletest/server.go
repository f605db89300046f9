// Package googletest provides an in-process fake of the Gmail message API
// and the Google OAuth token endpoint for tests.
package googletest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/gmail/v1"
)

const messagesPath = "/gmail/v1/users/me/messages"

// Server is a fake Gmail and OAuth token server. Requests to Gmail must
// carry the current access token or get a 401.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	order        []string
	messages     map[string]*gmail.Message
	validToken   string
	nextToken    string
	refreshToken string
	refreshFail  bool
	failures     map[string][]int
	expireAfter  int

	queries      []string
	getTokens    map[string][]string
	listCalls    int
	getCalls     int
	refreshCalls int
}

// NewServer starts a fake accepting validToken. It is closed on test cleanup.
func NewServer(t testing.TB, validToken string) *Server {
	s := &Server{
		messages:    make(map[string]*gmail.Message),
		validToken:  validToken,
		failures:    make(map[string][]int),
		getTokens:   make(map[string][]string),
		expireAfter: -1,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Endpoint is the Gmail API base URL of the fake
func (s *Server) Endpoint() string {
	return s.URL + "/"
}

// TokenURL is the OAuth token endpoint of the fake
func (s *Server) TokenURL() string {
	return s.URL + "/token"
}

// AddMessage stores a message whose top-level body is plain text
func (s *Server) AddMessage(id, subject, from string, date time.Time, body string) {
	s.AddRaw(&gmail.Message{
		Id:       id,
		ThreadId: "thread-" + id,
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: subject},
				{Name: "From", Value: from},
				{Name: "Date", Value: date.Format(time.RFC1123Z)},
			},
			Body: &gmail.MessagePartBody{Data: Encode(body)},
		},
	})
}

// AddRaw stores a message as given
func (s *Server) AddRaw(msg *gmail.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[msg.Id]; !ok {
		s.order = append(s.order, msg.Id)
	}
	s.messages[msg.Id] = msg
}

// FailGet makes the next fetches of id answer with the given status codes,
// one per call, before succeeding.
func (s *Server) FailGet(id string, codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id] = append(s.failures[id], codes...)
}

// ExpireToken revokes the current access token; a refresh with
// refreshToken will issue next.
func (s *Server) ExpireToken(refreshToken, next string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validToken = ""
	s.refreshToken = refreshToken
	s.nextToken = next
}

// ExpireAfterGets lets n more message fetches succeed and then revokes the
// access token as ExpireToken does.
func (s *Server) ExpireAfterGets(n int, refreshToken, next string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireAfter = n
	s.refreshToken = refreshToken
	s.nextToken = next
}

// FailRefresh makes the token endpoint reject every grant
func (s *Server) FailRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshFail = true
}

// Queries returns the list queries received
func (s *Server) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// Counts returns how many list, get and token calls were served
func (s *Server) Counts() (list, get, refresh int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls, s.getCalls, s.refreshCalls
}

// TokensFor returns the bearer tokens used to fetch message id, in order
func (s *Server) TokensFor(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.getTokens[id]...)
}

// Encode base64url-encodes a body the way Gmail does
func Encode(body string) string {
	return base64.URLEncoding.EncodeToString([]byte(body))
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/token" {
		s.handleToken(w, r)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	switch {
	case r.URL.Path == messagesPath:
		s.listCalls++
		s.queries = append(s.queries, r.URL.Query().Get("q"))
		if token == "" || token != s.validToken {
			writeError(w, http.StatusUnauthorized, "Invalid Credentials")
			return
		}
		resp := gmail.ListMessagesResponse{ResultSizeEstimate: int64(len(s.order))}
		for _, id := range s.order {
			resp.Messages = append(resp.Messages, &gmail.Message{Id: id, ThreadId: s.messages[id].ThreadId})
		}
		writeJSON(w, http.StatusOK, resp)

	case strings.HasPrefix(r.URL.Path, messagesPath+"/"):
		s.getCalls++
		id := strings.TrimPrefix(r.URL.Path, messagesPath+"/")
		s.getTokens[id] = append(s.getTokens[id], token)
		if token == "" || token != s.validToken {
			writeError(w, http.StatusUnauthorized, "Invalid Credentials")
			return
		}
		if codes := s.failures[id]; len(codes) > 0 {
			s.failures[id] = codes[1:]
			writeError(w, codes[0], "injected failure")
			return
		}
		msg, ok := s.messages[id]
		if !ok {
			writeError(w, http.StatusNotFound, "Requested entity was not found.")
			return
		}
		writeJSON(w, http.StatusOK, msg)
		if s.expireAfter > 0 {
			s.expireAfter--
			if s.expireAfter == 0 {
				s.validToken = ""
				s.expireAfter = -1
			}
		}

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++

	if s.refreshFail {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "refresh_token":
		if r.PostForm.Get("refresh_token") != s.refreshToken || s.nextToken == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		s.validToken = s.nextToken
		s.nextToken = ""
	case "authorization_code":
		s.validToken = "code-" + r.PostForm.Get("code")
		s.refreshToken = "refresh-" + r.PostForm.Get("code")
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  s.validToken,
		"refresh_token": s.refreshToken,
		"id_token":      IDToken("owner@example.com", "Owner"),
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

// IDToken builds an unsigned JWT carrying the profile claims Google returns
func IDToken(email, name string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	claims, _ := json.Marshal(map[string]any{
		"email":   email,
		"name":    name,
		"picture": "https://example.com/p.png",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	return header + "." + base64.RawURLEncoding.EncodeToString(claims) + ".c2ln"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"errors":  []map[string]string{{"message": message, "reason": fmt.Sprintf("status%d", code)}},
		},
	})
}
