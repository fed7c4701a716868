package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/folio/internal/admins"
	"github.com/MarcoPoloResearchLab/folio/internal/assistant"
	"github.com/MarcoPoloResearchLab/folio/internal/auth"
	"github.com/MarcoPoloResearchLab/folio/internal/blog"
	"github.com/MarcoPoloResearchLab/folio/internal/captcha"
	"github.com/MarcoPoloResearchLab/folio/internal/comments"
	"github.com/MarcoPoloResearchLab/folio/internal/contact"
	"github.com/MarcoPoloResearchLab/folio/internal/database"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	testAdminUsername = "admin"
	testAdminPassword = "correct horse battery"
	testPostSlug      = "hello-world"
)

// challengeRecorder renders a blank canvas and remembers the challenge per image.
type challengeRecorder struct {
	mu         sync.Mutex
	challenges map[image.Image]string
}

func (r *challengeRecorder) Render(challenge string) (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.challenges == nil {
		r.challenges = make(map[image.Image]string)
	}
	canvas := image.NewRGBA(image.Rect(0, 0, 4, 2))
	r.challenges[canvas] = challenge
	return canvas, nil
}

type sequenceIDProvider struct {
	mu     sync.Mutex
	prefix string
	count  int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	return fmt.Sprintf("%s-%03d", p.prefix, p.count), nil
}

type testServer struct {
	handler      http.Handler
	captchaStore *captcha.SessionStore
	recorder     *challengeRecorder
	tokens       *auth.TokenIssuer
	realtime     *RealtimeDispatcher
	blog         *blog.Service
	db           *gorm.DB
}

type testServerOptions struct {
	attemptsPerMinute float64
	attemptBurst      int
}

func newTestServer(t *testing.T, options ...func(*testServerOptions)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	settings := testServerOptions{attemptsPerMinute: 6000, attemptBurst: 1000}
	for _, option := range options {
		option(&settings)
	}

	logger := zap.NewNop()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "folio.db"), logger)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	var clockMu sync.Mutex
	current := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		current = current.Add(time.Second)
		return current
	}

	recorder := &challengeRecorder{}
	sessionCount := 0
	captchaStore := captcha.NewSessionStore(captcha.SessionStoreConfig{
		TTL: time.Minute,
		NewVerifier: func(onVerified captcha.VerifiedFunc) (*captcha.Verifier, error) {
			return captcha.NewVerifier(captcha.VerifierConfig{OnVerified: onVerified, Renderer: recorder})
		},
		NewID: func() (string, error) {
			sessionCount++
			return fmt.Sprintf("captcha-%d", sessionCount), nil
		},
	})

	commentService, err := comments.NewService(comments.ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: &sequenceIDProvider{prefix: "c"},
	})
	if err != nil {
		t.Fatalf("failed to build comment service: %v", err)
	}
	blogService, err := blog.NewService(blog.ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to build blog service: %v", err)
	}
	contactService, err := contact.NewService(contact.ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: &sequenceIDProvider{prefix: "m"},
	})
	if err != nil {
		t.Fatalf("failed to build contact service: %v", err)
	}
	adminService, err := admins.NewService(admins.ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to build admin service: %v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if err := adminService.EnsureAdmin(context.Background(), testAdminUsername, string(hash)); err != nil {
		t.Fatalf("failed to seed admin: %v", err)
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}

	if _, err := blogService.UpsertPost(context.Background(), blog.PostInput{
		Slug:      blog.Slug(testPostSlug),
		Title:     "Hello World",
		Summary:   "First post",
		Markdown:  "# Hello\n\nWelcome.",
		Published: true,
	}); err != nil {
		t.Fatalf("failed to seed post: %v", err)
	}

	realtime := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		CaptchaStore:   captchaStore,
		AttemptLimiter: captcha.NewAttemptLimiter(settings.attemptsPerMinute, settings.attemptBurst),
		Comments:       commentService,
		Blog:           blogService,
		Contact:        contactService,
		Assistant:      assistant.NewCannedResponder(),
		Admins:         adminService,
		TokenManager:   tokens,
		Realtime:       realtime,
		Logger:         logger,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return &testServer{
		handler:      handler,
		captchaStore: captchaStore,
		recorder:     recorder,
		tokens:       tokens,
		realtime:     realtime,
		blog:         blogService,
		db:           db,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	for index := 0; index+1 < len(headers); index += 2 {
		request.Header.Set(headers[index], headers[index+1])
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

// challengeFor returns the challenge currently displayed by a session.
func (s *testServer) challengeFor(t *testing.T, sessionID string) string {
	t.Helper()
	snapshot, err := s.captchaStore.Get(sessionID)
	if err != nil {
		t.Fatalf("failed to load captcha session: %v", err)
	}
	s.recorder.mu.Lock()
	defer s.recorder.mu.Unlock()
	challenge, ok := s.recorder.challenges[snapshot.Image]
	if !ok {
		t.Fatalf("no challenge recorded for session %s", sessionID)
	}
	return challenge
}

// verifiedCaptcha opens a session and solves it.
func (s *testServer) verifiedCaptcha(t *testing.T) string {
	t.Helper()
	opened := decodeCaptcha(t, s.do(t, http.MethodPost, "/captcha", nil))
	solved := decodeCaptcha(t, s.do(t, http.MethodPost, "/captcha/"+opened.SessionID+"/attempt",
		map[string]string{"input": s.challengeFor(t, opened.SessionID)}))
	if !solved.Verified {
		t.Fatalf("expected session to be verified, got %+v", solved)
	}
	return opened.SessionID
}

func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()
	token, _, err := s.tokens.IssueAdminToken(context.Background(), testAdminUsername)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func decodeCaptcha(t *testing.T, recorder *httptest.ResponseRecorder) captchaResponsePayload {
	t.Helper()
	if recorder.Code != http.StatusOK && recorder.Code != http.StatusCreated {
		t.Fatalf("unexpected captcha status %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload captchaResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode captcha payload: %v", err)
	}
	return payload
}

func decodeJSON[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var payload T
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}
