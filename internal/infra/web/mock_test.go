//go:build !integration

package web

import (
	"context"
	"sync"
	"time"

	"comfy-gateway/internal/domain"
	"comfy-gateway/internal/domain/model"
	"comfy-gateway/internal/usecase"

	"github.com/rs/zerolog"
)

type mockGeneration struct {
	mu        sync.Mutex
	workflows []string
	queued    []usecase.QueueRequest
	known     map[string]float64
	ready     map[string]string
	queueErr  error
	progErr   error
}

func newMockGeneration() *mockGeneration {
	return &mockGeneration{
		workflows: []string{"default", "default_image"},
		known:     map[string]float64{},
		ready:     map[string]string{},
	}
}

func (m *mockGeneration) ListWorkflows(ctx context.Context) ([]string, error) {
	return m.workflows, nil
}

func (m *mockGeneration) Queue(ctx context.Context, req usecase.QueueRequest) (string, error) {
	if m.queueErr != nil {
		return "", m.queueErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, req)
	return "job-1", nil
}

func (m *mockGeneration) Progress(ctx context.Context, jobID string) (float64, error) {
	if m.progErr != nil {
		return 0, m.progErr
	}
	p, ok := m.known[jobID]
	if !ok {
		return 0, domain.ErrUnknownJob
	}
	return p, nil
}

func (m *mockGeneration) FetchImage(ctx context.Context, jobID string) (string, error) {
	if _, ok := m.known[jobID]; !ok {
		return "", domain.ErrUnknownJob
	}
	link, ok := m.ready[jobID]
	if !ok {
		return "", domain.ErrNotReady
	}
	return link, nil
}

// mockAuth accepts any password equal to "pw" and uses the real token
// manager so bearer checks go through JWT parsing.
type mockAuth struct {
	tokens *AuthManager
	users  map[string]*model.User
}

func newMockAuth(tm *AuthManager) *mockAuth {
	return &mockAuth{tokens: tm, users: map[string]*model.User{}}
}

func (m *mockAuth) Signup(ctx context.Context, username, password, repeat string) (*model.User, error) {
	if password != repeat {
		return nil, domain.ErrInvalidArgument
	}
	for _, u := range m.users {
		if u.Username == username {
			return nil, domain.ErrAlreadyExists
		}
	}
	u, err := model.NewUser(username, "hash")
	if err != nil {
		return nil, err
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *mockAuth) Login(ctx context.Context, username, password string) (usecase.TokenPair, error) {
	for _, u := range m.users {
		if u.Username == username && password == "pw" {
			return m.tokens.IssuePair(u.ID)
		}
	}
	return usecase.TokenPair{}, domain.ErrUnauthorized
}

func (m *mockAuth) Refresh(ctx context.Context, refresh string) (string, error) {
	return m.tokens.RefreshAccess(refresh)
}

func (m *mockAuth) Check(ctx context.Context, access string) (*model.User, error) {
	id, err := m.tokens.VerifyAccess(access)
	if err != nil {
		return nil, err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUnauthorized
	}
	return u, nil
}

type mockLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[key]++
	return m.counts[key] <= limit, nil
}

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func newTestServer(opts Options) (*Server, *mockGeneration, *mockAuth, *AuthManager) {
	tm := NewAuthManager("test-secret", 30*time.Minute, 24*time.Hour)
	gen := newMockGeneration()
	auth := newMockAuth(tm)
	return NewServer(gen, auth, tm, &mockLimiter{}, opts, testLogger()), gen, auth, tm
}
