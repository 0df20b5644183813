//go:build !integration

package usecase_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"comfy-gateway/internal/domain"
	"comfy-gateway/internal/domain/model"
	"comfy-gateway/internal/domain/ports/adapter"
	"comfy-gateway/internal/domain/ports/repository"
	"comfy-gateway/internal/usecase"
)

// -----------------------------
// Utilities
// -----------------------------

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

const sampleWorkflow = `{
  "3": {"class_type": "KSampler", "inputs": {"seed": 1, "steps": 20, "model": ["4", 0],
        "positive": ["6", 0], "negative": ["7", 0], "latent_image": ["5", 0]}},
  "4": {"class_type": "CheckpointLoaderSimple", "inputs": {"ckpt_name": "sd15.safetensors"}},
  "5": {"class_type": "EmptyLatentImage", "inputs": {"width": 512, "height": 512, "batch_size": 1}},
  "6": {"class_type": "CLIPTextEncode", "inputs": {"text": "old positive", "clip": ["4", 1]}},
  "7": {"class_type": "CLIPTextEncode", "inputs": {"text": "old negative", "clip": ["4", 1]}},
  "8": {"class_type": "VAEDecode", "inputs": {"samples": ["3", 0], "vae": ["4", 2]}},
  "9": {"class_type": "SaveImage", "inputs": {"images": ["8", 0], "filename_prefix": "ComfyUI"}}
}`

const imageWorkflow = `{
  "3": {"class_type": "KSampler", "inputs": {"seed": 1, "positive": ["6", 0], "negative": ["7", 0]}},
  "6": {"class_type": "CLIPTextEncode", "inputs": {"text": ""}},
  "7": {"class_type": "CLIPTextEncode", "inputs": {"text": ""}},
  "10": {"class_type": "LoadImage", "inputs": {"image": "example.png"}},
  "11": {"class_type": "LoadImage", "inputs": {"image": "example.png"}}
}`

func mustGraph(doc string) *model.WorkflowGraph {
	g, err := model.ParseWorkflow([]byte(doc))
	if err != nil {
		panic(err)
	}
	return g
}

func textInput(g *model.WorkflowGraph, id, name string) string {
	n, ok := g.Node(id)
	if !ok {
		return "<missing node " + id + ">"
	}
	var s string
	if err := n.Input(name, &s); err != nil {
		return "<" + err.Error() + ">"
	}
	return s
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		img.Set(x, x, color.RGBA{R: 200, A: 255})
	}
	return img
}

func pngBytes() []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, testImage())
	return buf.Bytes()
}

func jpegBytes() []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, testImage(), nil)
	return buf.Bytes()
}

// =============================
// Adapters
// =============================

// ---- Mock GenerationBackend ----

type MockBackend struct {
	mu sync.Mutex

	Queued    []model.PromptRequest
	Uploaded  []adapter.UploadParams
	UploadRaw [][]byte
	Viewed    []model.ImageDescriptor

	NextID    string
	QueueErr  error
	Histories map[string]*model.HistoryEntry
	HistErr   error
	Images    map[string][]byte // by filename
	ViewErr   error
}

var _ adapter.GenerationBackend = (*MockBackend)(nil)

func NewMockBackend() *MockBackend {
	return &MockBackend{
		NextID:    "job-1",
		Histories: map[string]*model.HistoryEntry{},
		Images:    map[string][]byte{},
	}
}

func (m *MockBackend) QueuePrompt(ctx context.Context, req model.PromptRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QueueErr != nil {
		return "", m.QueueErr
	}
	m.Queued = append(m.Queued, req)
	return m.NextID, nil
}

func (m *MockBackend) History(ctx context.Context, promptID string) (*model.HistoryEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.HistErr != nil {
		return nil, false, m.HistErr
	}
	h, ok := m.Histories[promptID]
	return h, ok, nil
}

func (m *MockBackend) ViewImage(ctx context.Context, img model.ImageDescriptor) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Viewed = append(m.Viewed, img)
	if m.ViewErr != nil {
		return nil, m.ViewErr
	}
	b, ok := m.Images[img.Filename]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, img.Filename)
	}
	return b, nil
}

func (m *MockBackend) UploadImage(ctx context.Context, r io.Reader, p adapter.UploadParams) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Uploaded = append(m.Uploaded, p)
	m.UploadRaw = append(m.UploadRaw, b)
	return p.Name, nil
}

func (m *MockBackend) Ping(ctx context.Context) error { return nil }

// ---- Mock ObjectStorage ----

type MockStorage struct {
	mu        sync.Mutex
	Bucket    string
	Objects   map[string]string // key -> local path
	UploadErr error
}

var _ adapter.ObjectStorage = (*MockStorage)(nil)

func NewMockStorage() *MockStorage {
	return &MockStorage{Bucket: "test-bucket", Objects: map[string]string{}}
}

func (m *MockStorage) Upload(ctx context.Context, localPath, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UploadErr != nil {
		return "", m.UploadErr
	}
	m.Objects[key] = localPath
	return m.Bucket, nil
}

func (m *MockStorage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://%s.example/%s?ttl=%d", m.Bucket, key, int(ttl.Seconds())), nil
}

// =============================
// Repositories
// =============================

// ---- Mock WorkflowRepository ----

type MockWorkflowRepo struct {
	Docs map[string]string
}

var _ repository.WorkflowRepository = (*MockWorkflowRepo)(nil)

func (m *MockWorkflowRepo) List(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(m.Docs))
	for k := range m.Docs {
		out = append(out, k)
	}
	return out, nil
}

func (m *MockWorkflowRepo) Load(ctx context.Context, name string) (*model.WorkflowGraph, error) {
	doc, ok := m.Docs[name]
	if !ok {
		return nil, fmt.Errorf("%w: workflow %s", domain.ErrNotFound, name)
	}
	return model.ParseWorkflow([]byte(doc))
}

// ---- Mock SubmissionRepository ----

type MockSubmissions struct {
	mu   sync.Mutex
	IDs  map[string]bool
	Err  error
	Seen int
}

var _ repository.SubmissionRepository = (*MockSubmissions)(nil)

func NewMockSubmissions(ids ...string) *MockSubmissions {
	m := &MockSubmissions{IDs: map[string]bool{}}
	for _, id := range ids {
		m.IDs[id] = true
	}
	return m
}

func (m *MockSubmissions) Record(ctx context.Context, promptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.IDs[promptID] = true
	return nil
}

func (m *MockSubmissions) Exists(ctx context.Context, promptID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Seen++
	if m.Err != nil {
		return false, m.Err
	}
	return m.IDs[promptID], nil
}

// ---- Mock ImageRepository ----

type MockImageRepo struct {
	mu      sync.Mutex
	Records []*model.ImageRecord
}

var _ repository.ImageRepository = (*MockImageRepo)(nil)

func (m *MockImageRepo) Save(ctx context.Context, tx repository.Tx, rec *model.ImageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = append(m.Records, rec)
	return nil
}

func (m *MockImageRepo) ListByPromptID(ctx context.Context, tx repository.Tx, promptID string) ([]*model.ImageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ImageRecord
	for _, r := range m.Records {
		if r.PromptID == promptID {
			out = append(out, r)
		}
	}
	return out, nil
}

// ---- Mock UserRepository ----

type MockUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User // by id
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{users: map[string]*model.User{}}
}

func (m *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MockUserRepo) FindByUsername(ctx context.Context, tx repository.Tx, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- Mock TokenManager ----

// MockTokens issues "access:<id>" / "refresh:<id>" strings.
type MockTokens struct{}

var _ usecase.TokenManager = MockTokens{}

func (MockTokens) IssuePair(userID string) (usecase.TokenPair, error) {
	return usecase.TokenPair{Access: "access:" + userID, Refresh: "refresh:" + userID}, nil
}

func (MockTokens) RefreshAccess(refresh string) (string, error) {
	id, ok := cutPrefix(refresh, "refresh:")
	if !ok {
		return "", domain.ErrUnauthorized
	}
	return "access:" + id, nil
}

func (MockTokens) VerifyAccess(access string) (string, error) {
	id, ok := cutPrefix(access, "access:")
	if !ok {
		return "", domain.ErrUnauthorized
	}
	return id, nil
}

func cutPrefix(s, prefix string) (string, bool) {
	if len(s) <= len(prefix) || s[:len(prefix)] != prefix {
		return "", false
	}
	return s[len(prefix):], true
}

var errBoom = errors.New("boom")
