package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"comfy-gateway/internal/domain"
	"comfy-gateway/internal/domain/model"
	"comfy-gateway/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

const ext = ".json"

var _ repository.WorkflowRepository = (*Store)(nil)

// Store serves workflow templates from a directory of <name>.json files.
// Templates are read on every call so edits take effect without a restart.
type Store struct {
	dir string
	log *zerolog.Logger
}

func NewStore(dir string, logger *zerolog.Logger) *Store {
	l := logger.With().Str("component", "WorkflowStore").Str("dir", dir).Logger()
	return &Store{dir: dir, log: &l}
}

// List returns template names sorted, without extension. Non-JSON files
// and directories are ignored.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Load(ctx context.Context, name string) (*model.WorkflowGraph, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	g, err := LoadFile(filepath.Join(s.dir, name+ext))
	if err != nil {
		s.log.Warn().Err(err).Str("workflow", name).Msg("load workflow failed")
		return nil, err
	}
	return g, nil
}

// LoadFile reads and parses a workflow document at path.
func LoadFile(path string) (*model.WorkflowGraph, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: workflow %s", domain.ErrNotFound, path)
		}
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}
	g, err := model.ParseWorkflow(b)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", path, err)
	}
	return g, nil
}

func validName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: workflow name %q", domain.ErrInvalidArgument, name)
	}
	return nil
}
