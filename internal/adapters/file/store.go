// Package file persists workflow snapshots as JSON documents on the local disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/aretw0/mintline/pkg/domain"
)

// DefaultDir is used when New receives an empty directory.
var DefaultDir = filepath.Join(".mintline", "workflows")

const ext = ".json"

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Store implements ports.StateStore with one file per workflow.
type Store struct {
	Dir string
}

// New creates a Store rooted at dir.
func New(dir string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{Dir: dir}
}

func (s *Store) path(workflowID string) (string, error) {
	if !validID.MatchString(workflowID) || strings.Contains(workflowID, "..") {
		return "", fmt.Errorf("invalid workflow id %q", workflowID)
	}
	return filepath.Join(s.Dir, workflowID+ext), nil
}

// Save writes the snapshot to a temp file, syncs it and renames it over the old one.
func (s *Store) Save(ctx context.Context, workflowID string, state *domain.WorkflowState) error {
	dest, err := s.path(workflowID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create workflow directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflowID, err)
	}

	tmp, err := os.CreateTemp(s.Dir, ".tmp-"+workflowID+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write workflow %s: %w", workflowID, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync workflow %s: %w", workflowID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to replace workflow %s: %w", workflowID, err)
	}
	return nil
}

// Load reads a snapshot. Missing files map to domain.ErrWorkflowNotFound.
func (s *Store) Load(ctx context.Context, workflowID string) (*domain.WorkflowState, error) {
	p, err := s.path(workflowID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow %s: %w", workflowID, err)
	}

	var state domain.WorkflowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("corrupt workflow file %s: %w", p, err)
	}
	return &state, nil
}

// Delete removes the snapshot file. Deleting a missing workflow is not an error.
func (s *Store) Delete(ctx context.Context, workflowID string) error {
	p, err := s.path(workflowID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete workflow %s: %w", workflowID, err)
	}
	return nil
}

// List returns the stored workflow IDs in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ext {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ext))
	}
	sort.Strings(ids)
	return ids, nil
}
