package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const saveExt = ".json"

// File keeps one JSON save per player under a directory.
type File struct {
	dir string
	mu  sync.Mutex
}

func NewFile(dir string) (*File, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("save directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create save dir: %w", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) Dir() string { return f.dir }

func (f *File) path(playerID string) (string, error) {
	id, err := validPlayer(playerID)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.dir, id+saveExt), nil
}

func (f *File) Load(_ context.Context, playerID string) ([]byte, error) {
	path, err := f.path(playerID)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read(path)
}

func (f *File) read(path string) ([]byte, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read save: %w", err)
	}
	return body, nil
}

func (f *File) Save(_ context.Context, playerID string, data []byte) error {
	path, err := f.path(playerID)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(path, data)
}

// write replaces the save through a temp file.
func (f *File) write(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write save: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace save: %w", err)
	}
	return nil
}

func (f *File) Update(_ context.Context, playerID string, fn UpdateFunc) error {
	path, err := f.path(playerID)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	current, err := f.read(path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return f.write(path, next)
}

func (f *File) Players(context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("list saves: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, saveExt) {
			continue
		}
		id := strings.TrimSuffix(name, saveExt)
		if _, err := validPlayer(id); err == nil {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Remove deletes a player's save. Removing a missing save is not an error.
func (f *File) Remove(playerID string) error {
	path, err := f.path(playerID)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove save: %w", err)
	}
	return nil
}
