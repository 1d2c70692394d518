// Package store persists engine saves per player.
package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

var (
	ErrNotFound        = errors.New("save not found")
	ErrInvalidPlayerID = errors.New("player id must be 3-64 letters, digits, dashes or underscores")
	ErrConflict        = errors.New("save changed concurrently, retry")
)

var playerIDRE = regexp.MustCompile(`^[A-Za-z0-9_-]{3,64}$`)

// UpdateFunc receives the current save (nil when none exists) and returns
// the replacement.
type UpdateFunc func(current []byte) ([]byte, error)

type Store interface {
	Load(ctx context.Context, playerID string) ([]byte, error)
	Save(ctx context.Context, playerID string, data []byte) error
	// Update runs fn against the current save and stores its result
	// atomically.
	Update(ctx context.Context, playerID string, fn UpdateFunc) error
	Players(ctx context.Context) ([]string, error)
}

func validPlayer(id string) (string, error) {
	id = strings.TrimSpace(id)
	if !playerIDRE.MatchString(id) {
		return "", ErrInvalidPlayerID
	}
	return id, nil
}
