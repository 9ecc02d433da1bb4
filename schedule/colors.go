package schedule

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"regexp"
	"strings"

	"github.com/ball-and-four/newwons/storage"
	"github.com/samber/mo"
)

const (
	colorsCollection = "userColors"
	colorsRecord     = "list"
)

var colorPattern = regexp.MustCompile(`^(#[0-9a-fA-F]{3}|#[0-9a-fA-F]{6}|[a-z]+)$`)

// Directory maps a user key to that user's assigned color.
type Directory map[string]string

// Clone returns a copy of d. A nil receiver yields an empty directory.
func (d Directory) Clone() Directory {
	out := make(Directory, len(d))
	maps.Copy(out, d)
	return out
}

// SessionContext is the identity of the user driving a calendar session.
type SessionContext struct {
	UserKey     string
	DisplayName string
	Email       mo.Option[string]
}

// NewSession derives the user key from email.
func NewSession(displayName string, email mo.Option[string]) SessionContext {
	return SessionContext{
		UserKey:     ResolveUserKey(email),
		DisplayName: displayName,
		Email:       email,
	}
}

// ResolveUserKey returns the local part of an email address, or "" if there is none.
func ResolveUserKey(email mo.Option[string]) string {
	addr, ok := email.Get()
	if !ok {
		return ""
	}
	local, _, _ := strings.Cut(addr, "@")
	return local
}

// Owner returns the key holding color. Colors compare case-insensitively.
func (d Directory) Owner(color string) (string, bool) {
	for key, c := range d {
		if strings.EqualFold(c, color) {
			return key, true
		}
	}
	return "", false
}

// HasAssignedColor reports whether key has an entry in dir.
func HasAssignedColor(dir Directory, key string) bool {
	if key == "" {
		return false
	}
	_, ok := dir[key]
	return ok
}

// ColorFor returns the color assigned to key. "" means no color.
func ColorFor(dir Directory, key string) string {
	if key == "" {
		return ""
	}
	return dir[key]
}

// ValidateColor accepts "#rgb", "#rrggbb" or a lowercase named token.
func ValidateColor(color string) error {
	if !colorPattern.MatchString(color) {
		return &ValidationError{Field: "color", Err: ErrInvalidColor}
	}
	return nil
}

// DirectoryStore reads and writes the color directory.
type DirectoryStore interface {
	Get(ctx context.Context) (Directory, error)
	Set(ctx context.Context, userKey, color string) error
}

// ColorDirectory is the remote color directory kept as a single record.
type ColorDirectory struct {
	docs storage.DocumentStore
}

// NewColorDirectory keeps the directory in the userColors/list record of docs.
func NewColorDirectory(docs storage.DocumentStore) *ColorDirectory {
	return &ColorDirectory{docs: docs}
}

// Get returns the directory. A directory that was never written is empty, not an error.
func (c *ColorDirectory) Get(ctx context.Context) (Directory, error) {
	doc, err := c.docs.Get(ctx, colorsCollection, colorsRecord)
	if errors.Is(err, storage.ErrNotFound) {
		return Directory{}, nil
	}
	if err != nil {
		return nil, storeErr("get colors", err)
	}
	dir := make(Directory, len(doc.Fields))
	for key, v := range doc.Fields {
		if color, ok := v.(string); ok {
			dir[key] = color
		}
	}
	return dir, nil
}

// Set merges a single entry into the directory record.
func (c *ColorDirectory) Set(ctx context.Context, userKey, color string) error {
	err := c.docs.Set(ctx, colorsCollection, colorsRecord, storage.Fields{userKey: color}, true)
	return storeErr("set color", err)
}

// ColorAssignments decides whether users have a color and records new assignments.
type ColorAssignments struct {
	directory DirectoryStore
	logger    *slog.Logger
}

// NewColorAssignments returns the assignment service over directory.
func NewColorAssignments(directory DirectoryStore, logger *slog.Logger) *ColorAssignments {
	if logger == nil {
		logger = slog.Default()
	}
	return &ColorAssignments{directory: directory, logger: logger}
}

// Load fetches the current directory.
func (a *ColorAssignments) Load(ctx context.Context) (Directory, error) {
	dir, err := a.directory.Get(ctx)
	if err != nil {
		a.logger.Error("failed to load color directory", "error", err)
		return nil, err
	}
	a.logger.Debug("color directory loaded", "entries", len(dir))
	return dir, nil
}

// Assign records color for the session's user. Colors are unique per user:
// a color held by another key is rejected with ErrColorTaken.
func (a *ColorAssignments) Assign(ctx context.Context, session SessionContext, color string) error {
	if session.UserKey == "" {
		return &ValidationError{Field: "user", Err: ErrNoUserKey}
	}
	if err := ValidateColor(color); err != nil {
		return err
	}
	dir, err := a.directory.Get(ctx)
	if err != nil {
		return err
	}
	if owner, taken := dir.Owner(color); taken && owner != session.UserKey {
		return &ValidationError{Field: "color", Err: ErrColorTaken}
	}
	if err := a.directory.Set(ctx, session.UserKey, color); err != nil {
		a.logger.Error("failed to assign color",
			"user_key", session.UserKey,
			"color", color,
			"error", err)
		return err
	}
	a.logger.Info("color assigned",
		"user_key", session.UserKey,
		"color", color)
	return nil
}
