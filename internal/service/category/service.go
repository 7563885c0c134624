// Package category implements the category rules: per-user unique names
// compared case-insensitively, restricted deletes, and the atomic
// find-or-create used by the importers.
package category

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tinoosan/fintrack/internal/dictionary"
	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/normalize"
)

// MaxNameLen bounds category display names.
const MaxNameLen = 50

type Repo interface {
	ListCategories(ctx context.Context, userID uuid.UUID) ([]ledger.Category, error)
	// CategoryByID returns the category regardless of owner.
	CategoryByID(ctx context.Context, id uuid.UUID) (ledger.Category, error)
}

type Writer interface {
	// CreateCategory fails with errs.ErrConflict when (user, name key) exists.
	CreateCategory(ctx context.Context, c ledger.Category) (ledger.Category, error)
	UpdateCategory(ctx context.Context, c ledger.Category) (ledger.Category, error)
	// DeleteCategory fails with errs.ErrConflict while transactions reference it.
	DeleteCategory(ctx context.Context, userID, id uuid.UUID) error
	// UpsertCategory inserts c unless a row with the same (user, name key)
	// exists, in which case the existing row is returned. created reports
	// which path was taken. The check and insert are one atomic step.
	UpsertCategory(ctx context.Context, c ledger.Category) (out ledger.Category, created bool, err error)
}

// Resolution tags the outcome of FindOrCreate.
type Resolution int

const (
	Found Resolution = iota
	Created
)

func (r Resolution) String() string {
	if r == Created {
		return "created"
	}
	return "found"
}

// Input carries the editable fields. Nil pointers are left unchanged on update.
type Input struct {
	Name  *string
	Color *string
	Icon  *string
}

type Service interface {
	List(ctx context.Context, userID uuid.UUID) ([]ledger.Category, error)
	Get(ctx context.Context, userID, id uuid.UUID) (ledger.Category, error)
	// Authorize returns the category when it belongs to userID and
	// errs.ErrForbidden otherwise (including when it does not exist).
	Authorize(ctx context.Context, userID, id uuid.UUID) (ledger.Category, error)
	Create(ctx context.Context, userID uuid.UUID, in Input) (ledger.Category, error)
	Update(ctx context.Context, userID, id uuid.UUID, in Input) (ledger.Category, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	FindOrCreate(ctx context.Context, userID uuid.UUID, name string) (ledger.Category, Resolution, error)
	SeedDefaults(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	repo   Repo
	writer Writer
	log    *slog.Logger
}

func New(repo Repo, writer Writer, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{repo: repo, writer: writer, log: log}
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]ledger.Category, error) {
	if userID == uuid.Nil {
		return nil, errs.ErrInvalid
	}
	return s.repo.ListCategories(ctx, userID)
}

func (s *service) Get(ctx context.Context, userID, id uuid.UUID) (ledger.Category, error) {
	c, err := s.repo.CategoryByID(ctx, id)
	if err != nil {
		return ledger.Category{}, err
	}
	if c.UserID != userID {
		return ledger.Category{}, errs.ErrNotFound
	}
	return c, nil
}

func (s *service) Authorize(ctx context.Context, userID, id uuid.UUID) (ledger.Category, error) {
	c, err := s.repo.CategoryByID(ctx, id)
	if errors.Is(err, errs.ErrNotFound) || (err == nil && c.UserID != userID) {
		return ledger.Category{}, errs.Forbiddenf("category not authorized")
	}
	if err != nil {
		return ledger.Category{}, err
	}
	return c, nil
}

func validateName(name string) (string, error) {
	name = normalize.CategoryName(name)
	if name == "" {
		return "", errs.Invalidf("name is required")
	}
	if len([]rune(name)) > MaxNameLen {
		return "", errs.Invalidf("name must be at most %d characters", MaxNameLen)
	}
	return name, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, in Input) (ledger.Category, error) {
	if userID == uuid.Nil {
		return ledger.Category{}, errs.ErrInvalid
	}
	if in.Name == nil {
		return ledger.Category{}, errs.Invalidf("name is required")
	}
	name, err := validateName(*in.Name)
	if err != nil {
		return ledger.Category{}, err
	}
	color, icon := dictionary.StyleFor(name)
	if in.Color != nil {
		if !normalize.IsColor(*in.Color) {
			return ledger.Category{}, errs.Invalidf("color must be #rrggbb")
		}
		color = *in.Color
	}
	if in.Icon != nil && *in.Icon != "" {
		icon = *in.Icon
	}
	c := ledger.Category{
		ID:      uuid.New(),
		UserID:  userID,
		Name:    name,
		NameKey: normalize.CategoryKey(name),
		Color:   color,
		Icon:    icon,
	}
	created, err := s.writer.CreateCategory(ctx, c)
	if errors.Is(err, errs.ErrConflict) {
		return ledger.Category{}, errs.Conflictf("category %q already exists", name)
	}
	return created, err
}

func (s *service) Update(ctx context.Context, userID, id uuid.UUID, in Input) (ledger.Category, error) {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return ledger.Category{}, err
	}
	if in.Name != nil {
		name, err := validateName(*in.Name)
		if err != nil {
			return ledger.Category{}, err
		}
		c.Name = name
		c.NameKey = normalize.CategoryKey(name)
	}
	if in.Color != nil {
		if !normalize.IsColor(*in.Color) {
			return ledger.Category{}, errs.Invalidf("color must be #rrggbb")
		}
		c.Color = *in.Color
	}
	if in.Icon != nil {
		c.Icon = *in.Icon
	}
	updated, err := s.writer.UpdateCategory(ctx, c)
	if errors.Is(err, errs.ErrConflict) {
		return ledger.Category{}, errs.Conflictf("category %q already exists", c.Name)
	}
	return updated, err
}

func (s *service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	err := s.writer.DeleteCategory(ctx, userID, id)
	if errors.Is(err, errs.ErrConflict) {
		return errs.Conflictf("category is used by transactions")
	}
	return err
}

// FindOrCreate returns the user's category whose name matches name
// case-insensitively, creating it with the curated or default style when
// absent. Concurrent identical calls converge on one row.
func (s *service) FindOrCreate(ctx context.Context, userID uuid.UUID, name string) (ledger.Category, Resolution, error) {
	if userID == uuid.Nil {
		return ledger.Category{}, Found, errs.ErrInvalid
	}
	name, err := validateName(name)
	if err != nil {
		return ledger.Category{}, Found, err
	}
	color, icon := dictionary.StyleFor(name)
	c, created, err := s.writer.UpsertCategory(ctx, ledger.Category{
		ID:      uuid.New(),
		UserID:  userID,
		Name:    name,
		NameKey: normalize.CategoryKey(name),
		Color:   color,
		Icon:    icon,
	})
	if err != nil {
		return ledger.Category{}, Found, err
	}
	if created {
		s.log.Debug("category created", "user_id", userID, "category_id", c.ID, "name", c.Name)
		return c, Created, nil
	}
	return c, Found, nil
}

// SeedDefaults creates the curated categories for a new user. It is safe to
// call more than once.
func (s *service) SeedDefaults(ctx context.Context, userID uuid.UUID) error {
	for _, def := range dictionary.Defaults() {
		if _, _, err := s.writer.UpsertCategory(ctx, ledger.Category{
			ID:      uuid.New(),
			UserID:  userID,
			Name:    def.Name,
			NameKey: normalize.CategoryKey(def.Name),
			Color:   def.Color,
			Icon:    def.Icon,
		}); err != nil {
			return err
		}
	}
	return nil
}
