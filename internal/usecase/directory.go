package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
	"github.com/arklim/biomed-platform-security/internal/core/port"
	"github.com/arklim/biomed-platform-security/internal/repository"
)

var (
	// ErrInvalidIdentifier indicates a malformed email or name was supplied.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// systemGroups are seeded at install time and resolved without touching
// storage.
var systemGroups = map[int]domain.Group{
	domain.SiteAdministratorsGroupID: {ID: domain.SiteAdministratorsGroupID, Name: "Administrators", Type: domain.GroupTypeSite, System: true},
	domain.UsersGroupID:              {ID: domain.UsersGroupID, Name: "Users", Type: domain.GroupTypeSite, System: true},
	domain.GuestsGroupID:             {ID: domain.GuestsGroupID, Name: "Guests", Type: domain.GroupTypeSite, System: true},
	domain.DevelopersGroupID:         {ID: domain.DevelopersGroupID, Name: "Developers", Type: domain.GroupTypeSite, System: true},
}

// principalInvalidator drops derived membership state when a principal's
// lifecycle changes.
type principalInvalidator interface {
	InvalidatePrincipal(principalID int)
}

// DirectoryService resolves principals (users and groups) by id or email.
// Lookups report absence with repository.ErrNotFound; the only synchronous
// failure beyond storage trouble is a malformed identifier.
//
// Resolved principals are held in a read-through cache. Only hits are
// cached, never absence, so a principal created elsewhere is visible on its
// first lookup. The group-management and user-lifecycle writers evict
// entries they touch.
type DirectoryService struct {
	users    port.UserRepository
	groups   port.GroupRepository
	resolver principalInvalidator
	logger   *zap.Logger

	mu        sync.RWMutex
	userByID  map[int]domain.User
	idByEmail map[string]int
	groupByID map[int]domain.Group
}

// NewDirectoryService constructs a DirectoryService. resolver may be nil
// when no membership caches need eviction.
func NewDirectoryService(users port.UserRepository, groups port.GroupRepository, resolver principalInvalidator, logger *zap.Logger) *DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{
		users:     users,
		groups:    groups,
		resolver:  resolver,
		logger:    logger,
		userByID:  make(map[int]domain.User),
		idByEmail: make(map[string]int),
		groupByID: make(map[int]domain.Group),
	}
}

// NormalizeEmail validates email syntax and returns the canonical
// (trimmed, lowercased) form.
func NormalizeEmail(email string) (string, error) {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return "", ErrInvalidIdentifier
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", ErrInvalidIdentifier
	}
	return strings.ToLower(addr.Address), nil
}

func (s *DirectoryService) cachedUser(id int) (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.userByID[id]
	return user, ok
}

func (s *DirectoryService) cacheUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userByID[user.ID] = user
	s.idByEmail[user.Email] = user.ID
}

func (s *DirectoryService) invalidateUser(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.userByID[id]; ok {
		delete(s.idByEmail, user.Email)
	}
	delete(s.userByID, id)
}

func (s *DirectoryService) invalidateGroup(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groupByID, id)
}

// FindUserByID resolves a user. The guest id resolves to the synthetic
// anonymous account without a storage round-trip.
func (s *DirectoryService) FindUserByID(ctx context.Context, id int) (*domain.User, error) {
	if id == domain.GuestUserID {
		guest := domain.User{ID: domain.GuestUserID, Email: "guest", DisplayName: "Guest", Active: true}
		return &guest, nil
	}

	if user, ok := s.cachedUser(id); ok {
		return &user, nil
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	s.cacheUser(*user)
	return user, nil
}

// FindUserByEmail resolves a user by email. Malformed addresses fail with
// ErrInvalidIdentifier; unknown addresses with repository.ErrNotFound.
func (s *DirectoryService) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	id, ok := s.idByEmail[normalized]
	user, hit := s.userByID[id]
	s.mu.RUnlock()
	if ok && hit {
		return &user, nil
	}

	loaded, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	s.cacheUser(*loaded)
	return loaded, nil
}

// FindGroup resolves a group by id, serving the fixed system groups from
// memory.
func (s *DirectoryService) FindGroup(ctx context.Context, id int) (*domain.Group, error) {
	if group, ok := systemGroups[id]; ok {
		return &group, nil
	}

	s.mu.RLock()
	group, ok := s.groupByID[id]
	s.mu.RUnlock()
	if ok {
		return &group, nil
	}

	loaded, err := s.groups.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find group: %w", err)
	}

	s.mu.Lock()
	s.groupByID[id] = *loaded
	s.mu.Unlock()
	return loaded, nil
}

// FindPrincipal resolves any principal by id: system groups, then users,
// then stored groups.
func (s *DirectoryService) FindPrincipal(ctx context.Context, id int) (*domain.Principal, error) {
	if group, ok := systemGroups[id]; ok {
		p := group.Principal()
		return &p, nil
	}

	user, err := s.FindUserByID(ctx, id)
	if err == nil {
		p := user.Principal()
		return &p, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	group, err := s.FindGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	p := group.Principal()
	return &p, nil
}

// CreateUser provisions an account explicitly (as opposed to just-in-time
// provisioning during authentication). Email is validated and normalized.
func (s *DirectoryService) CreateUser(ctx context.Context, email, displayName string) (domain.User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return domain.User{}, err
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = normalized
	}

	user := domain.User{
		Email:       normalized,
		DisplayName: displayName,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	s.cacheUser(created)

	s.logger.Info("user created",
		zap.Int("user_id", created.ID),
	)
	return created, nil
}

// SetUserActive toggles the soft-delete flag. The guest account cannot be
// deactivated. Cached directory and membership state for the principal is
// evicted.
func (s *DirectoryService) SetUserActive(ctx context.Context, id int, active bool) error {
	if id == domain.GuestUserID {
		return ErrInvalidIdentifier
	}

	if err := s.users.SetActive(ctx, id, active); err != nil {
		return fmt.Errorf("set user active: %w", err)
	}

	s.invalidateUser(id)
	if s.resolver != nil {
		s.resolver.InvalidatePrincipal(id)
	}

	s.logger.Info("user active flag changed",
		zap.Int("user_id", id),
		zap.Bool("active", active),
	)
	return nil
}
