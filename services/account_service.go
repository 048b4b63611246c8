package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"edupath_go/cache"
	"edupath_go/models"
	"edupath_go/repository"
	"edupath_go/utils"
)

type CreateAccountInput struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"required,max=200"`
	Phone    string `json:"phone" validate:"omitempty,max=30"`
	Role     string `json:"role" validate:"required,oneof=admin student"`
}

// UpdateAccountInput changes an account. Nil fields are left alone.
type UpdateAccountInput struct {
	FullName *string `json:"full_name" validate:"omitempty,max=200"`
	Phone    *string `json:"phone" validate:"omitempty,max=30"`
	Role     *string `json:"role" validate:"omitempty,oneof=admin student"`
	Status   *string `json:"status" validate:"omitempty,oneof=active inactive rejected"`
}

// AccountService is the admin side of user management. Pending accounts
// only become students through RegistrationService.Approve.
type AccountService struct {
	store repository.Store
	cache cache.Cache
}

func NewAccountService(store repository.Store, c cache.Cache) *AccountService {
	return &AccountService{store: store, cache: c}
}

func (s *AccountService) List(ctx context.Context, f repository.UserFilter) ([]models.User, int64, error) {
	f.Search = strings.TrimSpace(f.Search)
	return s.store.Users().List(ctx, f)
}

func (s *AccountService) Get(ctx context.Context, id uint) (*models.User, error) {
	return s.store.Users().GetByID(ctx, id)
}

// Create adds an active advisor or student directly. Students get an empty
// profile in the same transaction.
func (s *AccountService) Create(ctx context.Context, in CreateAccountInput) (*models.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = utils.SanitizeString(in.FullName)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	hashed, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Email:    in.Email,
		Password: hashed,
		FullName: in.FullName,
		Phone:    strings.TrimSpace(in.Phone),
		Role:     in.Role,
		Status:   models.UserActive,
	}
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		if user.Role == models.RoleStudent {
			return ensureStudentProfile(ctx, tx, user)
		}
		return nil
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	cache.Invalidate(ctx, s.cache, cache.PrefixAdminDashboard)
	return user, nil
}

// Update applies in on behalf of actorID. Admins cannot demote or
// deactivate themselves.
func (s *AccountService) Update(ctx context.Context, id, actorID uint, in UpdateAccountInput) (*models.User, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if in.FullName == nil && in.Phone == nil && in.Role == nil && in.Status == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if id == actorID && ((in.Role != nil && *in.Role != models.RoleAdmin) || (in.Status != nil && *in.Status != models.UserActive)) {
		return nil, fmt.Errorf("%w: you cannot demote or deactivate your own account", ErrForbidden)
	}

	var user *models.User
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		user, err = tx.Users().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if in.Role != nil && *in.Role != user.Role {
			if user.Role == models.RolePending {
				return fmt.Errorf("%w: pending accounts are approved through the registration queue", ErrInvalidTransition)
			}
			user.Role = *in.Role
		}
		if in.FullName != nil {
			user.FullName = utils.SanitizeString(*in.FullName)
		}
		if in.Phone != nil {
			user.Phone = strings.TrimSpace(*in.Phone)
		}
		if in.Status != nil {
			user.Status = *in.Status
		}
		if err := tx.Users().Update(ctx, user); err != nil {
			return err
		}
		if user.Role == models.RoleStudent {
			return ensureStudentProfile(ctx, tx, user)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	cache.Invalidate(ctx, s.cache, cache.PrefixAdminDashboard)
	return user, nil
}

// Delete soft deletes an account other than the actor's own.
func (s *AccountService) Delete(ctx context.Context, id, actorID uint) (*models.User, error) {
	if id == actorID {
		return nil, fmt.Errorf("%w: you cannot delete your own account", ErrForbidden)
	}
	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.Users().Delete(ctx, id); err != nil {
		return nil, err
	}
	cache.Invalidate(ctx, s.cache, cache.PrefixAdminDashboard)
	return user, nil
}

// SetAvatar stores a new avatar key and returns the one it replaced.
func (s *AccountService) SetAvatar(ctx context.Context, userID uint, key string) (string, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	old := user.Avatar
	user.Avatar = key
	if err := s.store.Users().Update(ctx, user); err != nil {
		return "", err
	}
	return old, nil
}

// ensureStudentProfile creates the profile a student account needs for
// its dashboard and listeners, when missing.
func ensureStudentProfile(ctx context.Context, tx repository.Store, user *models.User) error {
	_, err := tx.Students().GetByUserID(ctx, user.ID)
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	first, last := splitName(user.FullName)
	return tx.Students().Create(ctx, &models.Student{UserID: user.ID, FirstName: first, LastName: last})
}
