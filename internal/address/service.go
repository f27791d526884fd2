package address

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/enums"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
	"github.com/castlemart/castlemart-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages a user's saved addresses and resolves the snapshot copied
// onto orders at checkout.
type Service interface {
	CreateAddress(ctx context.Context, userID uuid.UUID, input CreateAddressInput) (*models.UserAddress, error)
	ListAddresses(ctx context.Context, userID uuid.UUID) ([]models.UserAddress, error)
	DeleteAddress(ctx context.Context, id, userID uuid.UUID) error
	Resolve(ctx context.Context, userID uuid.UUID, kind enums.AddressKind, explicit *uuid.UUID) (types.Address, error)
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService builds the address service.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("address repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

// CreateAddressInput is the payload for a new saved address.
type CreateAddressInput struct {
	Kind      enums.AddressKind `json:"kind"`
	Address   types.Address     `json:"address"`
	IsDefault bool              `json:"is_default"`
}

// CreateAddress saves a new address. The first address of a kind becomes the
// default; an explicit default displaces the previous one.
func (s *service) CreateAddress(ctx context.Context, userID uuid.UUID, input CreateAddressInput) (*models.UserAddress, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown address kind")
	}
	if err := input.Address.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid address")
	}
	if strings.TrimSpace(input.Address.Recipient) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient required")
	}

	var created *models.UserAddress
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		makeDefault := input.IsDefault
		if !makeDefault {
			if _, err := repo.FindDefault(ctx, userID, input.Kind); err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load default address")
				}
				makeDefault = true
			}
		}
		if makeDefault {
			if err := repo.ClearDefault(ctx, userID, input.Kind); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default address")
			}
		}

		addr := &models.UserAddress{
			UserID:    userID,
			Kind:      input.Kind,
			Address:   input.Address,
			IsDefault: makeDefault,
		}
		saved, err := repo.Create(ctx, addr)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save address")
		}
		created = saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) ListAddresses(ctx context.Context, userID uuid.UUID) ([]models.UserAddress, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list addresses")
	}
	return rows, nil
}

// DeleteAddress removes a saved address. When the default is removed the most
// recently saved address of the same kind is promoted.
func (s *service) DeleteAddress(ctx context.Context, id, userID uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "address id required")
	}
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		addr, err := repo.FindByIDForUser(ctx, id, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
		}

		removed, err := repo.Delete(ctx, id, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete address")
		}
		if !removed {
			return pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
		}

		if !addr.IsDefault {
			return nil
		}
		remaining, err := repo.ListByUser(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list remaining addresses")
		}
		for _, candidate := range remaining {
			if candidate.Kind != addr.Kind {
				continue
			}
			if err := repo.SetDefault(ctx, candidate.ID, userID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote default address")
			}
			break
		}
		return nil
	})
}

// Resolve returns the address snapshot checkout copies onto the order. An
// explicit id must belong to the user; otherwise the default for the kind is
// used.
func (s *service) Resolve(ctx context.Context, userID uuid.UUID, kind enums.AddressKind, explicit *uuid.UUID) (types.Address, error) {
	if userID == uuid.Nil {
		return types.Address{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !kind.IsValid() {
		return types.Address{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown address kind")
	}

	var (
		addr *models.UserAddress
		err  error
	)
	if explicit != nil && *explicit != uuid.Nil {
		addr, err = s.repo.FindByIDForUser(ctx, *explicit, userID)
	} else {
		addr, err = s.repo.FindDefault(ctx, userID, kind)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Address{}, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("no %s address on file", kind))
		}
		return types.Address{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve address")
	}
	return addr.Address, nil
}
