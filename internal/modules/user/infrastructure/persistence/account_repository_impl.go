package persistence

import (
	"context"
	"errors"

	"EchoDesk/internal/modules/user/domain/entity"
	"EchoDesk/internal/modules/user/domain/repository"

	"gorm.io/gorm"
)

type accountRepositoryImpl struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) repository.AccountRepository {
	return &accountRepositoryImpl{db: db}
}

func (r *accountRepositoryImpl) Create(ctx context.Context, account *entity.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *accountRepositoryImpl) GetByUsername(ctx context.Context, username string) (*entity.Account, error) {
	var account entity.Account
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepositoryImpl) GetByUuid(ctx context.Context, uuid string) (*entity.Account, error) {
	var account entity.Account
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepositoryImpl) GetOrgByName(ctx context.Context, orgName string) (*entity.Account, error) {
	var account entity.Account
	err := r.db.WithContext(ctx).Where("org_name = ?", orgName).Order("id ASC").First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}
