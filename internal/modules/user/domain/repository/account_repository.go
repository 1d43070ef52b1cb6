package repository

import (
	"context"

	"EchoDesk/internal/modules/user/domain/entity"
)

// AccountRepository 接口定义
type AccountRepository interface {
	Create(ctx context.Context, account *entity.Account) error
	GetByUsername(ctx context.Context, username string) (*entity.Account, error)
	GetByUuid(ctx context.Context, uuid string) (*entity.Account, error)
	// GetOrgByName 按组织名查找任一账号，用于注册时复用已有组织
	GetOrgByName(ctx context.Context, orgName string) (*entity.Account, error)
}
