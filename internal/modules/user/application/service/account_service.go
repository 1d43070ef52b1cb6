package service

import (
	"context"
	"strings"
	"time"

	"EchoDesk/internal/config"
	"EchoDesk/internal/modules/user/application/dto/request"
	"EchoDesk/internal/modules/user/application/dto/respond"
	"EchoDesk/internal/modules/user/domain/entity"
	"EchoDesk/internal/modules/user/domain/repository"
	"EchoDesk/pkg/redis"
	"EchoDesk/pkg/util"
	"EchoDesk/pkg/util/myjwt"
	"EchoDesk/pkg/xerr"
	"EchoDesk/pkg/zlog"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AccountService 接口定义 (Application Service)
type AccountService interface {
	Register(ctx context.Context, req request.RegisterRequest) (*respond.RegisterRespond, error)
	Login(ctx context.Context, req request.LoginRequest) (*respond.LoginRespond, error)
	Logout(ctx context.Context, accountUuid string) error
}

type accountServiceImpl struct {
	repo repository.AccountRepository
}

// NewAccountService 构造函数
func NewAccountService(repo repository.AccountRepository) AccountService {
	return &accountServiceImpl{repo: repo}
}

func (s *accountServiceImpl) Register(ctx context.Context, req request.RegisterRequest) (*respond.RegisterRespond, error) {
	username := strings.TrimSpace(req.Username)
	orgName := strings.TrimSpace(req.OrgName)
	if username == "" || orgName == "" {
		return nil, xerr.New(xerr.BadRequest, xerr.ErrParam.Message)
	}

	existing, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		zlog.Error(err.Error())
		return nil, xerr.New(xerr.InternalServerError, "注册失败")
	}
	if existing != nil {
		return nil, xerr.New(xerr.Conflict, "用户已存在")
	}

	// 同名组织复用组织 ID，首个注册者创建组织
	orgID := ""
	peer, err := s.repo.GetOrgByName(ctx, orgName)
	if err != nil {
		zlog.Error(err.Error())
		return nil, xerr.New(xerr.InternalServerError, "注册失败")
	}
	if peer != nil {
		orgID = peer.OrgID
	} else {
		orgID = util.GenerateShortUUID()
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		zlog.Error(err.Error())
		return nil, xerr.New(xerr.InternalServerError, "注册失败")
	}

	account := entity.Account{
		Uuid:      util.GenerateUUID(),
		Username:  username,
		Password:  string(hashed),
		Nickname:  strings.TrimSpace(req.Nickname),
		OrgID:     orgID,
		OrgName:   orgName,
		Status:    0,
		CreatedAt: time.Now(),
	}
	if account.Nickname == "" {
		account.Nickname = username
	}
	if err := s.repo.Create(ctx, &account); err != nil {
		zlog.Error(err.Error())
		return nil, xerr.New(xerr.InternalServerError, "注册失败")
	}

	zlog.Info("account registered",
		zap.String("username", username), zap.String("orgId", orgID))
	return &respond.RegisterRespond{
		Uuid:     account.Uuid,
		Username: account.Username,
		Nickname: account.Nickname,
		OrgID:    account.OrgID,
		OrgName:  account.OrgName,
	}, nil
}

func (s *accountServiceImpl) Login(ctx context.Context, req request.LoginRequest) (*respond.LoginRespond, error) {
	account, err := s.repo.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		zlog.Error(err.Error())
		return nil, xerr.New(xerr.InternalServerError, "登录失败")
	}
	if account == nil {
		return nil, xerr.New(xerr.Unauthorized, "用户名或密码错误")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(req.Password)); err != nil {
		return nil, xerr.New(xerr.Unauthorized, "用户名或密码错误")
	}

	token, err := myjwt.GenerateToken(account.Uuid, account.Username, account.OrgID)
	if err != nil {
		zlog.Error(err.Error())
		return nil, xerr.New(xerr.InternalServerError, "登录失败")
	}
	// 重新登录解除登出黑名单
	if redis.IsConnected() {
		if _, err := redis.Del(ctx, "jwt:block:"+account.Uuid); err != nil {
			zlog.Warn("clear logout mark failed: " + err.Error())
		}
	}
	return &respond.LoginRespond{
		Token:    token,
		Uuid:     account.Uuid,
		Username: account.Username,
		Nickname: account.Nickname,
		OrgID:    account.OrgID,
		OrgName:  account.OrgName,
	}, nil
}

// Logout 把账号写入令牌黑名单，存量 token 在过期前全部失效
func (s *accountServiceImpl) Logout(ctx context.Context, accountUuid string) error {
	accountUuid = strings.TrimSpace(accountUuid)
	if accountUuid == "" {
		return xerr.New(xerr.BadRequest, xerr.ErrParam.Message)
	}
	if !redis.IsConnected() {
		return nil
	}
	expireHours := config.GetConfig().JwtConfig.ExpireHours
	if expireHours <= 0 {
		expireHours = 24
	}
	if err := redis.Set(ctx, "jwt:block:"+accountUuid, "1", time.Duration(expireHours)*time.Hour); err != nil {
		zlog.Error(err.Error())
		return xerr.New(xerr.InternalServerError, "登出失败")
	}
	return nil
}
