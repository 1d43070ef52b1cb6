package service

import (
	"context"
	"testing"

	"EchoDesk/internal/config"
	"EchoDesk/internal/modules/user/application/dto/request"
	"EchoDesk/internal/modules/user/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeAccountRepo struct {
	accounts []entity.Account
}

func (r *fakeAccountRepo) Create(_ context.Context, account *entity.Account) error {
	account.Id = int64(len(r.accounts) + 1)
	r.accounts = append(r.accounts, *account)
	return nil
}

func (r *fakeAccountRepo) GetByUsername(_ context.Context, username string) (*entity.Account, error) {
	for i := range r.accounts {
		if r.accounts[i].Username == username {
			a := r.accounts[i]
			return &a, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) GetByUuid(_ context.Context, uuid string) (*entity.Account, error) {
	for i := range r.accounts {
		if r.accounts[i].Uuid == uuid {
			a := r.accounts[i]
			return &a, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) GetOrgByName(_ context.Context, orgName string) (*entity.Account, error) {
	for i := range r.accounts {
		if r.accounts[i].OrgName == orgName {
			a := r.accounts[i]
			return &a, nil
		}
	}
	return nil, nil
}

func TestRegisterHashesPasswordAndCreatesOrg(t *testing.T) {
	repo := &fakeAccountRepo{}
	svc := NewAccountService(repo)

	resp, err := svc.Register(context.Background(), request.RegisterRequest{
		Username: "alice", Password: "secret-1", OrgName: "Acme",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.Username)
	assert.Equal(t, "alice", resp.Nickname)
	assert.NotEmpty(t, resp.OrgID)

	stored, _ := repo.GetByUsername(context.Background(), "alice")
	require.NotNil(t, stored)
	assert.NotEqual(t, "secret-1", stored.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("secret-1")))
}

func TestRegisterJoinsExistingOrgByName(t *testing.T) {
	repo := &fakeAccountRepo{}
	svc := NewAccountService(repo)
	ctx := context.Background()

	first, err := svc.Register(ctx, request.RegisterRequest{Username: "alice", Password: "secret-1", OrgName: "Acme"})
	require.NoError(t, err)
	second, err := svc.Register(ctx, request.RegisterRequest{Username: "bob", Password: "secret-2", OrgName: "Acme"})
	require.NoError(t, err)

	assert.Equal(t, first.OrgID, second.OrgID)

	other, err := svc.Register(ctx, request.RegisterRequest{Username: "carol", Password: "secret-3", OrgName: "Globex"})
	require.NoError(t, err)
	assert.NotEqual(t, first.OrgID, other.OrgID)
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	repo := &fakeAccountRepo{}
	svc := NewAccountService(repo)
	ctx := context.Background()

	_, err := svc.Register(ctx, request.RegisterRequest{Username: "alice", Password: "secret-1", OrgName: "Acme"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, request.RegisterRequest{Username: "alice", Password: "secret-9", OrgName: "Acme"})
	assert.Error(t, err)
}

func TestLoginVerifiesPassword(t *testing.T) {
	config.GetConfig().JwtConfig.Key = "test-signing-key"
	repo := &fakeAccountRepo{}
	svc := NewAccountService(repo)
	ctx := context.Background()

	_, err := svc.Register(ctx, request.RegisterRequest{Username: "alice", Password: "secret-1", OrgName: "Acme"})
	require.NoError(t, err)

	resp, err := svc.Login(ctx, request.LoginRequest{Username: "alice", Password: "secret-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "alice", resp.Username)

	_, err = svc.Login(ctx, request.LoginRequest{Username: "alice", Password: "wrong"})
	assert.Error(t, err)
	_, err = svc.Login(ctx, request.LoginRequest{Username: "nobody", Password: "secret-1"})
	assert.Error(t, err)
}

func TestLogoutWithoutRedisIsNoop(t *testing.T) {
	svc := NewAccountService(&fakeAccountRepo{})

	assert.NoError(t, svc.Logout(context.Background(), "uuid-1"))
	assert.Error(t, svc.Logout(context.Background(), "  "))
}
