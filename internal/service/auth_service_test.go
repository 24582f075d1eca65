package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"receiptflow/internal/dto"
	"receiptflow/internal/models"
	"receiptflow/internal/repository"
	"receiptflow/pkg/auth"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memUsers struct {
	mu        sync.Mutex
	users     map[uuid.UUID]models.User
	companies map[uuid.UUID]models.Company
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[uuid.UUID]models.User{}, companies: map[uuid.UUID]models.Company{}}
}

func (m *memUsers) CreateWithCompany(_ context.Context, company *models.Company, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.companies[company.ID] = *company
	m.users[user.ID] = *user
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func newAuthFixture() (*AuthService, *memUsers, *auth.JWTManager) {
	users := newMemUsers()
	jwtManager := auth.NewJWTManager("test-secret", time.Hour, 24*time.Hour)
	return NewAuthService(users, jwtManager, zap.NewNop()), users, jwtManager
}

func TestRegisterCreatesTrialCompany(t *testing.T) {
	svc, users, jwtManager := newAuthFixture()

	resp, err := svc.Register(context.Background(), &dto.RegisterRequest{
		CompanyName: "Acme Bookkeeping",
		Username:    "kim",
		Email:       " Kim@Example.com ",
		Password:    "correct horse",
	})
	require.NoError(t, err)

	assert.Equal(t, "kim@example.com", resp.User.Email)
	require.Len(t, users.companies, 1)
	for _, c := range users.companies {
		assert.Equal(t, "Acme Bookkeeping", c.Name)
		assert.Equal(t, models.SubscriptionTrialing, c.SubscriptionStatus)
		assert.Equal(t, c.ID.String(), resp.User.CompanyID)
	}

	claims, err := jwtManager.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.CompanyID, claims.CompanyID)
}

func TestRegisterRejects(t *testing.T) {
	svc, _, _ := newAuthFixture()
	req := &dto.RegisterRequest{Username: "kim", Email: "kim@example.com", Password: "correct horse"}
	_, err := svc.Register(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), &dto.RegisterRequest{Username: "kim", Email: "kim@example.com", Password: "correct horse"})
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = svc.Register(context.Background(), &dto.RegisterRequest{Email: "nope", Password: "short"})
	var ferrs FieldErrors
	require.ErrorAs(t, err, &ferrs)
	assert.Len(t, ferrs, 3)
}

func TestLoginAndRefresh(t *testing.T) {
	svc, _, _ := newAuthFixture()
	_, err := svc.Register(context.Background(), &dto.RegisterRequest{Username: "kim", Email: "kim@example.com", Password: "correct horse"})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), &dto.LoginRequest{Email: "kim@example.com", Password: "wrong password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(context.Background(), &dto.LoginRequest{Email: "ghost@example.com", Password: "correct horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	resp, err := svc.Login(context.Background(), &dto.LoginRequest{Email: "KIM@example.com", Password: "correct horse"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), resp.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User, refreshed.User)

	_, err = svc.RefreshToken(context.Background(), resp.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
