package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/driveschool-api/internal/models"
	appErrors "github.com/noah-isme/driveschool-api/pkg/errors"
)

type mockAuthUserRepo struct {
	users     map[string]models.User
	auditLogs []models.AuditLog
}

func (m *mockAuthUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			user := u
			return &user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) EmailExists(ctx context.Context, email, excludeID string) (bool, error) {
	for _, u := range m.users {
		if u.Email == email && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAuthUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]models.User)
	}
	m.users[user.ID] = *user
	return nil
}

func (m *mockAuthUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, *log)
	return nil
}

func newAuthFixture(repo *mockAuthUserRepo) *AuthService {
	return NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		TokenSecret: "test-secret",
		TokenExpiry: 24 * time.Hour,
		Issuer:      "driveschool-api",
	})
}

func TestAuthServiceRegisterDefaultsToStudent(t *testing.T) {
	repo := &mockAuthUserRepo{}
	svc := newAuthFixture(repo)

	user, err := svc.Register(context.Background(), models.RegisterRequest{
		FirstName: "Dana",
		LastName:  "Lee",
		Email:     "dana@example.com",
		Password:  "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, user.Role)
	assert.NotEqual(t, "secret1", user.PasswordHash)
}

func TestAuthServiceRegisterDuplicateEmail(t *testing.T) {
	repo := &mockAuthUserRepo{users: map[string]models.User{
		"u1": {ID: "u1", Email: "dana@example.com"},
	}}
	svc := newAuthFixture(repo)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		FirstName: "Dana",
		LastName:  "Lee",
		Email:     "dana@example.com",
		Password:  "secret1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginAndValidateToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &mockAuthUserRepo{users: map[string]models.User{
		"u1": {ID: "u1", FirstName: "Dana", LastName: "Lee", Email: "dana@example.com", PasswordHash: string(hash), Role: models.RoleStudent},
	}}
	svc := newAuthFixture(repo)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "dana@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, int64((24 * time.Hour).Seconds()), res.ExpiresIn)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionLogin, repo.auditLogs[0].Action)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &mockAuthUserRepo{users: map[string]models.User{
		"u1": {ID: "u1", Email: "dana@example.com", PasswordHash: string(hash)},
	}}
	svc := newAuthFixture(repo)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "dana@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	svc := newAuthFixture(&mockAuthUserRepo{})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@example.com", Password: "secret1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsTampered(t *testing.T) {
	svc := newAuthFixture(&mockAuthUserRepo{})
	other := NewAuthService(&mockAuthUserRepo{}, validator.New(), zap.NewNop(), AuthConfig{
		TokenSecret: "other-secret",
		TokenExpiry: 24 * time.Hour,
		Issuer:      "driveschool-api",
	})

	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &mockAuthUserRepo{users: map[string]models.User{
		"u1": {ID: "u1", Email: "dana@example.com", PasswordHash: string(hash)},
	}}
	issuer := newAuthFixture(repo)
	res, err := issuer.Login(context.Background(), models.LoginRequest{Email: "dana@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = other.ValidateToken(res.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.ValidateToken("not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
