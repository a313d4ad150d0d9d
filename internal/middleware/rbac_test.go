package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/driveschool-api/internal/models"
)

func performRBAC(t *testing.T, claims *models.JWTClaims, paramID string, allowed ...string) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if paramID != "" {
		c.Params = gin.Params{{Key: "id", Value: paramID}}
	}
	if claims != nil {
		c.Set(ContextUserKey, claims)
	}

	RBAC(allowed...)(c)
	return w.Code
}

func TestRBACAllowsMatchingRole(t *testing.T) {
	code := performRBAC(t, &models.JWTClaims{UserID: "u1", Role: models.RoleAdmin}, "", string(models.RoleAdmin))
	assert.Equal(t, http.StatusOK, code)
}

func TestRBACDeniesOtherRole(t *testing.T) {
	code := performRBAC(t, &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}, "", string(models.RoleAdmin))
	assert.Equal(t, http.StatusForbidden, code)
}

func TestRBACAllowsSelf(t *testing.T) {
	code := performRBAC(t, &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}, "u1", string(models.RoleAdmin), "SELF")
	assert.Equal(t, http.StatusOK, code)
}

func TestRBACDeniesOtherUser(t *testing.T) {
	code := performRBAC(t, &models.JWTClaims{UserID: "u2", Role: models.RoleStudent}, "u1", string(models.RoleAdmin), "SELF")
	assert.Equal(t, http.StatusForbidden, code)
}

func TestRBACRequiresClaims(t *testing.T) {
	code := performRBAC(t, nil, "", string(models.RoleAdmin))
	assert.Equal(t, http.StatusUnauthorized, code)
}
