package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// Logout works without a valid token: it only clears the session
// cookie, so expired or anonymous clients can still sign out.
func TestAuthHandlerLogoutWithoutToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAuthHandler(nil, CookieSettings{Name: "access_token"})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)

	h.Logout(c)

	assert.Equal(t, http.StatusOK, w.Code)
	setCookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, setCookie, "access_token=")
	assert.Contains(t, setCookie, "Max-Age=0")
}
