package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/driveschool-api/internal/models"
)

type captureSink struct {
	logs []models.AuditLog
}

func (s *captureSink) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, *log)
	return nil
}

func newAuditRouter(sink *captureSink, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if claims != nil {
		r.Use(func(c *gin.Context) { c.Set(ContextUserKey, claims) })
	}
	r.Use(Audit(sink, "vehicles"))
	r.GET("/vehicles", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/vehicles", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.PUT("/vehicles/:id", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.DELETE("/vehicles/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestAuditRecordsCreate(t *testing.T) {
	sink := &captureSink{}
	r := newAuditRouter(sink, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/vehicles", nil))

	require.Len(t, sink.logs, 1)
	entry := sink.logs[0]
	assert.Equal(t, models.AuditActionCreate, entry.Action)
	assert.Equal(t, "vehicles", entry.Resource)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "admin-1", *entry.UserID)
}

func TestAuditCapturesResourceID(t *testing.T) {
	sink := &captureSink{}
	r := newAuditRouter(sink, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/vehicles/v1", nil))

	require.Len(t, sink.logs, 1)
	assert.Equal(t, models.AuditActionDelete, sink.logs[0].Action)
	require.NotNil(t, sink.logs[0].ResourceID)
	assert.Equal(t, "v1", *sink.logs[0].ResourceID)
}

func TestAuditSkipsReads(t *testing.T) {
	sink := &captureSink{}
	r := newAuditRouter(sink, &models.JWTClaims{UserID: "u1", Role: models.RoleStudent})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/vehicles", nil))

	assert.Empty(t, sink.logs)
}

func TestAuditSkipsFailedRequests(t *testing.T) {
	sink := &captureSink{}
	r := newAuditRouter(sink, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/vehicles/v1", nil))

	assert.Empty(t, sink.logs)
}
