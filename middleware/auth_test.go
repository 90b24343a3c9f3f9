package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/billflow/models"
)

const testSecret = "test-secret"

func TestJwtAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	validToken, _ := GenerateToken(1, models.RoleOperator, testSecret, 1*time.Hour)
	expiredToken, _ := GenerateToken(1, models.RoleOperator, testSecret, -1*time.Hour)
	foreignToken, _ := GenerateToken(1, models.RoleAdmin, "another-secret", 1*time.Hour)
	noneToken, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 1, Role: models.RoleAdmin}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
		expectedRole   string
		expectedCode   string
	}{
		{
			name:           "Valid Token",
			authHeader:     "Bearer " + validToken,
			expectedStatus: http.StatusOK,
			expectedRole:   models.RoleOperator,
		},
		{
			name:           "Missing Header",
			authHeader:     "",
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "MissingToken",
		},
		{
			name:           "Invalid Format",
			authHeader:     "Invalid " + validToken,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Expired Token",
			authHeader:     "Bearer " + expiredToken,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "ExpiredToken",
		},
		{
			name:           "Invalid Token",
			authHeader:     "Bearer invalid.token.string",
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "InvalidToken",
		},
		{
			name:           "Wrong Secret",
			authHeader:     "Bearer " + foreignToken,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "InvalidToken",
		},
		{
			name:           "Unsigned Token",
			authHeader:     "Bearer " + noneToken,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "InvalidToken",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(JwtAuthMiddleware(testSecret))
			router.GET("/test", func(c *gin.Context) {
				userID, role, ok := CurrentUser(c)
				require.True(t, ok)
				c.JSON(http.StatusOK, gin.H{"role": role, "user_id": userID})
			})

			req, _ := http.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedRole != "" {
				assert.Contains(t, w.Body.String(), tt.expectedRole)
			}
			if tt.expectedCode != "" {
				assert.Contains(t, w.Body.String(), tt.expectedCode)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		setupContext   func(c *gin.Context)
		requiredRoles  []string
		expectedStatus int
	}{
		{
			name: "Has Required Role",
			setupContext: func(c *gin.Context) {
				c.Set(ContextRole, models.RoleAdmin)
			},
			requiredRoles:  []string{models.RoleAdmin},
			expectedStatus: http.StatusOK,
		},
		{
			name: "Has One Of Required Roles",
			setupContext: func(c *gin.Context) {
				c.Set(ContextRole, models.RoleOperator)
			},
			requiredRoles:  []string{models.RoleAdmin, models.RoleOperator},
			expectedStatus: http.StatusOK,
		},
		{
			name: "Missing Required Role",
			setupContext: func(c *gin.Context) {
				c.Set(ContextRole, models.RoleStaff)
			},
			requiredRoles:  []string{models.RoleAdmin},
			expectedStatus: http.StatusForbidden,
		},
		{
			name: "Role Of Wrong Type",
			setupContext: func(c *gin.Context) {
				c.Set(ContextRole, 7)
			},
			requiredRoles:  []string{models.RoleAdmin},
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "No Role In Context",
			setupContext:   func(c *gin.Context) {},
			requiredRoles:  []string{models.RoleAdmin},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(func(c *gin.Context) {
				tt.setupContext(c)
				c.Next()
			})
			router.Use(RequireRole(tt.requiredRoles...))
			router.GET("/test", func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			req, _ := http.NewRequest(http.MethodGet, "/test", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(42, models.RoleAdmin, testSecret, time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}
