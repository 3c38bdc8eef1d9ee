package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccessSecret = "test-access-secret-key-for-testing-purposes"

func companyPtr(id int64) *int64 {
	return &id
}

func TestGenerateAccessToken(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)
	userID := uuid.New()

	token, err := service.GenerateAccessToken(userID, "03001234567", []string{"company"}, companyPtr(42))
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "03001234567", claims.Phone)
	assert.Equal(t, []string{"company"}, claims.Roles)
	require.NotNil(t, claims.CompanyID)
	assert.Equal(t, int64(42), *claims.CompanyID)
	assert.Equal(t, AccessToken, claims.TokenType)
	assert.Equal(t, Issuer, claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestGenerateAccessToken_PassengerHasNoCompany(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)

	token, err := service.GenerateAccessToken(uuid.New(), "03001234567", []string{"passenger"}, nil)
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Nil(t, claims.CompanyID)
}

func TestValidateAccessToken_Rejects(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)
	token, err := service.GenerateAccessToken(uuid.New(), "03001234567", []string{"passenger"}, nil)
	require.NoError(t, err)

	t.Run("malformed", func(t *testing.T) {
		_, err := service.ValidateAccessToken("invalid.token.here")
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewService("wrong-secret", time.Hour).ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		expired, err := NewService(testAccessSecret, -time.Hour).GenerateAccessToken(uuid.New(), "03001234567", nil, nil)
		require.NoError(t, err)
		_, err = service.ValidateAccessToken(expired)
		assert.Error(t, err)
	})

	t.Run("wrong token type", func(t *testing.T) {
		claims := Claims{
			UserID:    uuid.New(),
			TokenType: TokenType("refresh"),
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAccessSecret))
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(signed)
		assert.ErrorContains(t, err, "invalid token type")
	})

	t.Run("none algorithm", func(t *testing.T) {
		claims := Claims{UserID: uuid.New(), TokenType: AccessToken}
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(unsigned)
		assert.Error(t, err)
	})
}

func TestIsTokenExpired(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)
	userID := uuid.New()

	token, err := service.GenerateAccessToken(userID, "03001234567", []string{"passenger"}, nil)
	require.NoError(t, err)
	assert.False(t, service.IsTokenExpired(token))

	expiredToken, err := NewService(testAccessSecret, -time.Hour).GenerateAccessToken(userID, "03001234567", []string{"passenger"}, nil)
	require.NoError(t, err)
	assert.True(t, service.IsTokenExpired(expiredToken))

	assert.True(t, service.IsTokenExpired("invalid.token.here"))
}

func TestConcurrentTokenValidation(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)

	done := make(chan bool)
	errs := make(chan error, 50)

	for i := 0; i < 50; i++ {
		go func() {
			defer func() { done <- true }()
			token, err := service.GenerateAccessToken(uuid.New(), "03001234567", []string{"passenger"}, nil)
			if err != nil {
				errs <- err
				return
			}
			if _, err := service.ValidateAccessToken(token); err != nil {
				errs <- err
			}
		}()
	}

	for i := 0; i < 50; i++ {
		<-done
	}

	close(errs)
	assert.Empty(t, errs)
}
