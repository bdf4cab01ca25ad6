package admintoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "assent/pkg/domain-errors"
)

var service = New("test-signing-key", "test-issuer", time.Hour)

func Test_Mint(t *testing.T) {
	token, err := service.Mint("ops@example.com", "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := service.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "test-issuer", claims.Issuer)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func Test_Validate_InvalidToken(t *testing.T) {
	_, err := service.Validate("invalid-token-string")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_Validate_ExpiredToken(t *testing.T) {
	expired := New("test-signing-key", "test-issuer", -time.Hour)

	token, err := expired.Mint("ops@example.com", "admin")
	require.NoError(t, err)

	_, err = service.Validate(token)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "token has expired"))
}

func Test_Validate_WrongKey(t *testing.T) {
	other := New("different-key", "test-issuer", time.Hour)

	token, err := other.Mint("ops@example.com", "admin")
	require.NoError(t, err)

	_, err = service.Validate(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_Validate_WrongIssuer(t *testing.T) {
	other := New("test-signing-key", "other-issuer", time.Hour)

	token, err := other.Mint("ops@example.com", "admin")
	require.NoError(t, err)

	_, err = service.Validate(token)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "unexpected token issuer"))
}

func Test_ValidateAdminToken(t *testing.T) {
	token, err := service.Mint("ops@example.com", "admin")
	require.NoError(t, err)

	claims, err := service.ValidateAdminToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
}
