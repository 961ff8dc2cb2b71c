package claims

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func mint(t *testing.T, c Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestIsExpired_BoundaryIsInclusive(t *testing.T) {
	exp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token := mint(t, Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)}})
	margin := 10 * time.Second

	require.False(t, IsExpired(token, margin, exp.Add(-margin-time.Second)))
	require.True(t, IsExpired(token, margin, exp.Add(-margin)))
	require.True(t, IsExpired(token, margin, exp.Add(-margin+time.Second)))
	require.True(t, IsExpired(token, margin, exp.Add(time.Hour)))
}

func TestIsExpired_UnreadableTokens(t *testing.T) {
	now := time.Now()
	require.True(t, IsExpired("", 0, now))
	require.True(t, IsExpired("not-a-jwt", 0, now))
	require.True(t, IsExpired(mint(t, Claims{Username: "ana"}), 0, now))
}

func TestTimeUntilExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token := mint(t, Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(1000 * time.Second))}})

	require.Equal(t, 990*time.Second, TimeUntilExpiry(token, 10*time.Second, now))
	require.Equal(t, time.Duration(0), TimeUntilExpiry(token, 10*time.Second, now.Add(995*time.Second)))
	require.Equal(t, time.Duration(0), TimeUntilExpiry("garbage", 10*time.Second, now))
}

func TestUsernameAndRole(t *testing.T) {
	withUsername := mint(t, Claims{Username: "ana", Role: "ADMIN", RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-ana"}})
	require.Equal(t, "ana", Username(withUsername))
	require.Equal(t, "ADMIN", Role(withUsername))

	subOnly := mint(t, Claims{Roles: jwt.ClaimStrings{"PROFESOR", "USER"}, RegisteredClaims: jwt.RegisteredClaims{Subject: "luis"}})
	require.Equal(t, "luis", Username(subOnly))
	require.Equal(t, "PROFESOR", Role(subOnly))

	authorities := mint(t, Claims{Authorities: jwt.ClaimStrings{"ROLE_USER"}})
	require.Equal(t, "ROLE_USER", Role(authorities))

	require.Equal(t, "", Username("garbage"))
	require.Equal(t, "", Role("garbage"))
}
