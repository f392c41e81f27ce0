package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_HashPassword_Should_Roundtrip(t *testing.T) {
	req := require.New(t)

	hash, err := HashPassword("correct horse")
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$"))

	ok, err := ComparePassword("correct horse", hash)
	req.NoError(err)
	req.True(ok)

	ok, err = ComparePassword("battery staple", hash)
	req.NoError(err)
	req.False(ok)
}

func Test_HashPassword_Should_Salt_Every_Hash(t *testing.T) {
	req := require.New(t)

	a, err := HashPassword("same")
	req.NoError(err)
	b, err := HashPassword("same")
	req.NoError(err)

	req.NotEqual(a, b)
}

func Test_ComparePassword_Should_Reject_Garbage(t *testing.T) {
	for _, hash := range []string{"", "plain", "$bcrypt$v=19$m=1,t=1,p=1$aa$bb", "$argon2id$v=19$m=x,t=1,p=1$aa$bb", "$argon2id$v=19$m=1,t=1,p=1$!!$bb"} {
		t.Run(hash, func(t *testing.T) {
			_, err := ComparePassword("pw", hash)
			require.ErrorIs(t, err, ErrInvalidHash)
		})
	}
}
