package user

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
)

const resetTokenBytes = 32

var nowFunc = time.Now // mockable

// makeResetToken generates a cryptographically random, hex-encoded reset token.
func makeResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "reading random bytes")
	}
	return hex.EncodeToString(buf), nil
}
