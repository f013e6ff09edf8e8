package auth

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

// refreshTokenBytes is the entropy of a refresh token value.
const refreshTokenBytes = 32

// GenerateRefreshToken returns a new opaque refresh token and the hash under
// which it is stored. The raw value is only ever handed to the client.
func GenerateRefreshToken() (raw string, hash string, err error) {
	raw, err = common.MakeRandURLString(refreshTokenBytes)
	if err != nil {
		return "", "", err
	}
	return raw, HashRefreshToken(raw), nil
}

// HashRefreshToken is the hex SHA-256 of raw.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
