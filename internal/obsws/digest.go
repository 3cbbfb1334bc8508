package obsws

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// ErrMalformedChallenge is returned by Authenticate when the Hello frame
// carried an authentication block without a salt or challenge.
var ErrMalformedChallenge = errors.New("malformed authentication challenge")

// Authenticate computes the Identify authentication token for a Hello
// challenge: base64(sha256(base64(sha256(password+salt)) + challenge)).
func Authenticate(password, salt, challenge string) (string, error) {
	if salt == "" || challenge == "" {
		return "", ErrMalformedChallenge
	}
	secret := digest(password + salt)
	return digest(secret + challenge), nil
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}
