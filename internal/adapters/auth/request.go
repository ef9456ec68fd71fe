package auth

import (
	"crypto/sha256"
	"encoding/base64"
)

// Request is the part of an HTTP call a token is bound to. A token signed
// for one request is refused for any other method, path or body.
type Request struct {
	Method string
	Path   string
	Body   []byte
}

// BodyDigest is the unpadded base64url SHA-256 of body.
func BodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
