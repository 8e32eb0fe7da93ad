package handler

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// AdminKeyHeader carries the admin API key.
const AdminKeyHeader = "X-Admin-Key"

// AdminAuth authenticates admin requests by comparing the SHA-256 of the
// presented key with a set of configured hashes.
type AdminAuth struct {
	hashes [][]byte
}

// NewAdminAuth parses hex-encoded SHA-256 key hashes. With no hashes every
// admin request is rejected.
func NewAdminAuth(hexHashes []string) (*AdminAuth, error) {
	a := &AdminAuth{}
	for _, h := range hexHashes {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		b, err := hex.DecodeString(h)
		if err != nil {
			return nil, errors.Wrap(err, "decode admin key hash")
		}
		if len(b) != sha256.Size {
			return nil, errors.Errorf("admin key hash must be %d bytes, got %d", sha256.Size, len(b))
		}
		a.hashes = append(a.hashes, b)
	}
	return a, nil
}

// HashKey returns the hex-encoded SHA-256 of key, the form NewAdminAuth
// expects.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Authenticate reports whether key matches one of the configured hashes.
// Every hash is compared in constant time.
func (a *AdminAuth) Authenticate(key string) bool {
	if key == "" {
		return false
	}
	sum := sha256.Sum256([]byte(key))
	ok := 0
	for _, h := range a.hashes {
		ok |= subtle.ConstantTimeCompare(sum[:], h)
	}
	return ok == 1
}

// Require wraps next so that it only runs for authenticated admin requests.
func (a *AdminAuth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Authenticate(r.Header.Get(AdminKeyHeader)) {
			zctx.From(r.Context()).Warn("Admin authentication failed",
				zap.String("path", r.URL.Path),
			)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
