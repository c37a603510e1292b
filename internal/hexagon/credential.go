// Package hexagon implements the client side of the HxGN streaming imagery
// service: vendor credentials, the per-credential session that owns a bearer
// token lifecycle, and a process-wide session registry.
package hexagon

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidCredential is returned when a client id or secret fails the
// construction checks.
var ErrInvalidCredential = errors.New("invalid client id or secret")

// maxCredentialLen bounds both the client id and secret. Observed vendor
// values are 24-44 characters; anything longer is rejected before it can
// reach the upstream query string.
const maxCredentialLen = 80

// salt is fixed at process start. It only has to make registry keys
// unlinkable across restarts; nothing is persisted.
var salt = time.Now().UTC().Format("20060102150405")

// Credential is an immutable vendor (client id, client secret) pair.
// Construct one with NewCredential; the zero value is not usable.
type Credential struct {
	id     string
	secret string
}

// NewCredential validates and returns a vendor credential pair. Values longer
// than 80 characters or containing spaces or semicolons are rejected, which
// blocks injection into the upstream URL query string.
func NewCredential(id, secret string) (Credential, error) {
	for _, v := range []string{id, secret} {
		if v == "" || len(v) > maxCredentialLen {
			return Credential{}, fmt.Errorf("%w: bad length", ErrInvalidCredential)
		}
		if strings.ContainsAny(v, " ;") {
			return Credential{}, fmt.Errorf("%w: illegal character", ErrInvalidCredential)
		}
	}
	return Credential{id: id, secret: secret}, nil
}

// Hash returns a one-way registry key for the pair. The raw secret cannot be
// recovered from a leaked cache key or log line.
func (c Credential) Hash() string {
	sum := sha256.Sum256([]byte(c.id + ":" + c.secret + ":" + salt))
	return hex.EncodeToString(sum[:])
}
