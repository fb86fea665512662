package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Encoded hashes look like
//
//	$argon2id$v=19$m=32768,t=3,p=4$<salt>$<key>
//
// with unpadded standard base64 for salt and key.
const algorithm = "argon2id"

var b64 = base64.RawStdEncoding

// encodedHash is one parsed hash string.
type encodedHash struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

func (h encodedHash) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithm, argon2.Version,
		h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism,
		b64.EncodeToString(h.salt), b64.EncodeToString(h.key))
}

// Hash validates password against the policy and returns its encoded hash.
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}
	return c.hash(password)
}

func (c Config) hash(password string) (string, error) {
	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: salt: %w", err)
	}
	h := encodedHash{params: c.Params, salt: salt}
	h.key = derive(password, h.params, salt, c.Params.KeyLength)
	return h.String(), nil
}

func derive(password string, p Argon2idParams, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, keyLen)
}

// Verify reports whether password matches encoded. A malformed hash, or one
// whose cost is far above the configured one, returns ErrInvalidHash.
func (c Config) Verify(encoded, password string) (bool, error) {
	h, err := parseHash(encoded)
	if err != nil {
		return false, err
	}
	if !c.acceptable(h.params) {
		return false, ErrInvalidHash
	}
	got := derive(password, h.params, h.salt, h.params.KeyLength)
	return subtle.ConstantTimeCompare(got, h.key) == 1, nil
}

// NeedsRehash reports whether encoded was produced with parameters other
// than the configured ones. Callers rehash after a successful Verify.
func (c Config) NeedsRehash(encoded string) bool {
	h, err := parseHash(encoded)
	if err != nil {
		return true
	}
	p := h.params
	return p.MemoryKiB != c.Params.MemoryKiB ||
		p.Iterations != c.Params.Iterations ||
		p.Parallelism != c.Params.Parallelism ||
		p.KeyLength != c.Params.KeyLength
}

// acceptable allows older, cheaper hashes but refuses attacker-sized costs.
func (c Config) acceptable(p Argon2idParams) bool {
	lim := c.Params
	return p.MemoryKiB <= lim.MemoryKiB*2 &&
		p.Iterations <= lim.Iterations*2 &&
		p.Parallelism <= lim.Parallelism*2 &&
		p.SaltLength >= 8 && p.SaltLength <= 64 &&
		p.KeyLength >= 16 && p.KeyLength <= 128
}

func parseHash(s string) (encodedHash, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithm {
		return encodedHash{}, ErrInvalidHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return encodedHash{}, ErrInvalidHash
	}

	var h encodedHash
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return encodedHash{}, ErrInvalidHash
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return encodedHash{}, ErrInvalidHash
		}
		switch k {
		case "m":
			h.params.MemoryKiB = uint32(n)
		case "t":
			h.params.Iterations = uint32(n)
		case "p":
			if n > 255 {
				return encodedHash{}, ErrInvalidHash
			}
			h.params.Parallelism = uint8(n)
		default:
			return encodedHash{}, ErrInvalidHash
		}
	}
	if h.params.MemoryKiB == 0 || h.params.Iterations == 0 || h.params.Parallelism == 0 {
		return encodedHash{}, ErrInvalidHash
	}

	var err error
	if h.salt, err = b64.DecodeString(parts[4]); err != nil {
		return encodedHash{}, ErrInvalidHash
	}
	if h.key, err = b64.DecodeString(parts[5]); err != nil {
		return encodedHash{}, ErrInvalidHash
	}
	h.params.SaltLength = uint32(len(h.salt)) // #nosec G115 -- bounded by the input string length.
	h.params.KeyLength = uint32(len(h.key))   // #nosec G115 -- bounded by the input string length.
	return h, nil
}
