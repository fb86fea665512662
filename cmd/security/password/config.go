package password

import "runtime"

// Argon2idParams is the cost of one hash. MemoryKiB is in KiB, as argon2.IDKey
// expects.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy bounds what a user may choose as a password. MaxLength also caps
// the work an attacker can force per hash.
type Policy struct {
	MinLength      int
	MaxLength      int
	RejectVeryWeak bool
}

type Config struct {
	Params Argon2idParams
	Policy Policy
}

// Zero reports whether c was left unset and needs DefaultConfig.
func (c Config) Zero() bool {
	return c.Params.MemoryKiB == 0 || c.Params.Iterations == 0 || c.Policy.MaxLength == 0
}

// DefaultConfig is tuned for sign-up on phones: 32 MiB, three passes, and the
// hosted provider's minimum length of 8.
func DefaultConfig() Config {
	return Config{
		Params: Argon2idParams{
			MemoryKiB:   32 * 1024,
			Iterations:  3,
			Parallelism: lanes(runtime.NumCPU()),
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{MinLength: 8, MaxLength: 256, RejectVeryWeak: true},
	}
}

// TestConfig keeps the policy but makes hashing cheap.
func TestConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func lanes(cpus int) uint8 {
	return uint8(min(max(cpus, 1), 4)) // #nosec G115 -- clamped to [1..4].
}
