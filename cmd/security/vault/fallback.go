package vault

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// FallbackLabel is the published input the fallback key is derived from.
// Changing it orphans every value written in fallback mode.
const FallbackLabel = "tavern/localstore/fallback-key/v1"

// FallbackKey derives the fixed, non-random key used when no keystore can serve one.
func FallbackKey() []byte {
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, []byte(FallbackLabel), nil, []byte("tavern localstore"))
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf only fails past 255*HashLen bytes of output.
		panic("vault: hkdf: " + err.Error())
	}
	return key
}

// FallbackCipher returns a Cipher over FallbackKey in ModeFallback.
func FallbackCipher() *Cipher {
	c, err := NewCipher(FallbackKey(), ModeFallback)
	if err != nil {
		panic("vault: fallback cipher: " + err.Error())
	}
	return c
}
