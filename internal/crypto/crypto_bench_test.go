package crypto_test

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/TheMichaelB/taskcrypt/internal/crypto"
	"github.com/TheMichaelB/taskcrypt/internal/crypto/testdata"
)

func BenchmarkKeyDerivation(b *testing.B) {
	salt := make([]byte, crypto.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = crypto.DeriveKey([]byte("password123"), salt)
	}
}

func BenchmarkEncrypt(b *testing.B) {
	engine := crypto.NewEngine()
	engine.SetMasterPassword("password123")
	defer engine.Close()

	plaintext := strings.Repeat("x", 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Encrypt(plaintext); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecryptCachedKey(b *testing.B) {
	v := testdata.Vectors[0]
	engine := crypto.NewEngine()
	engine.SetMasterPassword(v.Password)
	defer engine.Close()

	// Warm the cache
	if res := engine.Decrypt(v.Token); !res.OK() {
		b.Fatal(res.Err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if res := engine.Decrypt(v.Token); !res.OK() {
			b.Fatal(res.Err)
		}
	}
}

func BenchmarkLooksLikeEnvelope(b *testing.B) {
	codec := crypto.NewJSONCodec()
	token := testdata.Vectors[1].Token

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = codec.LooksLikeEnvelope(token)
	}
}
