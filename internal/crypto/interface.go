package crypto

// Provider defines the interface for task field encryption.
type Provider interface {
	// Encrypt turns plaintext into a token. Identity when no master
	// password is set or plaintext is empty.
	Encrypt(plaintext string) (string, error)

	// Decrypt turns a token back into plaintext.
	Decrypt(token string) Result

	// DecryptString is Decrypt with failures replaced by Sentinel.
	DecryptString(token string) string

	// DecryptIfEnvelope decrypts text that looks like a token and keeps
	// anything else, including undecryptable tokens, unchanged.
	DecryptIfEnvelope(text string) string

	// IsEncrypted reports whether text has the token structure.
	IsEncrypted(text string) bool

	// HasPassword reports whether encryption is enabled.
	HasPassword() bool

	// EncryptFile encrypts a file name and its wrapped content separately.
	EncryptFile(data []byte, filename, mime string) (*EncryptedFile, error)

	// DecryptFile reverses EncryptFile for downloaded content.
	DecryptFile(content []byte) (*BinaryPayload, error)
}
