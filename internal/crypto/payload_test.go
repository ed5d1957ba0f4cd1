package crypto_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/taskcrypt/internal/crypto"
)

func TestWrapUnwrap(t *testing.T) {
	data := []byte{0x00, 0xff, 0x10, 'a', 'b'}

	wrapped, err := crypto.Wrap(data, "photo.bin", "image/x-test")
	require.NoError(t, err)

	var raw map[string]string
	require.NoError(t, json.Unmarshal([]byte(wrapped), &raw))
	assert.Equal(t, "photo.bin", raw["name"])
	assert.Equal(t, "image/x-test", raw["mime"])
	assert.Equal(t, "AP8QYWI=", raw["data"])

	payload, err := crypto.Unwrap(wrapped)
	require.NoError(t, err)
	assert.Equal(t, "photo.bin", payload.Name)
	assert.Equal(t, "image/x-test", payload.Mime)
	assert.Equal(t, data, payload.Data)
}

func TestWrapDefaultMime(t *testing.T) {
	wrapped, err := crypto.Wrap([]byte("x"), "x", "")
	require.NoError(t, err)

	payload, err := crypto.Unwrap(wrapped)
	require.NoError(t, err)
	assert.Equal(t, crypto.DefaultMimeType, payload.Mime)
}

func TestWrapEmptyData(t *testing.T) {
	wrapped, err := crypto.Wrap(nil, "empty.txt", "text/plain")
	require.NoError(t, err)

	payload, err := crypto.Unwrap(wrapped)
	require.NoError(t, err)
	assert.Empty(t, payload.Data)
}

func TestWrapRejectsInvalidUTF8Name(t *testing.T) {
	_, err := crypto.Wrap([]byte("x"), "a\xffb.txt", "text/plain")
	assert.ErrorIs(t, err, crypto.ErrInvalidFileName)

	engine := crypto.NewEngine()
	engine.SetMasterPassword("correcthorse")
	defer engine.Close()

	_, err = engine.EncryptFile([]byte("x"), "a\xffb.txt", "text/plain")
	assert.ErrorIs(t, err, crypto.ErrInvalidFileName)

	// Non-ASCII names survive the round trip byte for byte.
	name := "informe-año-📄.txt"
	file, err := engine.EncryptFile([]byte("x"), name, "text/plain")
	require.NoError(t, err)

	payload, err := engine.DecryptFile(file.Content)
	require.NoError(t, err)
	assert.Equal(t, name, payload.Name)
}

func TestUnwrapLegacyKeys(t *testing.T) {
	payload, err := crypto.Unwrap(`{"name":"a.txt","mimeType":"text/plain","dataB64":"aGk="}`)
	require.NoError(t, err)

	assert.Equal(t, "a.txt", payload.Name)
	assert.Equal(t, "text/plain", payload.Mime)
	assert.Equal(t, []byte("hi"), payload.Data)
}

func TestUnwrapMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", "hello"},
		{"missing data", `{"name":"a","mime":"text/plain"}`},
		{"bad base64", `{"name":"a","mime":"text/plain","data":"***"}`},
		{"wrong type", `{"name":"a","data":5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := crypto.Unwrap(tt.input)
			assert.ErrorIs(t, err, crypto.ErrMalformedPayload)
		})
	}
}

func TestEncryptDecryptFile(t *testing.T) {
	e := newEngine(t, "correcthorse")
	content := []byte("0123456789")

	file, err := e.EncryptFile(content, "a.txt", "text/plain")
	require.NoError(t, err)

	assert.True(t, file.Encrypted)
	assert.True(t, e.IsEncrypted(file.Name), "file name is a token")
	assert.True(t, e.IsEncrypted(string(file.Content)), "content is a token")
	assert.NotContains(t, string(file.Content), "0123456789")
	assert.Equal(t, "a.txt", e.DecryptString(file.Name))

	payload, err := e.DecryptFile(file.Content)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", payload.Name)
	assert.Equal(t, "text/plain", payload.Mime)
	assert.Equal(t, content, payload.Data)
}

func TestDecryptFileTrimsWhitespace(t *testing.T) {
	e := newEngine(t, "correcthorse")

	file, err := e.EncryptFile([]byte("x"), "x.bin", "")
	require.NoError(t, err)

	payload, err := e.DecryptFile(append(append([]byte("\n "), file.Content...), '\n'))
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), payload.Data)
}

func TestEncryptFileWithoutPassword(t *testing.T) {
	e := crypto.NewEngine()
	content := []byte("0123456789")

	file, err := e.EncryptFile(content, "a.txt", "text/plain")
	require.NoError(t, err)

	assert.False(t, file.Encrypted)
	assert.Equal(t, "a.txt", file.Name)
	assert.Equal(t, content, file.Content)
	assert.Equal(t, "text/plain", file.Mime)

	_, err = e.DecryptFile(content)
	assert.ErrorIs(t, err, crypto.ErrNotEncrypted)
}

func TestDecryptFileNotOurFormat(t *testing.T) {
	e := newEngine(t, "correcthorse")

	_, err := e.DecryptFile([]byte{0x89, 'P', 'N', 'G', 0x00})
	assert.ErrorIs(t, err, crypto.ErrNotEncrypted)
}

func TestDecryptFileWrongPassword(t *testing.T) {
	e := newEngine(t, "correcthorse")
	file, err := e.EncryptFile([]byte("data"), "a.txt", "text/plain")
	require.NoError(t, err)

	e.SetMasterPassword("wrong")

	_, err = e.DecryptFile(file.Content)
	assert.ErrorIs(t, err, crypto.ErrAuthentication)
}

func TestDecryptFileMalformedPayload(t *testing.T) {
	e := newEngine(t, "correcthorse")

	// A valid token whose plaintext is not a payload
	token, err := e.Encrypt("just a comment")
	require.NoError(t, err)

	_, err = e.DecryptFile([]byte(token))
	assert.ErrorIs(t, err, crypto.ErrMalformedPayload)
}
