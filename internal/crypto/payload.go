package crypto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultMimeType is used when a file carries no content type.
const DefaultMimeType = "application/octet-stream"

// BinaryPayload is a file's content and metadata in a form that can be
// encrypted as text.
type BinaryPayload struct {
	Name string
	Mime string
	Data []byte
}

// payloadWire is the JSON shape {"name","mime","data"}. The legacy keys
// mimeType and dataB64 are accepted on read.
type payloadWire struct {
	Name       string  `json:"name"`
	Mime       string  `json:"mime"`
	Data       *string `json:"data"`
	LegacyMime string  `json:"mimeType,omitempty"`
	LegacyData *string `json:"dataB64,omitempty"`
}

// Wrap packages a file as JSON text with base64 content. filename must be
// valid UTF-8; JSON cannot carry other bytes unchanged.
func Wrap(data []byte, filename, mime string) (string, error) {
	if !utf8.ValidString(filename) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileName, filename)
	}
	if mime == "" {
		mime = DefaultMimeType
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	out, err := json.Marshal(payloadWire{Name: filename, Mime: mime, Data: &encoded})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(out), nil
}

// Unwrap is the inverse of Wrap.
func Unwrap(plaintextJSON string) (*BinaryPayload, error) {
	var wire payloadWire
	if err := json.Unmarshal([]byte(plaintextJSON), &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	encoded := wire.Data
	if encoded == nil {
		encoded = wire.LegacyData
	}
	if encoded == nil {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedPayload)
	}

	data, err := base64.StdEncoding.DecodeString(*encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: decode data: %v", ErrMalformedPayload, err)
	}

	mime := wire.Mime
	if mime == "" {
		mime = wire.LegacyMime
	}
	if mime == "" {
		mime = DefaultMimeType
	}

	return &BinaryPayload{Name: wire.Name, Mime: mime, Data: data}, nil
}

// EncryptedFile is what goes over the wire for an attachment upload.
type EncryptedFile struct {
	Name      string // transport file name
	Content   []byte // transport file content
	Mime      string // transport content type
	Encrypted bool
}

// EncryptFile implements Provider. The file name and the wrapped payload
// are encrypted independently so the stored name is opaque while the
// content still carries the original name.
func (e *Engine) EncryptFile(data []byte, filename, mime string) (*EncryptedFile, error) {
	if !e.HasPassword() {
		if mime == "" {
			mime = DefaultMimeType
		}
		return &EncryptedFile{Name: filename, Content: data, Mime: mime}, nil
	}

	payload, err := Wrap(data, filename, mime)
	if err != nil {
		return nil, err
	}

	content, err := e.Encrypt(payload)
	if err != nil {
		return nil, fmt.Errorf("encrypt payload: %w", err)
	}

	name, err := e.Encrypt(filename)
	if err != nil {
		return nil, fmt.Errorf("encrypt file name: %w", err)
	}

	return &EncryptedFile{
		Name:      name,
		Content:   []byte(content),
		Mime:      DefaultMimeType,
		Encrypted: content != payload,
	}, nil
}

// DecryptFile implements Provider. ErrNotEncrypted tells the caller to
// treat content as a plain file.
func (e *Engine) DecryptFile(content []byte) (*BinaryPayload, error) {
	text := strings.TrimSpace(string(content))
	if !e.HasPassword() || !e.IsEncrypted(text) {
		return nil, ErrNotEncrypted
	}

	res := e.Decrypt(text)
	if !res.OK() {
		return nil, res.Err
	}

	return Unwrap(res.Plaintext)
}
