package crypto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Envelope is the unit produced by one encryption call.
type Envelope struct {
	Salt       []byte
	Nonce      []byte
	Ciphertext []byte // includes the GCM tag
}

// Codec converts envelopes to and from the text tokens stored in
// third-party fields.
type Codec interface {
	// Serialize renders an envelope as an opaque token.
	Serialize(env Envelope) (string, error)

	// Parse decodes a token. Errors wrap ErrMalformedToken.
	Parse(token string) (Envelope, error)

	// LooksLikeEnvelope is a cheap structural check. It never verifies
	// the ciphertext and never fails loudly.
	LooksLikeEnvelope(token string) bool
}

// JSONCodec implements the token format
//
//	base64( {"salt":b64,"nonce":b64,"ciphertext":b64} )
//
// with standard padded base64 on both layers.
type JSONCodec struct{}

// NewJSONCodec returns the default codec.
func NewJSONCodec() Codec {
	return JSONCodec{}
}

// wireEnvelope fixes the key order salt, nonce, ciphertext.
type wireEnvelope struct {
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

var envelopeKeys = []string{"salt", "nonce", "ciphertext"}

// Serialize implements Codec.
func (JSONCodec) Serialize(env Envelope) (string, error) {
	if err := env.validate(); err != nil {
		return "", err
	}

	data, err := json.Marshal(wireEnvelope{
		Salt:       base64.StdEncoding.EncodeToString(env.Salt),
		Nonce:      base64.StdEncoding.EncodeToString(env.Nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(env.Ciphertext),
	})
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

// Parse implements Codec.
func (JSONCodec) Parse(token string) (Envelope, error) {
	fields, ok := decodeFields(token)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: not an envelope", ErrMalformedToken)
	}

	var env Envelope
	targets := []*[]byte{&env.Salt, &env.Nonce, &env.Ciphertext}
	for i, key := range envelopeKeys {
		raw, err := base64.StdEncoding.DecodeString(fields[key])
		if err != nil {
			return Envelope{}, fmt.Errorf("%w: decode %s: %v", ErrMalformedToken, key, err)
		}
		*targets[i] = raw
	}

	if err := env.validate(); err != nil {
		return Envelope{}, err
	}

	return env, nil
}

// LooksLikeEnvelope implements Codec.
func (JSONCodec) LooksLikeEnvelope(token string) bool {
	_, ok := decodeFields(token)
	return ok
}

// decodeFields undoes the outer base64 and JSON layers. It succeeds only
// for an object holding exactly salt, nonce and ciphertext as strings.
func decodeFields(token string) (map[string]string, bool) {
	if token == "" {
		return nil, false
	}

	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, false
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	if len(obj) != len(envelopeKeys) {
		return nil, false
	}

	fields := make(map[string]string, len(envelopeKeys))
	for _, key := range envelopeKeys {
		value, ok := obj[key]
		if !ok {
			return nil, false
		}
		// null unmarshals into a string without error.
		var s *string
		if err := json.Unmarshal(value, &s); err != nil || s == nil {
			return nil, false
		}
		fields[key] = *s
	}

	return fields, true
}

func (env Envelope) validate() error {
	if len(env.Salt) != SaltSize {
		return fmt.Errorf("%w: salt must be %d bytes, got %d", ErrMalformedToken, SaltSize, len(env.Salt))
	}
	if len(env.Nonce) != NonceSize {
		return fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrMalformedToken, NonceSize, len(env.Nonce))
	}
	if len(env.Ciphertext) < TagSize {
		return fmt.Errorf("%w: ciphertext shorter than tag", ErrMalformedToken)
	}
	return nil
}
