package testdata

// TestVector contains known input/output pairs for testing. Tokens were
// produced by the WebCrypto implementation of the same format, so a match
// proves cross-implementation compatibility.
type TestVector struct {
	Name       string
	Password   string
	Salt       string // Base64
	Nonce      string // Base64
	Key        string // Hex
	Plaintext  string
	Ciphertext string // Base64, includes tag
	Token      string
}

// Vectors contains test vectors for crypto operations.
var Vectors = []TestVector{
	{
		Name:       "ASCII task name",
		Password:   "correcthorse",
		Salt:       "AAECAwQFBgcICQoLDA0ODw==",
		Nonce:      "oKGio6Slpqeoqaqr",
		Key:        "3922135708662f5da722adcc59b81990158f1fca5978bffbd9231ec9b9bc115a",
		Plaintext:  "Buy milk",
		Ciphertext: "qr2Eb039OjnZEkyLJr59X1l6CBoBm1jM",
		Token:      "eyJzYWx0IjoiQUFFQ0F3UUZCZ2NJQ1FvTERBME9Edz09Iiwibm9uY2UiOiJvS0dpbzZTbHBxZW9xYXFyIiwiY2lwaGVydGV4dCI6InFyMkViMDM5T2puWkVreUxKcjU5WDFsNkNCb0JtMWpNIn0=",
	},
	{
		Name:       "Unicode password and content",
		Password:   "contraseña ñ",
		Salt:       "//79/Pv6+fj39vX08/Lx8A==",
		Nonce:      "AAcOFRwjKjE4P0ZN",
		Key:        "601572f0f3df3cbab66a43155fe05a7a40ea838223a4dd742fdf2e6675e35b70",
		Plaintext:  "Comprar leche 🥛 — ¡ya!",
		Ciphertext: "uY4a/ShlJIbARuFW1Xjl0QR2rsvQrHij1U7PPTVbAATNsKlO7Jvyp/is8ho=",
		Token:      "eyJzYWx0IjoiLy83OS9QdjYrZmozOXZYMDgvTHg4QT09Iiwibm9uY2UiOiJBQWNPRlJ3aktqRTRQMFpOIiwiY2lwaGVydGV4dCI6InVZNGEvU2hsSkliQVJ1RlcxWGpsMFFSMnJzdlFySGlqMVU3UFBUVmJBQVROc0tsTzdKdnlwL2lzOGhvPSJ9",
	},
}
