package credential

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"
)

// seal compresses data with zstd and encrypts it to a fresh X25519 identity.
// It returns the ciphertext and the identity's secret key.
func seal(data []byte) ([]byte, string, error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, "", fmt.Errorf("generate key: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, "", err
	}
	compressed := enc.EncodeAll(data, nil)
	enc.Close()

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, id.Recipient())
	if err != nil {
		return nil, "", fmt.Errorf("encrypt: %w", err)
	}
	if _, err := w.Write(compressed); err != nil {
		return nil, "", fmt.Errorf("encrypt: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("encrypt: %w", err)
	}
	return buf.Bytes(), id.String(), nil
}

// unseal reverses seal.
func unseal(sealed []byte, key string) ([]byte, error) {
	id, err := age.ParseX25519Identity(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}
	r, err := age.Decrypt(bytes.NewReader(sealed), id)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	compressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	data, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return data, nil
}
