// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package confidential

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/cloudflare/circl/group"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	sizeTag   = 16
	sizeNonce = 24
	sizeValue = 8
	sizeMask  = 32

	payloadSize       = sizeValue + sizeMask
	encryptedDataSize = sizeTag + sizeNonce + payloadSize
)

// encryptedDataAAD authenticates the payload layout. It must match exactly
// between encryptor and decryptor.
var encryptedDataAAD = []byte("TARI_AAD_VALUE_AND_MASK_EXTEND_NONCE_VARIANT")

// kdfDomain separates the AEAD key derivation from every other Blake2b use.
const kdfDomain = "tari.dan.confidential.kdf.v1.encrypted_value_and_mask"

// EncryptedData is [tag(16) || nonce(24) || ciphertext(value(8 LE) || mask(32))].
// The payload region is the authenticated ciphertext after encryption.
type EncryptedData [encryptedDataSize]byte

func (d EncryptedData) tag() []byte     { return d[:sizeTag] }
func (d EncryptedData) nonce() []byte   { return d[sizeTag : sizeTag+sizeNonce] }
func (d EncryptedData) payload() []byte { return d[sizeTag+sizeNonce:] }

// aeadKey derives the 32-byte XChaCha20-Poly1305 key bound to the encryption
// key and the commitment.
func aeadKey(encryptionKey group.Scalar, commitment group.Element) ([]byte, error) {
	hasher, err := blake2b.New256(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAead, err)
	}
	hasher.Write([]byte(kdfDomain))
	keyBytes := scalarBytes(encryptionKey)
	hasher.Write(keyBytes[:])
	commitmentBytes := elementBytes(commitment)
	hasher.Write(commitmentBytes[:])
	key := hasher.Sum(nil)
	zeroize(keyBytes[:])
	return key, nil
}

// EncryptData seals (value, mask) under a key derived from the encryption
// key and the commitment. Intermediate plaintext buffers are scrubbed on
// every failure path.
func EncryptData(
	encryptionKey group.Scalar,
	commitment group.Element,
	value uint64,
	mask group.Scalar,
) (EncryptedData, error) {
	var out EncryptedData

	payload := make([]byte, payloadSize)
	binary.LittleEndian.PutUint64(payload[:sizeValue], value)
	maskBytes := scalarBytes(mask)
	copy(payload[sizeValue:], maskBytes[:])
	zeroize(maskBytes[:])

	key, err := aeadKey(encryptionKey, commitment)
	if err != nil {
		zeroize(payload)
		return out, err
	}
	defer zeroize(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		zeroize(payload)
		return out, fmt.Errorf("%w: %s", ErrAead, err)
	}

	nonce := make([]byte, sizeNonce)
	if _, err := rand.Read(nonce); err != nil {
		zeroize(payload)
		return out, fmt.Errorf("%w: %s", ErrAead, err)
	}

	// Seal appends the tag after the ciphertext; the wire layout wants it
	// first.
	sealed := aead.Seal(nil, nonce, payload, encryptedDataAAD)
	zeroize(payload)

	copy(out[:sizeTag], sealed[payloadSize:])
	copy(out[sizeTag:sizeTag+sizeNonce], nonce)
	copy(out[sizeTag+sizeNonce:], sealed[:payloadSize])
	return out, nil
}

// DecryptData recovers (value, mask). Any ciphertext mutation fails
// authentication.
func DecryptData(
	encryptionKey group.Scalar,
	commitment group.Element,
	data EncryptedData,
) (uint64, group.Scalar, error) {
	key, err := aeadKey(encryptionKey, commitment)
	if err != nil {
		return 0, nil, err
	}
	defer zeroize(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s", ErrAead, err)
	}

	sealed := make([]byte, 0, payloadSize+sizeTag)
	sealed = append(sealed, data.payload()...)
	sealed = append(sealed, data.tag()...)

	payload, err := aead.Open(nil, data.nonce(), sealed, encryptedDataAAD)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s", ErrAead, err)
	}
	defer zeroize(payload)

	value := binary.LittleEndian.Uint64(payload[:sizeValue])
	mask, err := scalarFromBytes(payload[sizeValue:])
	if err != nil {
		return 0, nil, fmt.Errorf("%w: malformed mask: %s", ErrAead, err)
	}
	return value, mask, nil
}

// zeroize scrubs a secret buffer in place.
func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
