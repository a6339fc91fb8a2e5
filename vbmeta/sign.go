package vbmeta

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"

	"github.com/mt8781-root/vbtools/imgregion"
)

func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block found", path)
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		if k, ok := key.(*rsa.PrivateKey); ok {
			return k, nil
		}
	}
	return nil, fmt.Errorf("%s: %s: %w", path, block.Type, ErrorUnsupportedKeyType)
}

func checkAlgorithm(h *Header) error {
	if h.AlgorithmType != AlgorithmSHA256RSA2048 {
		return fmt.Errorf("algorithm_type=%d (expected %d): %w", h.AlgorithmType, AlgorithmSHA256RSA2048, ErrorUnsupportedAlg)
	}
	if h.HashSize != sha256.Size {
		return fmt.Errorf("hash_size=%d (expected %d): %w", h.HashSize, sha256.Size, ErrorUnsupportedAlg)
	}
	return nil
}

// Rebuild keeps every descriptor of the stock vbmeta but trusts the public
// key of custom, sets flags and signs the result with key.
func Rebuild(stock, custom []byte, key *rsa.PrivateKey, flags uint32) ([]byte, error) {
	out := append([]byte{}, stock...)

	img, err := Parse(out)
	if err != nil {
		return nil, fmt.Errorf("stock: %w", err)
	}
	c, err := Parse(custom)
	if err != nil {
		return nil, fmt.Errorf("custom: %w", err)
	}
	if err := checkAlgorithm(&img.Header); err != nil {
		return nil, err
	}

	if img.PubkeySize == 0 || c.PubkeySize == 0 {
		return nil, ErrorNoPublicKey
	}
	if img.PubkeySize != c.PubkeySize {
		return nil, fmt.Errorf("custom=%d stock=%d: %w", c.PubkeySize, img.PubkeySize, ErrorKeySizeMismatch)
	}

	customKey, err := c.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("custom: %w", err)
	}
	modulus, err := c.PublicKeyModulus()
	if err != nil {
		return nil, fmt.Errorf("custom: %w", err)
	}
	if bits := key.N.BitLen(); bits != 8*KeyLength {
		return nil, fmt.Errorf("%d bit signing key, want %d: %w", bits, 8*KeyLength, ErrorKeyMismatch)
	}
	if !bytes.Equal(key.N.FillBytes(make([]byte, KeyLength)), modulus) {
		return nil, ErrorKeyMismatch
	}

	stockKey, err := img.field(img.aux, "public key", img.PubkeyOffset, img.PubkeySize)
	if err != nil {
		return nil, fmt.Errorf("stock: %w", err)
	}
	if _, err := stockKey.Access(true, 0, customKey); err != nil {
		return nil, err
	}

	if err := imgregion.WriteU32(img.header, be, offFlags, flags); err != nil {
		return nil, err
	}
	img.Flags = flags

	toSign, err := img.signedData()
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(toSign)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, err
	}
	if uint64(len(sig)) != img.SigSize {
		return nil, fmt.Errorf("expected=%d got=%d: %w", img.SigSize, len(sig), ErrorSignatureSize)
	}

	auth := make([]byte, img.AuthBlockSize)
	authRegion := imgregion.New("auth", auth)
	hash, err := img.field(authRegion, "hash", img.HashOffset, img.HashSize)
	if err != nil {
		return nil, err
	}
	signature, err := img.field(authRegion, "signature", img.SigOffset, img.SigSize)
	if err != nil {
		return nil, err
	}
	if _, err := hash.Access(true, 0, digest[:]); err != nil {
		return nil, err
	}
	if _, err := signature.Access(true, 0, sig); err != nil {
		return nil, err
	}
	if _, err := img.auth.Access(true, 0, auth); err != nil {
		return nil, err
	}

	return out, nil
}

// Verify checks the hash and signature against the embedded public key.
func (v *Image) Verify() error {
	if err := checkAlgorithm(&v.Header); err != nil {
		return err
	}

	modulus, err := v.PublicKeyModulus()
	if err != nil {
		return err
	}
	pub := &rsa.PublicKey{N: new(big.Int).SetBytes(modulus), E: 65537}

	toSign, err := v.signedData()
	if err != nil {
		return err
	}
	digest := sha256.Sum256(toSign)

	hash, err := v.Hash()
	if err != nil {
		return err
	}
	if !bytes.Equal(hash, digest[:]) {
		return fmt.Errorf("hash: %w", ErrorSignatureMismatch)
	}

	sig, err := v.Signature()
	if err != nil {
		return err
	}
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("%v: %w", err, ErrorSignatureMismatch)
	}
	return nil
}
