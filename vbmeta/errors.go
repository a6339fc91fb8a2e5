package vbmeta

import "errors"

var (
	ErrorBadMagic           = errors.New("Invalid vbmeta magic")
	ErrorTruncated          = errors.New("vbmeta image is truncated")
	ErrorUnsupportedAlg     = errors.New("Unsupported vbmeta algorithm")
	ErrorNoPublicKey        = errors.New("Missing public key block in vbmeta")
	ErrorKeySizeMismatch    = errors.New("Public key size mismatch")
	ErrorKeyMismatch        = errors.New("Signing key does not match the custom vbmeta public key")
	ErrorSignatureSize      = errors.New("Signature size mismatch")
	ErrorSignatureMismatch  = errors.New("vbmeta signature does not verify")
	ErrorUnsupportedKeyType = errors.New("Unsupported private key type")
)
