// Package vbmeta parses AVB vbmeta images and re-signs them with a custom
// key.
package vbmeta

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/mt8781-root/vbtools/imgregion"
)

const (
	Magic      = "AVB0"
	HeaderSize = 0x100

	/* AVB_ALGORITHM_TYPE_SHA256_RSA2048 */
	AlgorithmSHA256RSA2048 = 1

	FlagHashtreeDisabled     = 1 << 0
	FlagVerificationDisabled = 1 << 1

	offFlags = 0x78

	/* LK wants the raw modulus that follows the 8 byte AvbRSAPublicKeyHeader */
	keyHeaderSize = 8
	KeyLength     = 256
)

var be = binary.BigEndian

type Header struct {
	RequiredMajor         uint32
	RequiredMinor         uint32
	AuthBlockSize         uint64
	AuxBlockSize          uint64
	AlgorithmType         uint32
	HashOffset            uint64
	HashSize              uint64
	SigOffset             uint64
	SigSize               uint64
	PubkeyOffset          uint64
	PubkeySize            uint64
	PkmdOffset            uint64
	PkmdSize              uint64
	DescOffset            uint64
	DescSize              uint64
	RollbackIndex         uint64
	Flags                 uint32
	RollbackIndexLocation uint32
}

func ParseHeader(hdr []byte) (*Header, error) {
	if len(hdr) < HeaderSize {
		return nil, fmt.Errorf("header: %w", ErrorTruncated)
	}
	if string(hdr[:4]) != Magic {
		return nil, ErrorBadMagic
	}

	return &Header{
		RequiredMajor:         be.Uint32(hdr[0x04:]),
		RequiredMinor:         be.Uint32(hdr[0x08:]),
		AuthBlockSize:         be.Uint64(hdr[0x0C:]),
		AuxBlockSize:          be.Uint64(hdr[0x14:]),
		AlgorithmType:         be.Uint32(hdr[0x1C:]),
		HashOffset:            be.Uint64(hdr[0x20:]),
		HashSize:              be.Uint64(hdr[0x28:]),
		SigOffset:             be.Uint64(hdr[0x30:]),
		SigSize:               be.Uint64(hdr[0x38:]),
		PubkeyOffset:          be.Uint64(hdr[0x40:]),
		PubkeySize:            be.Uint64(hdr[0x48:]),
		PkmdOffset:            be.Uint64(hdr[0x50:]),
		PkmdSize:              be.Uint64(hdr[0x58:]),
		DescOffset:            be.Uint64(hdr[0x60:]),
		DescSize:              be.Uint64(hdr[0x68:]),
		RollbackIndex:         be.Uint64(hdr[0x70:]),
		Flags:                 be.Uint32(hdr[offFlags:]),
		RollbackIndexLocation: be.Uint32(hdr[0x7C:]),
	}, nil
}

func FlagsString(flags uint32) string {
	var names []string
	if flags&FlagHashtreeDisabled != 0 {
		names = append(names, "HASHTREE_DISABLED")
	}
	if flags&FlagVerificationDisabled != 0 {
		names = append(names, "VERIFICATION_DISABLED")
	}
	if rest := flags &^ (FlagHashtreeDisabled | FlagVerificationDisabled); rest != 0 {
		names = append(names, fmt.Sprintf("0x%x", rest))
	}
	if len(names) == 0 {
		return "0"
	}
	return strings.Join(names, "|")
}

// Image is a vbmeta blob split into its header, authentication and
// auxiliary blocks.
type Image struct {
	Header

	image  imgregion.Region
	header imgregion.Region
	auth   imgregion.Region
	aux    imgregion.Region
}

func Parse(data []byte) (*Image, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	img := &Image{Header: *h, image: imgregion.New("vbmeta", data)}

	authEnd := HeaderSize + h.AuthBlockSize
	if authEnd < h.AuthBlockSize || authEnd+h.AuxBlockSize < authEnd || authEnd+h.AuxBlockSize > uint64(len(data)) {
		return nil, ErrorTruncated
	}

	if img.header, err = imgregion.Partial("header", img.image, 0, HeaderSize); err != nil {
		return nil, err
	}
	if img.auth, err = imgregion.Partial("auth", img.image, HeaderSize, int(h.AuthBlockSize)); err != nil {
		return nil, err
	}
	if img.aux, err = imgregion.Partial("aux", img.image, int(authEnd), int(h.AuxBlockSize)); err != nil {
		return nil, err
	}
	return img, nil
}

func (v *Image) field(parent imgregion.Region, name string, off, size uint64) (imgregion.Region, error) {
	if off > uint64(parent.GetLength()) || size > uint64(parent.GetLength())-off {
		return nil, fmt.Errorf("%s range 0x%x+0x%x out of %s bounds: %w", name, off, size, parent.GetName(), ErrorTruncated)
	}
	return imgregion.Partial(name, parent, int(off), int(size))
}

// PublicKey returns the AvbRSAPublicKeyHeader-prefixed key blob.
func (v *Image) PublicKey() ([]byte, error) {
	if v.PubkeySize == 0 {
		return nil, ErrorNoPublicKey
	}
	r, err := v.field(v.aux, "public key", v.PubkeyOffset, v.PubkeySize)
	if err != nil {
		return nil, err
	}
	return imgregion.Bytes(r)
}

// PublicKeyModulus returns the raw RSA-2048 modulus, the form LK embeds.
func (v *Image) PublicKeyModulus() ([]byte, error) {
	blob, err := v.PublicKey()
	if err != nil {
		return nil, err
	}
	if len(blob) < keyHeaderSize+KeyLength {
		return nil, fmt.Errorf("public key blob too small: %d: %w", len(blob), ErrorNoPublicKey)
	}
	return blob[keyHeaderSize : keyHeaderSize+KeyLength], nil
}

func (v *Image) signedData() ([]byte, error) {
	hdr, err := imgregion.Bytes(v.header)
	if err != nil {
		return nil, err
	}
	aux, err := imgregion.Bytes(v.aux)
	if err != nil {
		return nil, err
	}
	return append(hdr, aux...), nil
}

func (v *Image) Hash() ([]byte, error) {
	r, err := v.field(v.auth, "hash", v.HashOffset, v.HashSize)
	if err != nil {
		return nil, err
	}
	return imgregion.Bytes(r)
}

func (v *Image) Signature() ([]byte, error) {
	r, err := v.field(v.auth, "signature", v.SigOffset, v.SigSize)
	if err != nil {
		return nil, err
	}
	return imgregion.Bytes(r)
}

func (v *Image) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "version         %d.%d\n", v.RequiredMajor, v.RequiredMinor)
	fmt.Fprintf(&b, "algorithm       %d\n", v.AlgorithmType)
	fmt.Fprintf(&b, "auth_block      0x%x\n", v.AuthBlockSize)
	fmt.Fprintf(&b, "aux_block       0x%x\n", v.AuxBlockSize)
	fmt.Fprintf(&b, "public_key      0x%x+0x%x\n", v.PubkeyOffset, v.PubkeySize)
	fmt.Fprintf(&b, "descriptors     0x%x+0x%x\n", v.DescOffset, v.DescSize)
	fmt.Fprintf(&b, "rollback_index  %d (location %d)\n", v.RollbackIndex, v.RollbackIndexLocation)
	fmt.Fprintf(&b, "flags           %d (%s)\n", v.Flags, FlagsString(v.Flags))
	return b.String()
}
