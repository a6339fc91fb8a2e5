package lkpatch

import "errors"

var (
	ErrorOutOfRange    = errors.New("Patch site outside of image")
	ErrorMismatch      = errors.New("Unexpected contents at patch site")
	ErrorKeyLength     = errors.New("Invalid AVB key length")
	ErrorNotPatchedV16 = errors.New("Image does not carry the v16 patch set")
)
