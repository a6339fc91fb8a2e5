package bootimg

import "errors"

var (
	ErrorBadMagic           = errors.New("Not a vendor_boot image (missing VNDRBOOT magic)")
	ErrorUnsupportedVersion = errors.New("Unsupported vendor_boot header version")
	ErrorTruncated          = errors.New("Image is truncated")
	ErrorImageGrew          = errors.New("Patched image is larger than the original")
	ErrorMultipleRamdisks   = errors.New("Image has more than one vendor ramdisk")
)
