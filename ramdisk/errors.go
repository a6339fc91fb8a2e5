package ramdisk

import "errors"

var (
	ErrorUnknownFormat = errors.New("Unknown ramdisk compression")
	ErrorNotFound      = errors.New("Entry not found in archive")
	ErrorNotRegular    = errors.New("Entry is not a regular file")
)
