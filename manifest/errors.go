package manifest

import "errors"

var (
	ErrorSyntax    = errors.New("Malformed manifest line")
	ErrorAlgorithm = errors.New("Unknown digest length")
	ErrorMismatch  = errors.New("Checksum mismatch")
	ErrorNotListed = errors.New("File not listed in manifest")
)
