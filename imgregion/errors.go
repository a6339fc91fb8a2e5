package imgregion

import "errors"

var (
	ErrorOutOfRange = errors.New("Access outside of region")
	ErrorReadOnly   = errors.New("Region can't be written")
)
