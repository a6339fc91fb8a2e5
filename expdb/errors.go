package expdb

import "errors"

var (
	ErrorNotRegular = errors.New("expdb input is not a regular file")
)
