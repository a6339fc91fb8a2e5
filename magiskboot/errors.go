package magiskboot

import "errors"

var (
	ErrorNotFound      = errors.New("magiskboot not found")
	ErrorNotExecutable = errors.New("magiskboot is not an executable file")
)
