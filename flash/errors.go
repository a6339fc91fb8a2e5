package flash

import "errors"

var (
	ErrorBadStep     = errors.New("Flash step must be partition=image")
	ErrorNoSteps     = errors.New("Nothing to flash")
	ErrorUnknownTool = errors.New("Unknown flash tool")
	ErrorStepFailed  = errors.New("Flash step failed")
)
