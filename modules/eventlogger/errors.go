package eventlogger

import (
	"errors"
)

var (
	ErrEventBufferFull         = errors.New("eventlogger: event buffer is full")
	ErrUnknownOutputTargetType = errors.New("eventlogger: unknown output target type")
	ErrFileNotOpen             = errors.New("eventlogger: file not open")
)
