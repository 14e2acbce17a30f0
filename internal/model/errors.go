package model

import (
	"errors"

	"github.com/rotisserie/eris"
)

// Sentinel error kinds. Callers wrap them with eris and test with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation error")
	ErrResourceContention = errors.New("resource busy")
)

// Validationf returns an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return eris.Wrapf(ErrValidation, format, args...)
}

// NotFoundf returns an error wrapping ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return eris.Wrapf(ErrNotFound, format, args...)
}
