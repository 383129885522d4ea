package service

import "errors"

var (
	ErrInvalidImage    = errors.New("invalid image")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
	ErrEmptyFile       = errors.New("empty file")
)
