package camera

import "errors"

var (
	ErrInvalidTuning = errors.New("camera: invalid tuning")
	ErrNoView        = errors.New("camera: character has no view")
	ErrViewExists    = errors.New("camera: character already has a view")
)
