package anim

import "errors"

var (
	ErrUndefinedTransition = errors.New("anim: undefined transition")
	ErrUnknownState        = errors.New("anim: unknown motion state")
	ErrUnknownProfile      = errors.New("anim: unknown profile")
	ErrUnknownClip         = errors.New("anim: unknown clip")
	ErrNoBinding           = errors.New("anim: character has no binding")
	ErrAlreadyBound        = errors.New("anim: character already bound")
	ErrNilTarget           = errors.New("anim: nil playback target")
)
