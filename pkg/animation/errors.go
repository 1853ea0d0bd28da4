package animation

import "errors"

var (
	// ErrOpen is returned when the animation file cannot be opened.
	ErrOpen = errors.New("animation: cannot open")

	// ErrNoSource is returned when the engine has no storage to read from.
	ErrNoSource = errors.New("animation: no source")
)
