package stack

import "errors"

var (
	// ErrIncongruentImage means a slice's geometry disagrees with the stack.
	ErrIncongruentImage = errors.New("incongruent image")

	// ErrImageCollision means a slice would occupy an already filled grid position.
	ErrImageCollision = errors.New("image collision")

	// ErrOrdinateNotFound means a value is missing from a configured absolute ordering.
	ErrOrdinateNotFound = errors.New("ordinate not found")

	// ErrInvalidStack means the accepted slices do not form a complete grid.
	ErrInvalidStack = errors.New("invalid stack")
)
