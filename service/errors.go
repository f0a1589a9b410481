package service

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when a cart or order operation has no user.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("not found")
	// ErrNotInCart is returned by Purchase when the product is not in the cart.
	ErrNotInCart = errors.New("product not in cart")
	// ErrBackendUnavailable covers store failures and documents that do not
	// have the expected shape.
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrInvalidInput       = errors.New("invalid input")
)

func backendErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, op, err)
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
