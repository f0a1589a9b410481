package service

import "strings"

// RequireUser returns the trimmed user id, or ErrUnauthenticated when there
// is none. Every cart and order operation goes through it before touching
// the store.
func RequireUser(userID string) (string, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return "", ErrUnauthenticated
	}
	return uid, nil
}
