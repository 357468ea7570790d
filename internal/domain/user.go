// Package domain contains entity without logic, just meta-data
package domain

import (
	"encoding/json"
	"errors"
)

const (
	MaxUserIDLen  = 64
	MaxGroupIDLen = 64
	MaxNameLen    = 64
)

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
	ErrGroupIDEmpty  = errors.New("group id empty")
	ErrGroupTooLong  = errors.New("group id too long")
	ErrNameTooLong   = errors.New("name too long")
)

type (
	UserID       string
	GroupID      string
	ConnectionID string
)

// UserData is an opaque client-supplied blob. The server stores and echoes it.
type UserData = json.RawMessage

func (u UserID) Validate() error {
	if len(u) == 0 {
		return ErrUserIDEmpty
	}
	if len(u) > MaxUserIDLen {
		return ErrUserIDTooLong
	}
	return nil
}

func (g GroupID) Validate() error {
	if len(g) == 0 {
		return ErrGroupIDEmpty
	}
	if len(g) > MaxGroupIDLen {
		return ErrGroupTooLong
	}
	return nil
}
