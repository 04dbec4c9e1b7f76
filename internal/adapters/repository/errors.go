package repository

import "github.com/okian/lastcall/internal/domain/model"

// Sentinel kinds for store errors, shared with the domain.
var (
	ErrNotFound      = model.ErrNotFound
	ErrDuplicateName = model.ErrDuplicateName
)
