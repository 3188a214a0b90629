// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrNoTemplate indicates no workflow template matches the requested
// intent type. This is the one error the engine surfaces to callers of
// CreateWorkflow: a workflow cannot be constructed without a template.
var ErrNoTemplate = errors.New("no workflow template for intent type")

// ErrValidation indicates the request payload failed domain validation.
var ErrValidation = errors.New("validation failed")
