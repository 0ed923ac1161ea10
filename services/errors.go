package services

import "errors"

// Code is the machine-readable outcome of a claim, validation or redemption.
type Code string

const (
	CodeOK               Code = "OK"
	CodeNotFound         Code = "NOT_FOUND"
	CodeAlreadyCollected Code = "ALREADY_COLLECTED"
	CodeExpired          Code = "EXPIRED"
	CodeInactive         Code = "INACTIVE"
	CodeExhausted        Code = "EXHAUSTED"
	CodeSelfReferral     Code = "SELF_REFERRAL"
	CodeDuplicate        Code = "DUPLICATE"
)

var (
	ErrUnknownAction           = errors.New("unknown experience action")
	ErrReservedAction          = errors.New("experience action is granted by its own pipeline")
	ErrCodeGenerationExhausted = errors.New("referral code generation exhausted")
	ErrInsufficientFunds       = errors.New("insufficient bones")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrInvalidLocation         = errors.New("invalid coordinates")
)
