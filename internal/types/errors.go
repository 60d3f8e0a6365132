package types

import "errors"

var (
	ErrInvalidRequest     = errors.New("invalid analysis request")
	ErrInsufficientQuorum = errors.New("insufficient quorum")
	ErrRiskRejected       = errors.New("risk gate rejected every revision")
	ErrGlobalTimeout      = errors.New("global wall-clock budget exceeded")
)
