package exchange

import "errors"

var (
	ErrZeroAddress          = errors.New("token address is the zero address")
	ErrTokenAlreadyApproved = errors.New("token already approved")
	ErrTokenNotApproved     = errors.New("token not approved")
	ErrIdenticalTokens      = errors.New("pair tokens must be distinct")
	ErrPairExists           = errors.New("pair already exists")
	ErrPairNotFound         = errors.New("pair not found")
	ErrTokenRemoved         = errors.New("token removed from registry")
)

// JSON-RPC application error codes for the registry's sentinel errors.
const (
	CodeZeroAddress          = 3001
	CodeTokenAlreadyApproved = 3002
	CodeTokenNotApproved     = 3003
	CodeIdenticalTokens      = 3004
	CodePairExists           = 3005
	CodePairNotFound         = 3006
	CodeTokenRemoved         = 3007
)

var errorCodes = []struct {
	err  error
	code int
}{
	{ErrZeroAddress, CodeZeroAddress},
	{ErrTokenAlreadyApproved, CodeTokenAlreadyApproved},
	{ErrTokenNotApproved, CodeTokenNotApproved},
	{ErrIdenticalTokens, CodeIdenticalTokens},
	{ErrPairExists, CodePairExists},
	{ErrPairNotFound, CodePairNotFound},
	{ErrTokenRemoved, CodeTokenRemoved},
}

// ErrorCode returns the wire code for a registry error, or 0 if err does not wrap one.
func ErrorCode(err error) int {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return 0
}

// ErrorFromCode returns the sentinel error for a wire code, or nil if the code is unknown.
func ErrorFromCode(code int) error {
	for _, e := range errorCodes {
		if e.code == code {
			return e.err
		}
	}
	return nil
}
