package oauth2client

import (
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrNoTokenRequest is wrapped by AcquisitionError when the client context
	// holds no pending token request.
	ErrNoTokenRequest = errors.New("no access token request in client context")

	// ErrNoApplicableStrategy is wrapped by AcquisitionError when no grant
	// strategy supports the resource's grant type.
	ErrNoApplicableStrategy = errors.New("no grant strategy supports the resource")

	// ErrMissingTokenValue is wrapped by AcquisitionError when a strategy
	// returned a token that has no value after normalization.
	ErrMissingTokenValue = errors.New("token response carried no access token")
)

// RedirectRequiredError reports that an interactive grant needs the user to
// visit RedirectURI before a token can be obtained.
type RedirectRequiredError struct {
	RedirectURI string

	// RequestParams are the query parameters the redirect carries.
	RequestParams url.Values

	// StateKey correlates the redirect with the request that triggered it.
	StateKey string

	// StateToPreserve is stored in the client context under StateKey and
	// handed back to the grant strategy when the flow resumes.
	StateToPreserve any
}

func (e *RedirectRequiredError) Error() string {
	return fmt.Sprintf("oauth2client: user redirect required to %s", e.RedirectURI)
}

// AcquisitionError reports that no usable token could be obtained for a
// resource. It is not retried; retry policy belongs to the caller.
type AcquisitionError struct {
	ResourceID string
	Reason     string
	Err        error
}

func (e *AcquisitionError) Error() string {
	msg := fmt.Sprintf("oauth2client: access token acquisition failed for resource '%s'", e.ResourceID)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// ContractViolationError reports that an AccessTokenProvider returned without
// an error but also without a usable token. It indicates a broken provider,
// not a runtime condition.
type ContractViolationError struct {
	ResourceID string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("oauth2client: access token provider returned a null token for resource '%s', which is illegal according to the contract", e.ResourceID)
}
