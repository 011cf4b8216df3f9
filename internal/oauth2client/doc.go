// Package oauth2client obtains, caches and attaches OAuth2 access tokens for
// outbound HTTP clients.
//
// An Interceptor owns one protected resource. On every outbound request it
// reads the cached token from a ClientContext, acquires a new one through an
// AccessTokenProvider when the cached token is missing or expired, and writes
// "<token type> <token value>" into the configured request header.
//
// The default provider is a Chain of grant strategies (authorization code,
// implicit, resource owner password, client credentials). The first strategy
// that supports the resource's grant type and returns a token wins. The
// client-credentials strategy unwraps token responses that nest the real
// token inside a "data" envelope (see Normalize).
//
// # Usage
//
//	resource := oauth2client.ResourceDescriptor{
//		ID:           "sabre",
//		TokenURL:     "https://auth.example.com/v2/auth/token",
//		ClientID:     clientID,
//		ClientSecret: clientSecret,
//		GrantType:    oauth2client.GrantTypeClientCredentials,
//	}
//	interceptor, err := oauth2client.NewInterceptor(oauth2client.NewClientContext(), resource)
//	if err != nil {
//		return err
//	}
//	client := &http.Client{Transport: oauth2client.NewTransport(interceptor, nil)}
//
// # Errors
//
// Acquisition failures are reported as *AcquisitionError, interactive flows
// that need the user as *RedirectRequiredError, and providers that break the
// token contract as *ContractViolationError. Use errors.As to tell them apart.
//
// # Concurrency
//
// Interceptor is safe for concurrent use. Concurrent callers that find an
// expired token share a single acquisition per resource.
package oauth2client
