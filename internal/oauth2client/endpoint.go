package oauth2client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// maxTokenResponseSize bounds token endpoint response bodies.
const maxTokenResponseSize = 1 << 20

// retrieveToken posts a form-encoded token request to the resource's token
// endpoint and decodes the raw JSON response. The result is not normalized.
func retrieveToken(ctx context.Context, client *http.Client, resource ResourceDescriptor, form url.Values) (*AccessToken, error) {
	if resource.TokenURL == "" {
		return nil, fmt.Errorf("missing token URL")
	}

	inParams := resource.AuthStyle == oauth2.AuthStyleInParams
	if inParams {
		form.Set("client_id", resource.ClientID)
		if resource.ClientSecret != "" {
			form.Set("client_secret", resource.ClientSecret)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resource.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if !inParams {
		req.SetBasicAuth(url.QueryEscape(resource.ClientID), url.QueryEscape(resource.ClientSecret))
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, retrieveError(resp, body)
	}

	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType == "application/x-www-form-urlencoded" || mediaType == "text/plain" {
		return decodeFormToken(body, time.Now())
	}
	return decodeToken(body, time.Now())
}

// retrieveError builds an oauth2.RetrieveError, filling the RFC 6749 error
// fields when the body carries them.
func retrieveError(resp *http.Response, body []byte) error {
	rErr := &oauth2.RetrieveError{Response: resp, Body: body}
	var errorBody struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorURI         string `json:"error_uri"`
	}
	if json.Unmarshal(body, &errorBody) == nil {
		rErr.ErrorCode = errorBody.Error
		rErr.ErrorDescription = errorBody.ErrorDescription
		rErr.ErrorURI = errorBody.ErrorURI
	}
	return rErr
}

// decodeFormToken parses the legacy form-encoded token response format.
func decodeFormToken(body []byte, now time.Time) (*AccessToken, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	fields := make(map[string]any, len(values))
	for key := range values {
		fields[key] = values.Get(key)
	}
	return tokenFromFields(fields, now)
}
