package oauth2client

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Standard token endpoint response fields (RFC 6749 section 5.1).
const (
	fieldAccessToken  = "access_token"
	fieldTokenType    = "token_type"
	fieldRefreshToken = "refresh_token"
	fieldExpiresIn    = "expires_in"
	fieldScope        = "scope"
)

// Field names of a token that was serialized by its logical names rather
// than the wire format. Only consulted when the standard field is missing.
const (
	aliasValue     = "value"
	aliasTokenType = "tokenType"
)

// maxExpiresIn is the largest expires_in that fits a time.Duration.
const maxExpiresIn = int64(math.MaxInt64 / int64(time.Second))

// AccessToken is a token as returned by a token endpoint.
//
// A token whose Value is empty is not usable. Such a token may still carry the
// real payload inside AdditionalInformation; see Normalize.
type AccessToken struct {
	Value        string
	TokenType    string
	RefreshToken string
	Scopes       []string

	// ExpiresAt is zero when the server did not send expires_in.
	ExpiresAt time.Time

	// AdditionalInformation holds every response field that is not a
	// standard token field.
	AdditionalInformation map[string]any
}

// Expired reports whether the token's expiry has passed.
func (t *AccessToken) Expired() bool {
	return t.expiresWithin(time.Now(), 0)
}

// Usable reports whether the token has a value and has not expired.
func (t *AccessToken) Usable() bool {
	return t != nil && t.Value != "" && !t.Expired()
}

// expiresWithin reports whether the token expires before now+leeway.
// Tokens without an expiry never expire.
func (t *AccessToken) expiresWithin(now time.Time, leeway time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(t.ExpiresAt)
}

// ExpiresIn returns the remaining lifetime in whole seconds, or 0 when the
// token has no expiry or has already expired.
func (t *AccessToken) ExpiresIn() int64 {
	if t.ExpiresAt.IsZero() {
		return 0
	}
	remaining := time.Until(t.ExpiresAt)
	if remaining <= 0 {
		return 0
	}
	return int64(remaining / time.Second)
}

// OAuth2Token converts the token for use with golang.org/x/oauth2.
func (t *AccessToken) OAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  t.Value,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
	if len(t.AdditionalInformation) > 0 {
		token = token.WithExtra(t.AdditionalInformation)
	}
	return token
}

// fromOAuth2Token converts a golang.org/x/oauth2 token. The oauth2 package
// only exposes extra fields by name, so the scope is the only one carried over.
func fromOAuth2Token(token *oauth2.Token) *AccessToken {
	if token == nil {
		return nil
	}
	converted := &AccessToken{
		Value:        token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if scope, ok := token.Extra(fieldScope).(string); ok {
		converted.Scopes = strings.Fields(scope)
	}
	return converted
}

// MarshalJSON encodes the token in the standard token endpoint format.
func (t AccessToken) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(t.AdditionalInformation)+5)
	for key, value := range t.AdditionalInformation {
		fields[key] = value
	}
	if t.Value != "" {
		fields[fieldAccessToken] = t.Value
	}
	if t.TokenType != "" {
		fields[fieldTokenType] = t.TokenType
	}
	if t.RefreshToken != "" {
		fields[fieldRefreshToken] = t.RefreshToken
	}
	if len(t.Scopes) > 0 {
		fields[fieldScope] = strings.Join(t.Scopes, " ")
	}
	if !t.ExpiresAt.IsZero() {
		fields[fieldExpiresIn] = t.ExpiresIn()
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes a token endpoint response. expires_in is resolved
// against the current time.
func (t *AccessToken) UnmarshalJSON(data []byte) error {
	decoded, err := decodeToken(data, time.Now())
	if err != nil {
		return err
	}
	*t = *decoded
	return nil
}

// decodeToken parses a token endpoint response body. A malformed expires_in
// fails the decode.
func decodeToken(data []byte, now time.Time) (*AccessToken, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	token, err := tokenFromFields(fields, now)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// tokenFromFields always returns the token it could build. A malformed
// expires_in is reported as an error and kept in AdditionalInformation; the
// token then has no expiry.
func tokenFromFields(fields map[string]any, now time.Time) (*AccessToken, error) {
	token := &AccessToken{}
	var expiryErr error
	extra := func(key string, value any) {
		if token.AdditionalInformation == nil {
			token.AdditionalInformation = make(map[string]any)
		}
		token.AdditionalInformation[key] = value
	}
	for key, value := range fields {
		switch key {
		case fieldAccessToken:
			token.Value = stringField(value)
		case fieldTokenType:
			token.TokenType = stringField(value)
		case fieldRefreshToken:
			token.RefreshToken = stringField(value)
		case fieldScope:
			token.Scopes = scopesField(value)
		case fieldExpiresIn:
			seconds, err := secondsField(value)
			if err != nil {
				expiryErr = fmt.Errorf("invalid %s: %w", fieldExpiresIn, err)
				extra(key, value)
				continue
			}
			// Lifetimes beyond what a Duration holds are treated as no expiry.
			if seconds > 0 && seconds <= maxExpiresIn {
				token.ExpiresAt = now.Add(time.Duration(seconds) * time.Second)
			}
		default:
			extra(key, value)
		}
	}

	if _, ok := fields[fieldAccessToken]; !ok {
		token.Value = takeAlias(token, aliasValue)
	}
	if _, ok := fields[fieldTokenType]; !ok {
		token.TokenType = takeAlias(token, aliasTokenType)
	}
	return token, expiryErr
}

// takeAlias moves a string alias field out of AdditionalInformation.
func takeAlias(token *AccessToken, key string) string {
	s, ok := token.AdditionalInformation[key].(string)
	if !ok {
		return ""
	}
	delete(token.AdditionalInformation, key)
	if len(token.AdditionalInformation) == 0 {
		token.AdditionalInformation = nil
	}
	return s
}

func stringField(value any) string {
	s, _ := value.(string)
	return s
}

func scopesField(value any) []string {
	switch v := value.(type) {
	case string:
		return strings.Fields(v)
	case []any:
		scopes := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				scopes = append(scopes, s)
			}
		}
		return scopes
	default:
		return nil
	}
}

// secondsField accepts numeric and string encodings; some servers send
// expires_in as a quoted number and tokens built in Go carry native integers.
func secondsField(value any) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return floatSeconds(v)
	case float32:
		return floatSeconds(float64(v))
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return uintSeconds(uint64(v)), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return uintSeconds(v), nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, err
		}
		return floatSeconds(f)
	case string:
		if v == "" {
			return 0, nil
		}
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", value)
	}
}

func floatSeconds(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number: %v", f)
	}
	if f >= math.MaxInt64 {
		return math.MaxInt64, nil
	}
	return int64(f), nil
}

func uintSeconds(u uint64) int64 {
	if u > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(u)
}
