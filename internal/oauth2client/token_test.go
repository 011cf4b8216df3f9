package oauth2client

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeToken(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name      string
		body      string
		value     string
		scopes    []string
		expiresAt time.Time
		extra     map[string]any
	}{
		{
			name:      "standard response",
			body:      `{"access_token":"abc","token_type":"Bearer","expires_in":3600,"scope":"read write"}`,
			value:     "abc",
			scopes:    []string{"read", "write"},
			expiresAt: now.Add(time.Hour),
		},
		{
			name:      "expires_in as string",
			body:      `{"access_token":"abc","token_type":"Bearer","expires_in":"60"}`,
			value:     "abc",
			expiresAt: now.Add(time.Minute),
		},
		{
			name:   "scope as array",
			body:   `{"access_token":"abc","scope":["a","b"]}`,
			value:  "abc",
			scopes: []string{"a", "b"},
		},
		{
			name:  "unknown fields go to additional information",
			body:  `{"access_token":"abc","pcc":"XY12"}`,
			value: "abc",
			extra: map[string]any{"pcc": "XY12"},
		},
		{
			name:  "expires_in beyond the duration range means no expiry",
			body:  `{"access_token":"abc","expires_in":10000000000}`,
			value: "abc",
		},
		{
			name:  "envelope stays raw",
			body:  `{"data":{"access_token":"abc"}}`,
			extra: map[string]any{"data": map[string]any{"access_token": "abc"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := decodeToken([]byte(tt.body), now)
			require.NoError(t, err)
			assert.Equal(t, tt.value, token.Value)
			assert.Equal(t, tt.scopes, token.Scopes)
			assert.Equal(t, tt.expiresAt, token.ExpiresAt)
			assert.Equal(t, tt.extra, token.AdditionalInformation)
		})
	}
}

func TestSecondsField(t *testing.T) {
	tests := []struct {
		value any
		want  int64
	}{
		{value: nil, want: 0},
		{value: 3600, want: 3600},
		{value: int32(60), want: 60},
		{value: int64(7200), want: 7200},
		{value: uint(30), want: 30},
		{value: uint64(math.MaxUint64), want: math.MaxInt64},
		{value: float64(1800), want: 1800},
		{value: json.Number("900"), want: 900},
		{value: "120", want: 120},
		{value: "", want: 0},
	}

	for _, tt := range tests {
		got, err := secondsField(tt.value)
		require.NoError(t, err, "%T(%v)", tt.value, tt.value)
		assert.Equal(t, tt.want, got, "%T(%v)", tt.value, tt.value)
	}

	_, err := secondsField(true)
	assert.Error(t, err)
	_, err = secondsField(math.Inf(1))
	assert.Error(t, err)
}

func TestTokenFromFieldsOverflowingExpiry(t *testing.T) {
	token, err := tokenFromFields(map[string]any{"access_token": "abc", "expires_in": int64(math.MaxInt64)}, fixedNow)

	require.NoError(t, err)
	assert.True(t, token.ExpiresAt.IsZero())
	assert.False(t, token.Expired())
}

func TestDecodeTokenRejectsInvalidInput(t *testing.T) {
	_, err := decodeToken([]byte(`not json`), time.Now())
	assert.Error(t, err)

	_, err = decodeToken([]byte(`{"access_token":"abc","expires_in":"soon"}`), time.Now())
	assert.Error(t, err)
}

func TestAccessTokenExpiry(t *testing.T) {
	assert.False(t, (&AccessToken{Value: "abc"}).Expired(), "token without expiry never expires")
	assert.True(t, (&AccessToken{Value: "abc", ExpiresAt: time.Now().Add(-time.Second)}).Expired())
	assert.False(t, (&AccessToken{Value: "abc", ExpiresAt: time.Now().Add(time.Hour)}).Expired())

	var missing *AccessToken
	assert.False(t, missing.Usable())
	assert.False(t, (&AccessToken{}).Usable())
	assert.True(t, (&AccessToken{Value: "abc"}).Usable())

	now := time.Now()
	token := &AccessToken{Value: "abc", ExpiresAt: now.Add(30 * time.Second)}
	assert.False(t, token.expiresWithin(now, 0))
	assert.True(t, token.expiresWithin(now, time.Minute))
}

func TestAccessTokenUnmarshalJSON(t *testing.T) {
	var token AccessToken
	require.NoError(t, json.Unmarshal([]byte(`{"access_token":"abc","token_type":"bearer","refresh_token":"r1"}`), &token))
	assert.Equal(t, "abc", token.Value)
	assert.Equal(t, "bearer", token.TokenType)
	assert.Equal(t, "r1", token.RefreshToken)
}

func TestAccessTokenOAuth2Token(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	token := &AccessToken{
		Value:                 "abc",
		TokenType:             "Bearer",
		ExpiresAt:             expiry,
		AdditionalInformation: map[string]any{"pcc": "XY12"},
	}

	converted := token.OAuth2Token()
	assert.Equal(t, "abc", converted.AccessToken)
	assert.Equal(t, expiry, converted.Expiry)
	assert.Equal(t, "XY12", converted.Extra("pcc"))

	back := fromOAuth2Token(converted)
	assert.Equal(t, "abc", back.Value)
	assert.Equal(t, expiry, back.ExpiresAt)
	assert.Nil(t, fromOAuth2Token(nil))
}
