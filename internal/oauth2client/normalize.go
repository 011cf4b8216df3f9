package oauth2client

import (
	"encoding/json"
	"time"
)

// envelopeField is the response field some authorization servers nest the
// real token payload under.
const envelopeField = "data"

// Normalize returns the conformant form of a raw token.
//
// A token that already has a value is returned unchanged. A token without a
// value whose AdditionalInformation holds an envelope field is replaced by the
// token decoded from that field, repeatedly, until a value appears or no
// envelope is left. Anything else is returned unchanged; callers must treat a
// result without a value as an acquisition failure.
//
// The input is never modified.
func Normalize(token *AccessToken) *AccessToken {
	for token != nil && token.Value == "" {
		payload, ok := token.AdditionalInformation[envelopeField]
		if !ok {
			break
		}
		inner, ok := unwrapEnvelope(payload)
		if !ok {
			break
		}
		token = inner
	}
	return token
}

// unwrapEnvelope reinterprets an envelope payload as a token.
func unwrapEnvelope(payload any) (*AccessToken, bool) {
	switch v := payload.(type) {
	case nil:
		return nil, false
	case map[string]any:
		// A malformed expires_in does not invalidate the envelope.
		token, _ := tokenFromFields(v, time.Now())
		return token, true
	case *AccessToken:
		return v, v != nil
	case AccessToken:
		return &v, true
	case json.RawMessage:
		return unwrapJSON(v)
	default:
		// Round-trip through JSON so any JSON-shaped value can be converted.
		data, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		return unwrapJSON(data)
	}
}

func unwrapJSON(data []byte) (*AccessToken, bool) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, false
	}
	token, _ := tokenFromFields(fields, time.Now())
	return token, true
}
