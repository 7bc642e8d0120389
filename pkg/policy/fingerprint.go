package policy

import "encoding/json"

// routingKey extracts the bytes to hash for consistent-hash routing
// (cache-aware routing matches on the raw request text instead), in the
// priority order spec.md §4.2 mandates:
// session_params.session_id, then top-level user, then the entire
// request text. requestText is the raw (possibly malformed, possibly
// empty, possibly non-JSON) request body; any parse failure falls
// through to using requestText itself, matching
// original_source/tests/test_consistent_hash_policy.rs's
// test_fallback_without_session_or_user and
// test_different_request_formats.
func routingKey(requestText string) string {
	if requestText == "" {
		return requestText
	}

	var body struct {
		SessionParams *struct {
			SessionID string `json:"session_id"`
		} `json:"session_params"`
		User string `json:"user"`
	}

	if err := json.Unmarshal([]byte(requestText), &body); err == nil {
		if body.SessionParams != nil && body.SessionParams.SessionID != "" {
			return body.SessionParams.SessionID
		}
		if body.User != "" {
			return body.User
		}
	}

	return requestText
}
