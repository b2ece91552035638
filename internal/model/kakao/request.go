package kakao

import (
	"encoding/json"
	"strings"
)

// UnknownUserID is used when the platform omits userRequest.user.id.
const UnknownUserID = "unknown"

// Request 技能回调请求，仅解析用到的字段。
type Request struct {
	UserRequest UserRequest `json:"userRequest"`
}

// UserRequest carries the end user's utterance.
type UserRequest struct {
	Utterance   *string `json:"utterance,omitempty"`
	User        *User   `json:"user,omitempty"`
	CallbackURL *string `json:"callbackUrl,omitempty"`
}

// User identifies the platform user.
type User struct {
	ID *string `json:"id,omitempty"`
}

// DecodeRequest parses a webhook body. Invalid or empty JSON yields the zero
// Request together with the decode error, so callers can treat it as an
// empty mapping.
func DecodeRequest(body []byte) (Request, error) {
	var req Request
	if len(strings.TrimSpace(string(body))) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Utterance returns the trimmed utterance, empty when absent.
func (r Request) Utterance() string {
	if r.UserRequest.Utterance == nil {
		return ""
	}
	return strings.TrimSpace(*r.UserRequest.Utterance)
}

// UserID returns the user id or UnknownUserID.
func (r Request) UserID() string {
	if r.UserRequest.User == nil || r.UserRequest.User.ID == nil {
		return UnknownUserID
	}
	if id := strings.TrimSpace(*r.UserRequest.User.ID); id != "" {
		return id
	}
	return UnknownUserID
}

// CallbackURL returns the platform callback URL, empty when absent.
func (r Request) CallbackURL() string {
	if r.UserRequest.CallbackURL == nil {
		return ""
	}
	return strings.TrimSpace(*r.UserRequest.CallbackURL)
}
