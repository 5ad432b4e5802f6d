package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnauthorized matches every authorization failure from the API. The
// caller clears the session token and sends the user back to login.
var ErrUnauthorized = errors.New("api: unauthorized")

// AuthorizationError is returned for a 401 response.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string {
	if e.Message == "" {
		return ErrUnauthorized.Error()
	}
	return fmt.Sprintf("%s: %s", ErrUnauthorized, e.Message)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrUnauthorized }

// ValidationError carries per-field messages from an {error:"validation"}
// response.
type ValidationError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("validation failed: %s (%s)", e.Message, strings.Join(keys, ", "))
}

// Field returns the message for one field, or "".
func (e *ValidationError) Field(name string) string {
	return e.Fields[name]
}

// ServerError is any other failed call. Status is 0 when the request never
// got a response.
type ServerError struct {
	Status  int
	Message string
	Err     error
}

func (e *ServerError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("api request failed: %v", e.Err)
	case e.Message != "":
		return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
	default:
		return fmt.Sprintf("api error (%d)", e.Status)
	}
}

func (e *ServerError) Unwrap() error { return e.Err }

// errorBody is the error envelope of the API. data values are usually
// strings but some endpoints send a list of messages per field.
type errorBody struct {
	Error   string                     `json:"error"`
	Message string                     `json:"message"`
	Data    map[string]json.RawMessage `json:"data"`
}

func (b errorBody) fields() map[string]string {
	out := make(map[string]string, len(b.Data))
	for k, raw := range b.Data {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out[k] = s
			continue
		}
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil {
			out[k] = strings.Join(list, ", ")
			continue
		}
		out[k] = strings.Trim(string(raw), `"`)
	}
	return out
}

// classify maps a non-2xx response to the error taxonomy.
func classify(status int, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	if status == 401 {
		return &AuthorizationError{Message: eb.Message}
	}
	if eb.Error == "validation" {
		return &ValidationError{Status: status, Message: eb.Message, Fields: eb.fields()}
	}
	msg := eb.Message
	if msg == "" && eb.Error != "" {
		msg = eb.Error
	}
	return &ServerError{Status: status, Message: msg}
}

// IsUnauthorized reports whether err is an authorization failure.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
