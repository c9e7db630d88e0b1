// Package evalctx defines the evaluation context supplied by the hosting
// application on every flag or experiment evaluation. The core never owns or
// mutates a context; it only reads from it.
package evalctx

import (
	"strings"
	"time"
)

// DeviceType enumerates the session device classes used in targeting.
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
)

// User describes the authenticated (or anonymous) user behind an evaluation.
// Extra carries open-ended attributes reachable via dotted-path lookup.
type User struct {
	ID      string         `json:"id,omitempty"`
	Role    string         `json:"role,omitempty"`
	Segment string         `json:"segment,omitempty"`
	Country string         `json:"country,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// Session describes the current client session.
type Session struct {
	ID         string         `json:"id,omitempty"`
	DeviceType DeviceType     `json:"deviceType,omitempty"`
	Browser    string         `json:"browser,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Context is the full evaluation context. Environment is explicit; the core
// has no ambient-environment dependency. CurrentDate, when zero, means "now"
// to the evaluators.
type Context struct {
	User             *User          `json:"user,omitempty"`
	Session          *Session       `json:"session,omitempty"`
	Environment      string         `json:"environment,omitempty"`
	CurrentDate      time.Time      `json:"currentDate,omitempty"`
	CustomProperties map[string]any `json:"customProperties,omitempty"`
}

// UserID returns the user id or "" when no user block is present.
func (c *Context) UserID() string {
	if c == nil || c.User == nil {
		return ""
	}
	return c.User.ID
}

// SessionID returns the session id or "" when no session block is present.
func (c *Context) SessionID() string {
	if c == nil || c.Session == nil {
		return ""
	}
	return c.Session.ID
}

// Identity returns the stable identity token used for hashing: user id,
// falling back to session id, falling back to the literal "anonymous".
// All anonymous callers share one bucket outcome per flag or experiment;
// that is an accepted approximation, not an error.
func (c *Context) Identity() string {
	if id := c.UserID(); id != "" {
		return id
	}
	if id := c.SessionID(); id != "" {
		return id
	}
	return "anonymous"
}

// Value resolves a dotted path into the context, for example "user.role",
// "session.deviceType", "customProperties.cartValue", or a bare key looked
// up in CustomProperties. It returns (nil, false) when any path segment is
// missing.
func (c *Context) Value(path string) (any, bool) {
	if c == nil || path == "" {
		return nil, false
	}

	head, rest, _ := strings.Cut(path, ".")
	switch head {
	case "user":
		return userValue(c.User, rest)
	case "session":
		return sessionValue(c.Session, rest)
	case "environment":
		if rest != "" || c.Environment == "" {
			return nil, false
		}
		return c.Environment, true
	case "customProperties", "custom":
		return mapValue(c.CustomProperties, rest)
	}
	// Bare keys (the common case for custom conditions) resolve against the
	// custom properties bag.
	return mapValue(c.CustomProperties, path)
}

func userValue(u *User, path string) (any, bool) {
	if u == nil || path == "" {
		return nil, false
	}
	switch path {
	case "id":
		return nonEmpty(u.ID)
	case "role":
		return nonEmpty(u.Role)
	case "segment":
		return nonEmpty(u.Segment)
	case "country":
		return nonEmpty(u.Country)
	}
	return mapValue(u.Extra, path)
}

func sessionValue(s *Session, path string) (any, bool) {
	if s == nil || path == "" {
		return nil, false
	}
	switch path {
	case "id":
		return nonEmpty(s.ID)
	case "deviceType":
		return nonEmpty(string(s.DeviceType))
	case "browser":
		return nonEmpty(s.Browser)
	}
	return mapValue(s.Extra, path)
}

func mapValue(m map[string]any, path string) (any, bool) {
	if m == nil || path == "" {
		return nil, false
	}
	head, rest, more := strings.Cut(path, ".")
	v, ok := m[head]
	if !ok {
		return nil, false
	}
	if !more {
		return v, true
	}
	nested, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return mapValue(nested, rest)
}

func nonEmpty(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	return s, true
}

// Flatten renders the context as a flat attribute map for expression-based
// targeting (JSON Logic). Nested blocks appear under their block name.
func (c *Context) Flatten() map[string]any {
	if c == nil {
		return map[string]any{}
	}
	out := make(map[string]any, 4+len(c.CustomProperties))
	if c.User != nil {
		user := map[string]any{}
		if c.User.ID != "" {
			user["id"] = c.User.ID
		}
		if c.User.Role != "" {
			user["role"] = c.User.Role
		}
		if c.User.Segment != "" {
			user["segment"] = c.User.Segment
		}
		if c.User.Country != "" {
			user["country"] = c.User.Country
		}
		for k, v := range c.User.Extra {
			user[k] = v
		}
		out["user"] = user
	}
	if c.Session != nil {
		session := map[string]any{}
		if c.Session.ID != "" {
			session["id"] = c.Session.ID
		}
		if c.Session.DeviceType != "" {
			session["deviceType"] = string(c.Session.DeviceType)
		}
		if c.Session.Browser != "" {
			session["browser"] = c.Session.Browser
		}
		for k, v := range c.Session.Extra {
			session[k] = v
		}
		out["session"] = session
	}
	if c.Environment != "" {
		out["environment"] = c.Environment
	}
	for k, v := range c.CustomProperties {
		out[k] = v
	}
	return out
}
