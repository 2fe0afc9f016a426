package cfg

// SessionCredentials authenticates C1's WebSocket dial and C11's REST
// calls (spec §3). Invariant: when Token is set it is always used in
// preference to the cookie/XSRF pair, regardless of whether the cookie
// jar also holds a valid session.
type SessionCredentials struct {
	Token string

	Tenant   string
	User     string
	Password string
	TFACode  string

	// XSRFToken is populated after a successful tenant/oauth login, from
	// the XSRF-TOKEN cookie (spec §4.1, §6.1).
	XSRFToken string
}

// HasToken reports whether bearer-token auth should be used in preference
// to cookie+XSRF auth (spec §3 invariant).
func (c SessionCredentials) HasToken() bool {
	return c.Token != ""
}
