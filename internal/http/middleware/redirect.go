package middleware

import (
	"net/url"
	"strings"
)

// SafeReturnPath reduces a return target to a same-origin relative path.
// Anything that could leave the site falls back to "/".
func SafeReturnPath(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return "/"
	}
	// Protocol-relative and backslash tricks that browsers resolve to another host
	if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") || strings.ContainsAny(raw, "\r\n\t") {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "/"
	}
	out := u.EscapedPath()
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	return out
}

// LoginURL builds the login route with the return target as the redirect parameter
func LoginURL(loginPath, target string) string {
	target = SafeReturnPath(target)
	if target == "/" {
		return loginPath
	}
	return loginPath + "?redirect=" + url.QueryEscape(target)
}
