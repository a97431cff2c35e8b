// Package common provides shared HTTP utility functions for API handlers.
package common

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
)

// MaxParamLength bounds a decoded path parameter
const MaxParamLength = 2048

// PathParam returns the chi URL parameter name unescaped once. App IDs are URLs and
// are sent path-escaped, so "/" inside an ID arrives as %2F.
func PathParam(r *http.Request, name string) (string, error) {
	value, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", name)
	}

	switch {
	case strings.TrimSpace(value) == "":
		return "", fmt.Errorf("%s cannot be empty", name)
	case strings.ContainsFunc(value, unicode.IsSpace):
		return "", fmt.Errorf("%s cannot contain whitespace", name)
	case len(value) > MaxParamLength:
		return "", fmt.Errorf("%s must not exceed %d bytes", name, MaxParamLength)
	}
	return value, nil
}
