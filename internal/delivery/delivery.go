// Package delivery hands pending update requests to the packaging service and reports
// the results back.
package delivery

import (
	"context"
	"fmt"
	"strings"
)

//go:generate mockgen -destination=mocks/mock_delivery.go -package=mocks -source=delivery.go Deliverer,CompletionHandler

// Result is the terminal result of one delivery
type Result string

const (
	// ResultSuccess means the packaging service accepted the update
	ResultSuccess Result = "success"
	// ResultFailure means the update was not applied
	ResultFailure Result = "failure"
)

// ParseResult parses a result name
func ParseResult(s string) (Result, error) {
	switch Result(strings.ToLower(s)) {
	case ResultSuccess:
		return ResultSuccess, nil
	case ResultFailure:
		return ResultFailure, nil
	default:
		return "", fmt.Errorf("unknown delivery result '%s'", s)
	}
}

// Outcome is what the packaging service reports for a request
type Outcome struct {
	Result Result `json:"result"`

	// RelaxUpdates asks for the longer check interval for this app
	RelaxUpdates bool `json:"relaxUpdates"`

	// Path is the delivered artifact. Empty when the reporter does not know it.
	Path string `json:"path,omitempty"`
}

// Succeeded reports whether the outcome is a success
func (o Outcome) Succeeded() bool {
	return o.Result == ResultSuccess
}

// Deliverer submits the artifact at path and waits for the packaging service's answer
type Deliverer interface {
	Deliver(ctx context.Context, path string) (Outcome, error)
}

// CompletionHandler receives delivery outcomes
type CompletionHandler interface {
	OnDeliveryComplete(ctx context.Context, appID string, outcome Outcome) error
}
