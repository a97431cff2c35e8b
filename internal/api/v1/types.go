package v1

import "github.com/stacklok/pwa-update-manager/internal/dialog"

// ActivationResponse reports whether an activation started an update cycle
type ActivationResponse struct {
	Started bool   `json:"started"`
	Reason  string `json:"reason"`
}

// ForceUpdateRequest is the body of a force update
type ForceUpdateRequest struct {
	PackageName string `json:"packageName"`
}

// DeliveryResultRequest is the packaging service's report for a delivered request
type DeliveryResultRequest struct {
	Result       string `json:"result"`
	RelaxUpdates bool   `json:"relaxUpdates"`
	// Path optionally names the delivered artifact; a stale report is then rejected
	Path string `json:"path,omitempty"`
}

// DecisionRequest answers an identity update prompt
type DecisionRequest struct {
	Action string `json:"action"`
}

// PromptListResponse lists the prompts awaiting an answer
type PromptListResponse struct {
	Prompts []dialog.Pending `json:"prompts"`
}
