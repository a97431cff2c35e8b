// Package request writes the durable pending update request handed to the packaging
// service.
package request

import (
	"errors"
	"time"

	"github.com/stacklok/pwa-update-manager/internal/webapp"
)

// ErrArtifactNotFound is returned when a pending request file does not exist
var ErrArtifactNotFound = errors.New("pending update request not found")

// EncodedIcon is an icon payload ready for packaging
type EncodedIcon struct {
	URL string `json:"url"`

	// SHA256 is the hex digest of the raw payload
	SHA256 string `json:"sha256"`

	// Data is the base64 encoded payload
	Data string `json:"data"`
}

// PendingUpdateRequest is the artifact consumed once by the delivery collaborator
type PendingUpdateRequest struct {
	AppID       string `json:"appId"`
	PackageName string `json:"packageName"`

	// Snapshot is the approved manifest state to package
	Snapshot webapp.Snapshot `json:"snapshot"`

	PrimaryIcon   *EncodedIcon  `json:"primaryIcon,omitempty"`
	SplashIcon    *EncodedIcon  `json:"splashIcon,omitempty"`
	ShortcutIcons []EncodedIcon `json:"shortcutIcons,omitempty"`

	// Reasons lists the update reasons in reporting order
	Reasons []string `json:"reasons"`

	// Stale is set when no fresh manifest was available and the installed snapshot is
	// repackaged for a newer runtime
	Stale bool `json:"stale"`

	// IdentityUpdatePermitted records whether identity dialogs were active for this cycle
	IdentityUpdatePermitted bool `json:"identityUpdatePermitted"`

	RuntimeVersion string    `json:"runtimeVersion"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Input is what the coordinator hands over for serialization
type Input struct {
	App *webapp.App

	// Fetched is nil on the staleness-only path
	Fetched *webapp.Fetched

	Reasons                 []string
	IdentityUpdatePermitted bool
	RuntimeVersion          string
}
