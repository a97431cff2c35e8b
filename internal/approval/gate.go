// Package approval decides whether an update that changes an app's visible identity
// (name, short name or icon) needs the user's confirmation.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stacklok/pwa-update-manager/internal/reasons"
	"github.com/stacklok/pwa-update-manager/internal/versions"
	"github.com/stacklok/pwa-update-manager/internal/webapp"
)

//go:generate mockgen -destination=mocks/mock_gate.go -package=mocks -source=gate.go HashStore

// HashStore persists the identity hash the user last approved, per app
type HashStore interface {
	ApprovedIdentityHash(ctx context.Context, appID string) (string, error)
	SetApprovedIdentityHash(ctx context.Context, appID, hash string) error
}

// Outcome is the gate's verdict for one update cycle
type Outcome int

const (
	// AutoApprove lets the update proceed without asking the user
	AutoApprove Outcome = iota
	// AlreadyApproved means the user accepted this exact identity before
	AlreadyApproved
	// Prompt requires the user's confirmation
	Prompt
)

// String returns the outcome as reported to telemetry
func (o Outcome) String() string {
	switch o {
	case AlreadyApproved:
		return "already_approved"
	case Prompt:
		return "showing"
	default:
		return "not_showing"
	}
}

// PromptDetails describes the identity fields an update would change
type PromptDetails struct {
	IconChanging      bool `json:"iconChanging"`
	ShortNameChanging bool `json:"shortNameChanging"`
	NameChanging      bool `json:"nameChanging"`

	OldName         string `json:"oldName"`
	NewName         string `json:"newName"`
	OldShortName    string `json:"oldShortName"`
	NewShortName    string `json:"newShortName"`
	OldIconURL      string `json:"oldIconUrl,omitempty"`
	NewIconURL      string `json:"newIconUrl,omitempty"`
	NewIconAdaptive bool   `json:"newIconAdaptive"`
}

// Decision is the result of Decide
type Decision struct {
	Outcome Outcome

	// Hash is the identity hash of the fetched snapshot; persist it on approval
	Hash string

	// Prompt is set when Outcome is Prompt
	Prompt *PromptDetails
}

// Policy holds the platform switches that control identity dialogs
type Policy struct {
	NameEnabled bool
	IconEnabled bool

	// PlatformVersion is matched against SilentIconConstraint
	PlatformVersion string

	// SilentIconConstraint is a semver constraint naming platform versions that may
	// change icons without asking. Empty means none.
	SilentIconConstraint string
}

// Gate is the identity approval gate
type Gate struct {
	store      HashStore
	policy     Policy
	silentIcon bool
}

// NewGate creates a gate backed by store
func NewGate(store HashStore, policy Policy) (*Gate, error) {
	silent, err := versions.MatchesConstraint(policy.SilentIconConstraint, policy.PlatformVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid silent icon update constraint '%s': %w", policy.SilentIconConstraint, err)
	}
	return &Gate{
		store:      store,
		policy:     policy,
		silentIcon: silent,
	}, nil
}

// IdentityUpdatePermitted reports whether any identity dialog is active
func (g *Gate) IdentityUpdatePermitted() bool {
	return g.policy.NameEnabled || g.policy.IconEnabled
}

// SilentIconUpdates reports whether this platform may change icons without a prompt
func (g *Gate) SilentIconUpdates() bool {
	return g.silentIcon
}

// Filter drops identity reasons that policy does not allow to be applied at all
func (g *Gate) Filter(rs reasons.List) reasons.List {
	if !g.policy.NameEnabled {
		rs = rs.Without(reasons.ShortNameDiffers, reasons.NameDiffers)
	}
	if !g.policy.IconEnabled && !g.silentIcon {
		rs = rs.Without(reasons.PrimaryIconHashDiffers, reasons.IconMaskableDiffers)
	}
	return rs
}

// Decide evaluates a reason set. rs should already be filtered.
func (g *Gate) Decide(
	ctx context.Context,
	appID string,
	app *webapp.App,
	fetched *webapp.Fetched,
	rs reasons.List,
) (Decision, error) {
	iconChanging := rs.ContainsAny(reasons.PrimaryIconHashDiffers, reasons.IconMaskableDiffers)
	shortNameChanging := rs.Contains(reasons.ShortNameDiffers)
	nameChanging := rs.Contains(reasons.NameDiffers)

	if !iconChanging && !shortNameChanging && !nameChanging {
		return Decision{Outcome: AutoApprove}, nil
	}

	oldSnap := &app.Snapshot
	var newSnap webapp.Snapshot
	if fetched != nil {
		newSnap = fetched.Snapshot
	}

	// Both names moving in lockstep read as a single change
	if nameChanging && shortNameChanging &&
		oldSnap.Name == oldSnap.ShortName && newSnap.Name == newSnap.ShortName {
		nameChanging = false
	}

	hash := IdentityHash(fetched)
	if hash != "" {
		approved, err := g.store.ApprovedIdentityHash(ctx, appID)
		if err != nil {
			return Decision{}, fmt.Errorf("failed to load approved identity for app '%s': %w", appID, err)
		}
		if approved == hash {
			slog.Debug("Identity change already approved", "app_id", appID)
			return Decision{Outcome: AlreadyApproved, Hash: hash}, nil
		}
	}

	if !g.IdentityUpdatePermitted() || (g.silentIcon && !nameChanging && !shortNameChanging) {
		return Decision{Outcome: AutoApprove, Hash: hash}, nil
	}

	return Decision{
		Outcome: Prompt,
		Hash:    hash,
		Prompt: &PromptDetails{
			IconChanging:      iconChanging,
			ShortNameChanging: shortNameChanging,
			NameChanging:      nameChanging,
			OldName:           oldSnap.Name,
			NewName:           newSnap.Name,
			OldShortName:      oldSnap.ShortName,
			NewShortName:      newSnap.ShortName,
			OldIconURL:        oldSnap.PrimaryIconURL,
			NewIconURL:        newSnap.PrimaryIconURL,
			NewIconAdaptive:   newSnap.IsIconAdaptive,
		},
	}, nil
}

// Approve records hash as the identity the user accepted for appID
func (g *Gate) Approve(ctx context.Context, appID, hash string) error {
	if hash == "" {
		return nil
	}
	if err := g.store.SetApprovedIdentityHash(ctx, appID, hash); err != nil {
		return fmt.Errorf("failed to store approved identity for app '%s': %w", appID, err)
	}
	return nil
}

// IdentityHash fingerprints the identity of a fetched snapshot as
// "name|shortName|iconHash|Adaptive" (or "NotAdaptive"). The icon hash is looked up by
// the declared icon URL so density-based icon selection does not change it.
// A missing fetch hashes to "".
func IdentityHash(fetched *webapp.Fetched) string {
	if fetched == nil {
		return ""
	}
	snap := &fetched.Snapshot
	iconHash, _ := snap.IconHash(snap.PrimaryIconURL)
	adaptive := "NotAdaptive"
	if snap.IsIconAdaptive {
		adaptive = "Adaptive"
	}
	return strings.Join([]string{snap.Name, snap.ShortName, iconHash, adaptive}, "|")
}
