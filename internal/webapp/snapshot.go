// Package webapp describes installed packaged web applications and the manifest-derived
// snapshots the update pipeline compares.
package webapp

import (
	"strings"
	"time"
)

// DisplayMode is the manifest display mode
type DisplayMode string

// Orientation is the manifest screen orientation lock
type Orientation string

// Colors holds a light/dark color pair. Zero values mean "not specified".
type Colors struct {
	Light string `json:"light,omitempty"`
	Dark  string `json:"dark,omitempty"`
}

// ShareTargetParams maps the share payload fields to form field names
type ShareTargetParams struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
	URL   string `json:"url,omitempty"`
}

// ShareTargetFile describes one accepted file form field
type ShareTargetFile struct {
	Name   string   `json:"name"`
	Accept []string `json:"accept,omitempty"`
}

// ShareTarget is the Web Share Target descriptor of a manifest
type ShareTarget struct {
	Action  string            `json:"action"`
	Method  string            `json:"method,omitempty"`
	EncType string            `json:"encType,omitempty"`
	Params  ShareTargetParams `json:"params"`
	Files   []ShareTargetFile `json:"files,omitempty"`
}

// Equal reports whether two share targets are equivalent. A nil target only equals nil.
func (s *ShareTarget) Equal(other *ShareTarget) bool {
	if s == nil || other == nil {
		return s == nil && other == nil
	}
	if !SameURL(s.Action, other.Action) ||
		!strings.EqualFold(s.Method, other.Method) ||
		!strings.EqualFold(s.EncType, other.EncType) ||
		s.Params != other.Params ||
		len(s.Files) != len(other.Files) {
		return false
	}
	for i := range s.Files {
		if s.Files[i].Name != other.Files[i].Name ||
			strings.Join(s.Files[i].Accept, ",") != strings.Join(other.Files[i].Accept, ",") {
			return false
		}
	}
	return true
}

// Shortcut is a manifest shortcut menu entry
type Shortcut struct {
	Name      string `json:"name"`
	ShortName string `json:"shortName,omitempty"`
	LaunchURL string `json:"launchUrl"`
	IconURL   string `json:"iconUrl,omitempty"`
	IconHash  string `json:"iconHash,omitempty"`
}

// Snapshot is one observation of an app's manifest-derived state.
// Snapshots are values; the pipeline never mutates one after it is built.
type Snapshot struct {
	StartURL    string `json:"startUrl"`
	Scope       string `json:"scope"`
	ManifestURL string `json:"manifestUrl"`
	ManifestID  string `json:"manifestId,omitempty"`
	Name        string `json:"name"`
	ShortName   string `json:"shortName"`

	// PrimaryIconURL and SplashIconURL are the icon URLs as declared by the manifest,
	// before any density-based selection.
	PrimaryIconURL string `json:"primaryIconUrl,omitempty"`
	SplashIconURL  string `json:"splashIconUrl,omitempty"`

	// IconHashes maps icon URL to the hash of the icon's content
	IconHashes     map[string]string `json:"iconHashes,omitempty"`
	IsIconAdaptive bool              `json:"isIconAdaptive"`

	DisplayMode     DisplayMode  `json:"displayMode,omitempty"`
	Orientation     Orientation  `json:"orientation,omitempty"`
	ThemeColor      Colors       `json:"themeColor"`
	BackgroundColor Colors       `json:"backgroundColor"`
	ShareTarget     *ShareTarget `json:"shareTarget,omitempty"`
	Shortcuts       []Shortcut   `json:"shortcuts,omitempty"`

	// RuntimeVersion is the version of the shell runtime the snapshot was packaged with
	RuntimeVersion string `json:"runtimeVersion,omitempty"`
}

// IconHash returns the content hash recorded for iconURL, matching URLs without their
// fragment. The second return value is false if no icon matches.
func (s *Snapshot) IconHash(iconURL string) (string, bool) {
	if iconURL == "" {
		return "", false
	}
	if hash, ok := s.IconHashes[iconURL]; ok {
		return hash, true
	}
	for u, hash := range s.IconHashes {
		if SameURL(u, iconURL) {
			return hash, true
		}
	}
	return "", false
}

// App is an installed application as reported on activation
type App struct {
	// ID identifies the app and keys its persisted record
	ID string `json:"id"`

	// PackageName is the installed package. Only packages carrying the bound prefix are
	// managed by the update pipeline.
	PackageName string `json:"packageName"`

	// Snapshot is the installed manifest state
	Snapshot Snapshot `json:"snapshot"`

	// HasCustomName is set when the user renamed the app; name changes are then ignored
	HasCustomName bool `json:"hasCustomName,omitempty"`

	// LastUpdateTime is when the installed package was last (re)installed
	LastUpdateTime time.Time `json:"lastUpdateTime"`

	// Icons holds raw icon payloads keyed by URL, when the host can supply them
	Icons map[string][]byte `json:"icons,omitempty"`
}

// IsBound reports whether the app's package belongs to the managed namespace
func (a *App) IsBound(prefix string) bool {
	return prefix == "" || strings.HasPrefix(a.PackageName, prefix)
}

// Fetched is a freshly fetched manifest observation for an installed app
type Fetched struct {
	Snapshot Snapshot `json:"snapshot"`

	// PrimaryIconURL and SplashIconURL are the icons selected for this device from
	// the manifest's candidates. They may differ from the declared URLs in Snapshot.
	PrimaryIconURL string `json:"primaryIconUrl,omitempty"`
	SplashIconURL  string `json:"splashIconUrl,omitempty"`

	// Icons holds raw icon payloads keyed by URL
	Icons map[string][]byte `json:"icons,omitempty"`
}
