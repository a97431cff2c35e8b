// Package reasons computes why an installed app needs to be republished.
package reasons

import "strings"

// Reason is a cause for requesting a republish. The numeric order is the
// reporting order: lower values are more likely to be user visible.
type Reason int

// Update reasons, in reporting order
const (
	StaleRuntime Reason = iota
	PrimaryIconHashDiffers
	SplashIconHashDiffers
	ScopeDiffers
	StartURLDiffers
	ShortNameDiffers
	NameDiffers
	BackgroundColorDiffers
	ThemeColorDiffers
	OrientationDiffers
	DisplayModeDiffers
	ShareTargetDiffers
	IconMaskableDiffers
	ShortcutsDiffer
	ManuallyTriggered
)

var reasonNames = [...]string{
	StaleRuntime:           "stale-runtime",
	PrimaryIconHashDiffers: "primary-icon-hash-differs",
	SplashIconHashDiffers:  "splash-icon-hash-differs",
	ScopeDiffers:           "scope-differs",
	StartURLDiffers:        "start-url-differs",
	ShortNameDiffers:       "short-name-differs",
	NameDiffers:            "name-differs",
	BackgroundColorDiffers: "background-color-differs",
	ThemeColorDiffers:      "theme-color-differs",
	OrientationDiffers:     "orientation-differs",
	DisplayModeDiffers:     "display-mode-differs",
	ShareTargetDiffers:     "share-target-differs",
	IconMaskableDiffers:    "icon-maskable-differs",
	ShortcutsDiffer:        "shortcuts-differ",
	ManuallyTriggered:      "manually-triggered",
}

func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return "unknown"
	}
	return reasonNames[r]
}

// Parse returns the reason with the given name
func Parse(name string) (Reason, bool) {
	for i, n := range reasonNames {
		if n == name {
			return Reason(i), true
		}
	}
	return 0, false
}

// List is an ordered set of reasons
type List []Reason

// Contains reports whether r is in the list
func (l List) Contains(r Reason) bool {
	for _, x := range l {
		if x == r {
			return true
		}
	}
	return false
}

// ContainsAny reports whether any of rs is in the list
func (l List) ContainsAny(rs ...Reason) bool {
	for _, r := range rs {
		if l.Contains(r) {
			return true
		}
	}
	return false
}

// Without returns a copy of the list with rs removed
func (l List) Without(rs ...Reason) List {
	out := make(List, 0, len(l))
	for _, x := range l {
		drop := false
		for _, r := range rs {
			if x == r {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, x)
		}
	}
	return out
}

// Prepend returns a copy of the list with r at index 0. A reason already in the
// list is moved rather than duplicated.
func (l List) Prepend(r Reason) List {
	return append(List{r}, l.Without(r)...)
}

// Strings returns the reason names in order
func (l List) Strings() []string {
	out := make([]string, len(l))
	for i, r := range l {
		out[i] = r.String()
	}
	return out
}

func (l List) String() string {
	return strings.Join(l.Strings(), ",")
}

// FromStrings parses reason names, skipping unknown ones
func FromStrings(names []string) List {
	out := make(List, 0, len(names))
	for _, n := range names {
		if r, ok := Parse(n); ok {
			out = append(out, r)
		}
	}
	return out
}

// IdentityReasons are the reasons that change what the user sees on the launcher
var IdentityReasons = []Reason{PrimaryIconHashDiffers, IconMaskableDiffers, ShortNameDiffers, NameDiffers}
