package webapp

import "net/url"

// StripFragment returns rawURL without its fragment. Unparseable input is returned as-is
// with everything from the first '#' removed.
func StripFragment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		for i := 0; i < len(rawURL); i++ {
			if rawURL[i] == '#' {
				return rawURL[:i]
			}
		}
		return rawURL
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// SameURL compares two URLs ignoring their fragments
func SameURL(a, b string) bool {
	if a == b {
		return true
	}
	return StripFragment(a) == StripFragment(b)
}
