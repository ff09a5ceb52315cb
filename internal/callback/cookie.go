package callback

import (
	"fmt"
	"os"
	"strings"
)

// CookieFileToken reads the named cookie from a cookie file each time a
// delivery needs it, so a rotated token is picked up without restarting.
// Both plain "name=value" lines and Netscape-format cookie jars (as written
// by curl and the notebook server) are understood.
func CookieFileToken(path, name string) TokenSource {
	return func() (string, error) {
		value, err := readCookie(path, name)
		if err != nil {
			return "", err
		}
		return value, nil
	}
}

func readCookie(path, name string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read cookie file: %w", err)
	}
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Netscape format: domain, flag, path, secure, expiry, name, value.
		if fields := strings.Split(line, "\t"); len(fields) == 7 {
			if fields[5] == name {
				return fields[6], nil
			}
			continue
		}
		if cookieName, value, ok := strings.Cut(line, "="); ok {
			if strings.TrimSpace(cookieName) == name {
				return strings.TrimSpace(value), nil
			}
		}
	}
	return "", fmt.Errorf("cookie %q not found in %s", name, path)
}
