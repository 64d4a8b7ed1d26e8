package youtube

import (
	"net/url"
	"regexp"
	"strings"
)

var validURL = regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com|youtu\.be)/.+$`)

// IsValidURL reports whether candidate looks like a YouTube video URL:
// optional scheme, optional www., a youtube.com or youtu.be host and a
// non-empty path or query.
func IsValidURL(candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return false
	}
	return validURL.MatchString(candidate)
}

// VideoID extracts the video id from a watch or short URL. Used for logging.
func VideoID(candidate string) (string, bool) {
	candidate = strings.TrimSpace(candidate)
	if !IsValidURL(candidate) {
		return "", false
	}
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtu.be":
		id := strings.Trim(u.Path, "/")
		if i := strings.Index(id, "/"); i >= 0 {
			id = id[:i]
		}
		return id, id != ""
	case "youtube.com":
		if v := u.Query().Get("v"); v != "" {
			return v, true
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 && (parts[0] == "shorts" || parts[0] == "embed" || parts[0] == "live") && parts[1] != "" {
			return parts[1], true
		}
	}
	return "", false
}
