package api

import "strings"

// ProfileImageURL resolves a stored profile path to a fetchable URL.
// Absolute http(s) URLs (object storage) pass through; anything else is
// served from the backend's /uploads directory by file name.
func ProfileImageURL(baseURL, profilePath string) string {
	if profilePath == "" {
		return ""
	}
	if strings.HasPrefix(profilePath, "http://") || strings.HasPrefix(profilePath, "https://") {
		return profilePath
	}
	name := profilePath[strings.LastIndex(profilePath, "/")+1:]
	return strings.TrimRight(baseURL, "/") + "/uploads/" + name
}

func (c *Client) ProfileImageURL(profilePath string) string {
	return ProfileImageURL(c.baseURL, profilePath)
}
