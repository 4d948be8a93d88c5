package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// GetGravatarURL builds the avatar URL for a user's email. Gravatar hashes
// the trimmed, lowercased address with MD5; "d=mp" falls back to the generic
// silhouette for addresses without a profile.
func GetGravatarURL(email string, size int) string {
	if size <= 0 {
		size = 200
	}
	hash := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%x?s=%d&d=mp", hash, size)
}
