package models

import (
	"net/url"
)

// Session is the signed-in user record. Only its presence gates mutations.
type Session struct {
	DisplayName string `json:"name"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatar"`
}

// DefaultAvatarURL returns a generated identicon seeded by email.
func DefaultAvatarURL(email string) string {
	return "https://api.dicebear.com/9.x/identicon/svg?seed=" + url.QueryEscape(email)
}
