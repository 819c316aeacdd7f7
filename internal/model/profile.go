// Package model defines the data structures used throughout the application.
package model

import (
	"slices"
	"time"
)

// Profile is a user's public profile. One per identity-provider user.
//
// ID is the provider's user id in display (decoded) form. It is stored as
// an identity.Key and never changes once the profile exists.
//
// ProfilePictureURL and Country are nullable: nil means "not chosen yet".
type Profile struct {
	ID                string    `json:"id"`
	Email             string    `json:"email,omitempty"`
	Username          string    `json:"username"`
	ProfilePictureURL *string   `json:"profilePictureUrl"`
	Country           *string   `json:"country"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// ProfilePictures are the preset images a profile may point at.
var ProfilePictures = []string{
	"/images/green.png",
	"/images/purps.png",
	"/images/white.png",
	"/images/yellow.png",
	"/avatars/Purps.svg",
	"/avatars/Ninja.svg",
	"/avatars/Gold.svg",
	"/avatars/Moss.svg",
}

// Countries are the lowercase ISO 3166-1 alpha-2 codes a profile may select.
var Countries = []string{
	"au", "at", "be", "br", "ca", "ch", "cl", "co", "cz", "dk",
	"eg", "es", "fi", "gb", "gr", "hu", "id", "ie", "il", "it",
	"mx", "ng", "nl", "no", "nz", "pe", "ph", "pl", "pt", "ro",
	"ru", "sa", "se", "sg", "th", "tr", "ua", "us", "uy", "vn",
	"za",
}

// IsProfilePicture reports whether url is one of the presets.
func IsProfilePicture(url string) bool {
	return slices.Contains(ProfilePictures, url)
}

// IsCountry reports whether code is a selectable country.
func IsCountry(code string) bool {
	return slices.Contains(Countries, code)
}
