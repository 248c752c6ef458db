package models

type Platform string

const (
	PlatformX         Platform = "x"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
)

var KnownPlatforms = []Platform{PlatformX, PlatformLinkedIn, PlatformInstagram, PlatformYouTube}

func ParsePlatform(s string) (Platform, bool) {
	for _, p := range KnownPlatforms {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}
