package domain

import (
	"fmt"
	"sort"
	"strings"
)

// MirroredAccount is a source network profile bridged into the fediverse.
type MirroredAccount struct {
	ID              int64
	Handle          string
	DisplayName     string
	Bio             string
	ProfileURL      string
	ProfileImageURL string
	BannerURL       string
	Protected       bool
}

// DisplayAccount is what the human facing profile page shows.
type DisplayAccount struct {
	Name            string
	Description     string
	Handle          string
	URL             string
	ProfileImageURL string
	Protected       bool
	InstanceHandle  string
}

// ShortURL maps a shortened link found in a bio or post to its long form.
type ShortURL struct {
	URL         string
	ExpandedURL string
}

func (acc *MirroredAccount) ToString() string {
	return fmt.Sprintf("\n\tId: %d \n\tHandle: %s \n\tDisplayName: %s \n\tProtected: %t", acc.ID, acc.Handle, acc.DisplayName, acc.Protected)
}

// ToDisplay builds the display view of the account for the given instance domain.
func (acc *MirroredAccount) ToDisplay(domain string) DisplayAccount {
	handle := strings.ToLower(acc.Handle)
	return DisplayAccount{
		Name:            acc.DisplayName,
		Description:     acc.Bio,
		Handle:          handle,
		URL:             acc.ProfileURL,
		ProfileImageURL: acc.ProfileImageURL,
		Protected:       acc.Protected,
		InstanceHandle:  fmt.Sprintf("@%s@%s", handle, domain),
	}
}

// ExpandShortURLs replaces every short URL in text with its expanded form.
// Longer short URLs are replaced first so that a short URL which is a prefix
// of another one cannot corrupt the longer match.
func ExpandShortURLs(text string, urls []ShortURL) string {
	sorted := make([]ShortURL, len(urls))
	copy(sorted, urls)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].URL) > len(sorted[j].URL)
	})

	for _, u := range sorted {
		if u.URL == "" {
			continue
		}
		text = strings.ReplaceAll(text, u.URL, u.ExpandedURL)
	}
	return text
}
