// Package site knows the origin site's URL scheme and how to extract
// structured records from its rendered markup. It never talks to the
// network itself: callers hand it page source obtained through a
// browser session.
package site

import "fmt"

// URLs builds site addresses from the configured base
type URLs struct {
	Base string
}

// Login is the login form page
func (u URLs) Login() string {
	return u.Base + "/login"
}

// Profile is an authenticated-only page used to probe saved cookies
func (u URLs) Profile() string {
	return u.Base + "/profile"
}

// History is one page of the viewing-history listing for a mode
func (u URLs) History(mode string, page int) string {
	return fmt.Sprintf("%s/profile/history?type=%s&page=%d", u.Base, mode, page)
}

// NewEpisodes is one page of the new-episodes listing
func (u URLs) NewEpisodes(page int) string {
	return fmt.Sprintf("%s/profile/new?page=%d", u.Base, page)
}

// Catalog is one page of a show-type category listing
func (u URLs) Catalog(showType string, page int) string {
	return fmt.Sprintf("%s/catalog/%s?page=%d", u.Base, showType, page)
}

// Show is a show's detail page
func (u URLs) Show(id uint) string {
	return fmt.Sprintf("%s/show/%d", u.Base, id)
}

// Season is one season tab of a show's detail page
func (u URLs) Season(id uint, season int) string {
	return fmt.Sprintf("%s/show/%d/season/%d", u.Base, id, season)
}
