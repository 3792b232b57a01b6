// Package program holds the domain model of scraped TV programs.
package program

import "time"

// Status of episode in the catalog
type Status int

const (
	// New status for episodes recorded by a scrape run
	New Status = iota
	// Archived status for episodes with a video bundle on disk
	Archived
	// Uploaded status for episodes whose bundle went to cloud storage
	Uploaded
)

// Episode is one broadcast returned by the listing API
type Episode struct {
	ID          string // permanent id, "<program>_<unix timestamp>"
	Program     string
	Channel     string
	Topic       string
	Title       string
	Description string
	Timestamp   time.Time
	Duration    int64 // seconds
	Size        int64 // bytes, as reported by the API
	URLWebsite  string
	URLSubtitle string
	URLVideo    string
	URLVideoLow string
	URLVideoHD  string

	Status      Status
	XMLPath     string // subtitle file, relative to the program/date folder
	ArchivePath string // video bundle, relative to the output root
	Location    string // remote URL after upload
	RunID       string // scrape run that last touched the episode
}

// VideoURL returns the download source, low bitrate first
func (e *Episode) VideoURL() string {
	if e.URLVideoLow != "" {
		return e.URLVideoLow
	}
	return e.URLVideo
}
