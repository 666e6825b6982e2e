package domain

import "time"

// LakeEntry is one file found in the raw data lake under <root>/<date>/<channel>/<name>.
type LakeEntry struct {
	Path     string
	Location string
	Date     time.Time
	Channel  string
	Name     string
}
