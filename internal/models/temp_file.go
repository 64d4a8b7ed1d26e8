package models

import "time"

// TempAudioFile is the per-request scratch file holding downloaded or
// uploaded audio. It never outlives the request that reserved it.
type TempAudioFile struct {
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}
