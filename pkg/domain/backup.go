package domain

import "time"

// Backup is the portable export artifact: the whole state document plus every
// attachment payload inlined as a data URL.
type Backup struct {
	Document
	Images []BackupImage `json:"images"`
}

// BackupImage carries one attachment payload inside a backup.
type BackupImage struct {
	ID        string    `json:"id"`
	DataURL   string    `json:"dataURL"`
	Name      string    `json:"name"`
	Mime      string    `json:"mime"`
	PatientID string    `json:"patientId"`
	CreatedAt Timestamp `json:"createdAt"`
}

func (i BackupImage) key() string { return i.ID }

// BackupFilename names an export file after the moment it was produced.
func BackupFilename(now time.Time) string {
	return "BTX-Backup-" + now.UTC().Format("20060102-150405") + ".json"
}
