package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"btxclinic/internal/blob"
	"btxclinic/internal/dataurl"
	"btxclinic/pkg/domain"
)

// BackupSummary counts what a backup of the current state would contain.
type BackupSummary struct {
	Patients     int       `json:"patients"`
	Appointments int       `json:"appointments"`
	Entries      int       `json:"entries"`
	Images       int       `json:"images"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ImportReport describes the outcome of a restore.
type ImportReport struct {
	Patients     int      `json:"patients"`
	Appointments int      `json:"appointments"`
	Entries      int      `json:"entries"`
	Rx           int      `json:"rx"`
	Images       int      `json:"images"`
	ClearedBlobs int      `json:"clearedBlobs"`
	Skipped      []string `json:"skipped,omitempty"`
}

// Summary reports the collection sizes of the current document.
func (s *Service) Summary() BackupSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return BackupSummary{
		Patients:     len(s.doc.Patients),
		Appointments: len(s.doc.Appointments),
		Entries:      len(s.doc.Entries),
		Images:       len(s.doc.Rx),
		UpdatedAt:    s.doc.Meta.UpdatedAt.Time,
	}
}

// Export builds a self-contained backup: a copy of the document plus every
// attachment payload inlined as a data URL. Rows whose payload is missing are
// kept in rx but produce no image.
func (s *Service) Export(ctx context.Context) (domain.Backup, error) {
	var backup domain.Backup
	err := s.run(ctx, "export_backup", "", "", func(ctx context.Context) (string, error) {
		s.mu.RLock()
		doc := s.doc.Clone()
		s.mu.RUnlock()

		backup = domain.Backup{Document: doc, Images: make([]domain.BackupImage, 0, len(doc.Rx))}
		for _, r := range doc.Rx {
			info, data, err := s.readBlob(ctx, r.ID)
			if errors.Is(err, blob.ErrNotFound) {
				s.logger.Warn("rx payload missing, left out of backup", "rx_id", r.ID)
				continue
			}
			if err != nil {
				return "", err
			}
			mime := contentType(r, info)
			backup.Images = append(backup.Images, domain.BackupImage{
				ID:        r.ID,
				DataURL:   dataurl.Encode(mime, data),
				Name:      r.Name,
				Mime:      r.Mime,
				PatientID: r.PatientID,
				CreatedAt: r.CreatedAt,
			})
		}
		return "", nil
	})
	if err != nil {
		return domain.Backup{}, err
	}
	return backup, nil
}

// ExportJSON returns the backup file name and its indented JSON body.
func (s *Service) ExportJSON(ctx context.Context) (string, []byte, error) {
	backup, err := s.Export(ctx)
	if err != nil {
		return "", nil, err
	}
	body, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("encode backup: %w", err)
	}
	return domain.BackupFilename(s.now()), body, nil
}

// Import restores a backup file. Input that is not a JSON object fails with
// domain.ErrMalformedBackup and leaves the current state untouched; anything
// else is default-filled and restored.
func (s *Service) Import(ctx context.Context, data []byte) (ImportReport, error) {
	var report ImportReport
	err := s.run(ctx, "import_backup", "", "", func(ctx context.Context) (string, error) {
		backup, decoded, err := domain.DecodeBackup(data, s.now())
		if err != nil {
			return "", err
		}
		report, err = s.restore(ctx, backup)
		report.Skipped = append(decoded.Skipped, report.Skipped...)
		return "", err
	})
	return report, err
}

// ImportBackup restores an already decoded backup.
func (s *Service) ImportBackup(ctx context.Context, backup domain.Backup) (ImportReport, error) {
	var report ImportReport
	err := s.run(ctx, "import_backup", "", "", func(ctx context.Context) (string, error) {
		var err error
		report, err = s.restore(ctx, backup)
		return "", err
	})
	return report, err
}

// Wipe resets to a fresh document and empties the blob store, exactly like
// restoring an empty backup.
func (s *Service) Wipe(ctx context.Context) error {
	return s.run(ctx, "wipe", "", "", func(ctx context.Context) (string, error) {
		_, err := s.restore(ctx, domain.Backup{Document: domain.NewDocument(s.now())})
		return "", err
	})
}

type decodedImage struct {
	id   string
	mime string
	data []byte
}

// restore replaces both stores with the backup content. Every image is decoded
// and its id checked against the blob store before anything is deleted, so an
// unreadable payload or unusable id cannot cost data; those images are skipped
// and reported. Then the blob store is cleared, the images
// written, and finally the document saved and swapped in.
func (s *Service) restore(ctx context.Context, backup domain.Backup) (ImportReport, error) {
	doc := backup.Document.Clone()
	doc.Normalize(s.now())
	report := ImportReport{}

	images := make([]decodedImage, 0, len(backup.Images))
	for _, img := range backup.Images {
		if img.ID == "" {
			report.Skipped = append(report.Skipped, "images: missing id")
			continue
		}
		if err := s.blobs.ValidateKey(img.ID); err != nil {
			report.Skipped = append(report.Skipped, fmt.Sprintf("images[%s]: %v", img.ID, err))
			s.logger.Warn("backup image skipped", "rx_id", img.ID, "err", err)
			continue
		}
		mime, data, err := dataurl.Decode(img.DataURL)
		if err != nil {
			report.Skipped = append(report.Skipped, fmt.Sprintf("images[%s]: %v", img.ID, err))
			s.logger.Warn("backup image skipped", "rx_id", img.ID, "err", err)
			continue
		}
		if img.Mime != "" {
			mime = img.Mime
		}
		images = append(images, decodedImage{id: img.ID, mime: mime, data: data})
	}

	s.mu.Lock()
	cleared, err := s.clearBlobs(ctx)
	report.ClearedBlobs = cleared
	if err != nil {
		s.mu.Unlock()
		return report, err
	}
	for _, img := range images {
		if _, err := s.blobs.Put(ctx, img.id, bytes.NewReader(img.data), blob.PutOptions{ContentType: img.mime}); err != nil {
			s.mu.Unlock()
			return report, fmt.Errorf("restore blob %s: %w", img.id, err)
		}
		report.Images++
	}
	doc.Meta.UpdatedAt = domain.NewTimestamp(s.now())
	if err := s.state.Save(ctx, doc); err != nil {
		s.mu.Unlock()
		return report, fmt.Errorf("save state: %w", err)
	}
	s.doc = doc
	s.mu.Unlock()

	report.Patients = len(doc.Patients)
	report.Appointments = len(doc.Appointments)
	report.Entries = len(doc.Entries)
	report.Rx = len(doc.Rx)
	s.refresh(ctx, AllViews())
	return report, nil
}

// clearBlobs deletes every stored blob. It stops at the first failure.
func (s *Service) clearBlobs(ctx context.Context) (int, error) {
	infos, err := s.blobs.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list blobs: %w", err)
	}
	cleared := 0
	for _, key := range blob.Keys(infos) {
		if _, err := s.blobs.Delete(ctx, key); err != nil {
			return cleared, fmt.Errorf("clear blob %s: %w", key, err)
		}
		cleared++
	}
	return cleared, nil
}
