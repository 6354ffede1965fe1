package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"btxclinic/internal/blob"
	"btxclinic/internal/dataurl"
	"btxclinic/pkg/domain"
)

// DefaultRxName names attachments uploaded without a file name.
const DefaultRxName = "imagem"

// Upload is one incoming attachment payload.
type Upload struct {
	Name string
	Mime string
	Data []byte
}

// GalleryItem pairs an rx row with its payload. Missing is set when the blob
// store has no payload for the row; Data is empty in that case.
type GalleryItem struct {
	Rx          domain.RxMeta
	ContentType string
	Data        []byte
	Missing     bool
}

// DataURL renders the payload inline, or "" for a missing payload.
func (g GalleryItem) DataURL() string {
	if g.Missing {
		return ""
	}
	return dataurl.Encode(g.ContentType, g.Data)
}

// AttachRx stores each upload as a new blob and appends its rx row. Blobs are
// written before the state save (StageBlobsThenCommit).
func (s *Service) AttachRx(ctx context.Context, patientID string, uploads []Upload) ([]domain.RxMeta, domain.Result, error) {
	var (
		created []domain.RxMeta
		res     domain.Result
	)
	err := s.run(ctx, "attach_rx", EntityRx, ActionCreate, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.commit(ctx, func(doc *domain.Document, m *mutation) error {
			if len(uploads) == 0 {
				return domain.ValidationError{Entity: EntityRx, Field: "files", Reason: "is required"}
			}
			now := domain.NewTimestamp(s.now())
			rows := make([]domain.RxMeta, 0, len(uploads))
			for _, up := range uploads {
				row := domain.RxMeta{
					ID:        s.newID(),
					PatientID: strings.TrimSpace(patientID),
					Name:      strings.TrimSpace(up.Name),
					Mime:      strings.TrimSpace(up.Mime),
					CreatedAt: now,
				}
				if row.Name == "" {
					row.Name = DefaultRxName
				}
				if row.Mime == "" {
					row.Mime = mimetype.Detect(up.Data).String()
				}
				if err := row.Validate(); err != nil {
					return err
				}
				m.stage = append(m.stage, stagedBlob{
					id:   row.ID,
					mime: row.Mime,
					data: up.Data,
					meta: map[string]string{"patient_id": row.PatientID},
				})
				m.record(EntityRx, ActionCreate, nil, row)
				rows = append(rows, row)
			}
			doc.Rx = append(doc.Rx, rows...)
			m.refresh(ViewRecord, ViewBackup)
			created = rows
			return nil
		})
		return patientID, err
	})
	return created, res, err
}

// DeleteRx removes an rx row, then its blob (CommitThenReleaseBlobs).
func (s *Service) DeleteRx(ctx context.Context, id string) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, "delete_rx", EntityRx, ActionDelete, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.commit(ctx, func(doc *domain.Document, m *mutation) error {
			idx := indexOf(doc.Rx, func(r domain.RxMeta) bool { return r.ID == id })
			if idx < 0 {
				return domain.ErrNotFound{Entity: EntityRx, ID: id}
			}
			before := doc.Rx[idx]
			doc.Rx = append(doc.Rx[:idx], doc.Rx[idx+1:]...)
			m.record(EntityRx, ActionDelete, before, nil)
			m.release = append(m.release, id)
			m.refresh(ViewRecord, ViewBackup)
			return nil
		})
		return id, err
	})
	return res, err
}

// Gallery returns a patient's attachments, newest first. A row without a
// payload yields a placeholder item instead of an error.
func (s *Service) Gallery(ctx context.Context, patientID string) ([]GalleryItem, error) {
	s.mu.RLock()
	rows := make([]domain.RxMeta, 0)
	for _, r := range s.doc.Rx {
		if r.PatientID == patientID {
			rows = append(rows, r)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt.Time)
	})

	items := make([]GalleryItem, 0, len(rows))
	for _, r := range rows {
		info, data, err := s.readBlob(ctx, r.ID)
		if errors.Is(err, blob.ErrNotFound) {
			s.logger.Warn("rx payload missing, rendering placeholder", "rx_id", r.ID, "patient_id", patientID)
			items = append(items, GalleryItem{Rx: r, ContentType: r.Mime, Missing: true})
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, GalleryItem{Rx: r, ContentType: contentType(r, info), Data: data})
	}
	return items, nil
}

// OpenRx returns one attachment with its payload. A row whose blob is gone is
// reported as not found.
func (s *Service) OpenRx(ctx context.Context, id string) (GalleryItem, error) {
	s.mu.RLock()
	r, ok := s.doc.FindRx(id)
	s.mu.RUnlock()
	if !ok {
		return GalleryItem{}, domain.ErrNotFound{Entity: EntityRx, ID: id}
	}
	info, data, err := s.readBlob(ctx, id)
	if errors.Is(err, blob.ErrNotFound) {
		return GalleryItem{Rx: r, ContentType: r.Mime, Missing: true}, domain.ErrNotFound{Entity: EntityRx, ID: id}
	}
	if err != nil {
		return GalleryItem{}, err
	}
	return GalleryItem{Rx: r, ContentType: contentType(r, info), Data: data}, nil
}

func (s *Service) readBlob(ctx context.Context, id string) (blob.Info, []byte, error) {
	info, rc, err := s.blobs.Get(ctx, id)
	if err != nil {
		// A key the store cannot hold has no payload.
		if errors.Is(err, blob.ErrNotFound) || errors.Is(err, blob.ErrInvalidKey) {
			return blob.Info{}, nil, blob.ErrNotFound
		}
		return blob.Info{}, nil, fmt.Errorf("get blob %s: %w", id, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return blob.Info{}, nil, fmt.Errorf("read blob %s: %w", id, err)
	}
	return info, data, nil
}

func contentType(r domain.RxMeta, info blob.Info) string {
	if r.Mime != "" {
		return r.Mime
	}
	return info.ContentType
}
