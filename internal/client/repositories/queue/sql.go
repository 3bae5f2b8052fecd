package queue

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/formsync/internal/client/models"
	"github.com/dmitrijs2005/formsync/internal/clock"
	"github.com/dmitrijs2005/formsync/internal/common"
	"github.com/dmitrijs2005/formsync/internal/cryptox"
	"github.com/dmitrijs2005/formsync/internal/dbx"
)

type SQLRepository struct {
	db      *sql.DB
	dialect dbx.Dialect
	sealer  *cryptox.Sealer
	clock   clock.Clock
}

type Option func(*SQLRepository)

// WithSealer encrypts field JSON and attachment bytes at rest.
func WithSealer(s *cryptox.Sealer) Option {
	return func(r *SQLRepository) { r.sealer = s }
}

func WithClock(c clock.Clock) Option {
	return func(r *SQLRepository) { r.clock = c }
}

func NewSQLRepository(db *sql.DB, dialect dbx.Dialect, opts ...Option) *SQLRepository {
	r := &SQLRepository{db: db, dialect: dialect, clock: clock.RealClock{}}
	for _, o := range opts {
		o(r)
	}
	return r
}

func NewSQLiteRepository(db *sql.DB, opts ...Option) *SQLRepository {
	return NewSQLRepository(db, dbx.DialectSQLite, opts...)
}

func NewPostgresRepository(db *sql.DB, opts ...Option) *SQLRepository {
	return NewSQLRepository(db, dbx.DialectPostgres, opts...)
}

func (r *SQLRepository) q(query string) string {
	return dbx.Rebind(r.dialect, query)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, common.ErrStorageUnavailable, err)
}

type stagedAttachment struct {
	a    models.Attachment
	data []byte
}

// Append persists p as a new entry and returns its id. Every attachment is
// read up front; if one cannot be read nothing is written.
func (r *SQLRepository) Append(ctx context.Context, p models.Payload) (int64, error) {
	staged := make([]stagedAttachment, 0, len(p.Attachments))
	for _, a := range p.Attachments {
		data, err := models.ReadBlob(a.Content)
		if err != nil {
			return 0, fmt.Errorf("append: %w: attachment %q: %v", common.ErrAttachmentRead, a.Name, err)
		}
		data, err = r.seal(data)
		if err != nil {
			return 0, storageErr("append: seal attachment", err)
		}
		staged = append(staged, stagedAttachment{a: a, data: data})
	}

	fields := p.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return 0, fmt.Errorf("append: marshal fields: %w", err)
	}
	fieldsJSON, err = r.seal(fieldsJSON)
	if err != nil {
		return 0, storageErr("append: seal fields", err)
	}

	createdAt := r.clock.Now()

	var id int64
	err = dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		err := tx.QueryRowContext(ctx, r.q(`
			INSERT INTO queue_entries (submission_id, fields, submitted_at, created_at)
			VALUES (?, ?, ?, ?)
			RETURNING id
		`), p.SubmissionID, fieldsJSON, p.SubmittedAt.UnixNano(), createdAt.UnixNano()).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}

		for i, s := range staged {
			_, err := tx.ExecContext(ctx, r.q(`
				INSERT INTO queue_attachments (entry_id, position, name, type, size, data)
				VALUES (?, ?, ?, ?, ?, ?)
			`), id, i, s.a.Name, s.a.Type, s.a.Size, s.data)
			if err != nil {
				return fmt.Errorf("insert attachment %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, storageErr("append", err)
	}

	return id, nil
}

// ListAll returns every entry in id order. Attachment content is read lazily.
// Entries that cannot be restored are returned with ReadErr set; the error
// return is reserved for a store that cannot be queried.
func (r *SQLRepository) ListAll(ctx context.Context) ([]models.QueueEntry, error) {
	result := []models.QueueEntry{}

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rows, err := tx.QueryContext(ctx, r.q(`
			SELECT id, submission_id, fields, submitted_at, created_at
			FROM queue_entries
			ORDER BY id
		`))
		if err != nil {
			return fmt.Errorf("select entries: %w", err)
		}
		defer rows.Close()

		index := make(map[int64]int)
		for rows.Next() {
			e, err := r.scanEntry(rows)
			if err != nil {
				return err
			}
			index[e.ID] = len(result)
			result = append(result, *e)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate entries: %w", err)
		}
		if len(result) == 0 {
			return nil
		}

		arows, err := tx.QueryContext(ctx, r.q(`
			SELECT entry_id, position, name, type, size
			FROM queue_attachments
			ORDER BY entry_id, position
		`))
		if err != nil {
			return fmt.Errorf("select attachments: %w", err)
		}
		defer arows.Close()

		for arows.Next() {
			entryID, a, err := r.scanAttachment(arows)
			if err != nil {
				return err
			}
			i, ok := index[entryID]
			if !ok {
				continue
			}
			result[i].Payload.Attachments = append(result[i].Payload.Attachments, a)
		}
		return arows.Err()
	})
	if err != nil {
		return nil, storageErr("list queue", err)
	}

	return result, nil
}

// Get returns one entry or common.ErrNotFound. An unrestorable entry comes
// back with ReadErr set, as in ListAll.
func (r *SQLRepository) Get(ctx context.Context, id int64) (*models.QueueEntry, error) {
	var entry *models.QueueEntry

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rows, err := tx.QueryContext(ctx, r.q(`
			SELECT id, submission_id, fields, submitted_at, created_at
			FROM queue_entries
			WHERE id = ?
		`), id)
		if err != nil {
			return fmt.Errorf("select entry: %w", err)
		}
		defer rows.Close()

		if !rows.Next() {
			return rows.Err()
		}
		entry, err = r.scanEntry(rows)
		if err != nil {
			return err
		}
		rows.Close()

		arows, err := tx.QueryContext(ctx, r.q(`
			SELECT entry_id, position, name, type, size
			FROM queue_attachments
			WHERE entry_id = ?
			ORDER BY position
		`), id)
		if err != nil {
			return fmt.Errorf("select attachments: %w", err)
		}
		defer arows.Close()

		for arows.Next() {
			_, a, err := r.scanAttachment(arows)
			if err != nil {
				return err
			}
			entry.Payload.Attachments = append(entry.Payload.Attachments, a)
		}
		return arows.Err()
	})
	if err != nil {
		return nil, storageErr(fmt.Sprintf("get entry %d", id), err)
	}
	if entry == nil {
		return nil, fmt.Errorf("entry %d: %w", id, common.ErrNotFound)
	}

	return entry, nil
}

// Remove deletes an entry with its attachments. Removing a missing id is a no-op.
func (r *SQLRepository) Remove(ctx context.Context, id int64) error {
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, r.q(`DELETE FROM queue_attachments WHERE entry_id = ?`), id); err != nil {
			return fmt.Errorf("delete attachments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, r.q(`DELETE FROM queue_entries WHERE id = ?`), id); err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return storageErr(fmt.Sprintf("remove entry %d", id), err)
	}
	return nil
}

func (r *SQLRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_entries`).Scan(&n); err != nil {
		return 0, storageErr("count queue", err)
	}
	return n, nil
}

func (r *SQLRepository) scanEntry(rows *sql.Rows) (*models.QueueEntry, error) {
	var (
		e           models.QueueEntry
		fields      []byte
		submittedAt int64
		createdAt   int64
	)
	if err := rows.Scan(&e.ID, &e.Payload.SubmissionID, &fields, &submittedAt, &createdAt); err != nil {
		return nil, fmt.Errorf("scan entry: %w", err)
	}

	e.Payload.SubmittedAt = time.Unix(0, submittedAt).UTC()
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	e.Payload.Attachments = []models.Attachment{}

	// A row that cannot be restored is reported on the entry so the rest of
	// the queue stays usable.
	plain, err := r.open(fields)
	if err != nil {
		e.ReadErr = fmt.Errorf("%w: open fields of entry %d: %v", common.ErrStorageUnavailable, e.ID, err)
		return &e, nil
	}
	if err := json.Unmarshal(plain, &e.Payload.Fields); err != nil {
		e.ReadErr = fmt.Errorf("%w: decode fields of entry %d: %v", common.ErrStorageUnavailable, e.ID, err)
		return &e, nil
	}
	return &e, nil
}

func (r *SQLRepository) scanAttachment(rows *sql.Rows) (int64, models.Attachment, error) {
	var (
		entryID  int64
		position int
		a        models.Attachment
	)
	if err := rows.Scan(&entryID, &position, &a.Name, &a.Type, &a.Size); err != nil {
		return 0, a, fmt.Errorf("scan attachment: %w", err)
	}
	a.Content = &storedBlob{repo: r, entryID: entryID, position: position}
	return entryID, a, nil
}

func (r *SQLRepository) seal(b []byte) ([]byte, error) {
	if r.sealer == nil {
		return b, nil
	}
	return r.sealer.Seal(b)
}

func (r *SQLRepository) open(b []byte) ([]byte, error) {
	if r.sealer == nil {
		return b, nil
	}
	return r.sealer.Open(b)
}

// storedBlob reads attachment bytes from the store on Open.
type storedBlob struct {
	repo     *SQLRepository
	entryID  int64
	position int
}

func (b *storedBlob) Open() (io.ReadCloser, error) {
	var data []byte
	err := b.repo.db.QueryRowContext(context.Background(), b.repo.q(`
		SELECT data FROM queue_attachments WHERE entry_id = ? AND position = ?
	`), b.entryID, b.position).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: entry %d attachment %d is gone", common.ErrAttachmentRead, b.entryID, b.position)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: entry %d attachment %d: %v", common.ErrAttachmentRead, b.entryID, b.position, err)
	}

	plain, err := b.repo.open(data)
	if err != nil {
		return nil, fmt.Errorf("%w: entry %d attachment %d: %v", common.ErrAttachmentRead, b.entryID, b.position, err)
	}
	return io.NopCloser(bytes.NewReader(plain)), nil
}
