package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repositoryTimeout = 5 * time.Second

var categoryColumns = map[Category]string{
	CategoryImages:    "images_bytes",
	CategoryDocuments: "documents_bytes",
	CategoryVideos:    "videos_bytes",
	CategoryOther:     "other_bytes",
}

// Repository persists usage counters in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a usage repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Apply adds d to userID's counters in one statement, creating the row with
// totalBytes capacity on first use. Byte counters never drop below zero.
func (r *Repository) Apply(ctx context.Context, userID string, totalBytes int64, d Delta) error {
	category := d.Category
	if category == "" {
		category = CategoryOther
	}
	column, ok := categoryColumns[category]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	activity := make([]int64, 7)
	activity[d.Weekday] = 1

	query := `
INSERT INTO usage_stats (
    user_id, total_storage_bytes, used_storage_bytes,
    files_uploaded, files_downloaded, files_deleted,
    ` + column + `, activity_by_weekday, last_active, updated_at)
VALUES ($1, $2, GREATEST($3::BIGINT, 0), $4, $5, $6, GREATEST($3::BIGINT, 0), $7, $8, NOW())
ON CONFLICT (user_id) DO UPDATE SET
    used_storage_bytes = GREATEST(usage_stats.used_storage_bytes + $3, 0),
    files_uploaded     = usage_stats.files_uploaded + $4,
    files_downloaded   = usage_stats.files_downloaded + $5,
    files_deleted      = usage_stats.files_deleted + $6,
    ` + column + ` = GREATEST(usage_stats.` + column + ` + $3, 0),
    activity_by_weekday[$9] = usage_stats.activity_by_weekday[$9] + 1,
    last_active        = $8,
    updated_at         = NOW();`

	_, err := r.pool.Exec(ctx, query,
		userID, totalBytes, d.UsedBytes,
		d.Uploaded, d.Downloaded, d.Deleted,
		activity, d.At, int(d.Weekday)+1,
	)
	if err != nil {
		return fmt.Errorf("apply usage delta: %w", err)
	}
	return nil
}

// Get returns userID's record. found is false when the user has no row yet.
func (r *Repository) Get(ctx context.Context, userID string) (rec Record, found bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `
SELECT user_id, total_storage_bytes, used_storage_bytes,
       files_uploaded, files_downloaded, files_deleted,
       images_bytes, documents_bytes, videos_bytes, other_bytes,
       activity_by_weekday, last_active
FROM usage_stats
WHERE user_id = $1;`

	var activity []int64
	err = r.pool.QueryRow(ctx, query, userID).Scan(
		&rec.UserID,
		&rec.TotalStorageBytes,
		&rec.UsedStorageBytes,
		&rec.FilesUploaded,
		&rec.FilesDownloaded,
		&rec.FilesDeleted,
		&rec.ImagesBytes,
		&rec.DocumentsBytes,
		&rec.VideosBytes,
		&rec.OtherBytes,
		&activity,
		&rec.LastActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("get usage: %w", err)
	}
	copy(rec.ActivityByWeekday[:], activity)
	return rec, true, nil
}
