package overlay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/endesomnia/cloud-sub000/internal/events"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repositoryTimeout = 5 * time.Second

// Repository persists starred and shared items in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs an overlay repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Star inserts the star or returns the existing row for the same user, bucket and file.
func (r *Repository) Star(ctx context.Context, userID, bucketName, fileName string, itemType ItemType) (StarredItem, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	// The no-op update makes RETURNING yield the surviving row on conflict.
	query := `
INSERT INTO starred_items (id, user_id, bucket_name, file_name, item_type)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT ON CONSTRAINT starred_items_owner_ref_key
DO UPDATE SET item_type = starred_items.item_type
RETURNING id, user_id, bucket_name, file_name, item_type, created_at;`

	var item StarredItem
	err := r.pool.QueryRow(ctx, query, uuid.New(), userID, bucketName, fileName, string(itemType)).Scan(
		&item.ID, &item.UserID, &item.BucketName, &item.FileName, &item.Type, &item.CreatedAt,
	)
	if err != nil {
		return StarredItem{}, fmt.Errorf("star item: %w", err)
	}
	return item, nil
}

// Unstar deletes the star only when it belongs to userID.
func (r *Repository) Unstar(ctx context.Context, id uuid.UUID, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM starred_items WHERE id = $1 AND user_id = $2;`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("unstar item: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListStarred returns the user's stars, newest first.
func (r *Repository) ListStarred(ctx context.Context, userID string) ([]StarredItem, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, bucket_name, file_name, item_type, created_at
FROM starred_items
WHERE user_id = $1
ORDER BY created_at DESC;`, userID)
	if err != nil {
		return nil, fmt.Errorf("list starred: %w", err)
	}
	defer rows.Close()

	items := []StarredItem{}
	for rows.Next() {
		var item StarredItem
		if err := rows.Scan(&item.ID, &item.UserID, &item.BucketName, &item.FileName, &item.Type, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan starred: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate starred: %w", err)
	}
	return items, nil
}

// IsStarred reports whether userID starred bucketName/fileName.
func (r *Repository) IsStarred(ctx context.Context, userID, bucketName, fileName string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, `
SELECT EXISTS (
    SELECT 1 FROM starred_items
    WHERE user_id = $1 AND bucket_name = $2 AND file_name = $3
);`, userID, bucketName, fileName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check starred: %w", err)
	}
	return exists, nil
}

// Share inserts the share or returns the existing row for the same 4-tuple.
func (r *Repository) Share(ctx context.Context, bucketName, fileName, sharedByID, sharedToID string) (SharedItem, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `
INSERT INTO shared_items (id, bucket_name, file_name, shared_by_id, shared_to_id)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT ON CONSTRAINT shared_items_tuple_key
DO UPDATE SET shared_to_id = shared_items.shared_to_id
RETURNING id, bucket_name, file_name, shared_by_id, shared_to_id, created_at;`

	var item SharedItem
	err := r.pool.QueryRow(ctx, query, uuid.New(), bucketName, fileName, sharedByID, sharedToID).Scan(
		&item.ID, &item.BucketName, &item.FileName, &item.SharedByID, &item.SharedToID, &item.CreatedAt,
	)
	if err != nil {
		return SharedItem{}, fmt.Errorf("share item: %w", err)
	}
	return item, nil
}

// Unshare deletes the share when userID is either party.
func (r *Repository) Unshare(ctx context.Context, id uuid.UUID, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
DELETE FROM shared_items
WHERE id = $1 AND (shared_by_id = $2 OR shared_to_id = $2);`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("unshare item: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetShare fetches a share visible to userID.
func (r *Repository) GetShare(ctx context.Context, id uuid.UUID, userID string) (SharedItem, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	var item SharedItem
	err := r.pool.QueryRow(ctx, `
SELECT id, bucket_name, file_name, shared_by_id, shared_to_id, created_at
FROM shared_items
WHERE id = $1 AND (shared_by_id = $2 OR shared_to_id = $2);`, id, userID).Scan(
		&item.ID, &item.BucketName, &item.FileName, &item.SharedByID, &item.SharedToID, &item.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SharedItem{}, ErrShareNotFound
		}
		return SharedItem{}, fmt.Errorf("get share: %w", err)
	}
	return item, nil
}

// ListSharedWithUser returns shares addressed to userID, newest first.
func (r *Repository) ListSharedWithUser(ctx context.Context, userID string) ([]SharedItem, error) {
	return r.listShared(ctx, "shared_to_id", userID)
}

// ListSharedByUser returns shares created by userID, newest first.
func (r *Repository) ListSharedByUser(ctx context.Context, userID string) ([]SharedItem, error) {
	return r.listShared(ctx, "shared_by_id", userID)
}

func (r *Repository) listShared(ctx context.Context, column, userID string) ([]SharedItem, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	// column is one of two constants above, never request input.
	rows, err := r.pool.Query(ctx, `
SELECT id, bucket_name, file_name, shared_by_id, shared_to_id, created_at
FROM shared_items
WHERE `+column+` = $1
ORDER BY created_at DESC;`, userID)
	if err != nil {
		return nil, fmt.Errorf("list shared: %w", err)
	}
	defer rows.Close()

	items := []SharedItem{}
	for rows.Next() {
		var item SharedItem
		if err := rows.Scan(&item.ID, &item.BucketName, &item.FileName, &item.SharedByID, &item.SharedToID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan shared: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shared: %w", err)
	}
	return items, nil
}

// IsShared reports whether bucketName/fileName is shared with userID as either party.
func (r *Repository) IsShared(ctx context.Context, bucketName, fileName, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, `
SELECT EXISTS (
    SELECT 1 FROM shared_items
    WHERE bucket_name = $1 AND file_name = $2
      AND (shared_by_id = $3 OR shared_to_id = $3)
);`, bucketName, fileName, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check shared: %w", err)
	}
	return exists, nil
}

// Relocate repoints rows from old to updated. Rows whose new position would
// collide with an existing row are dropped instead.
func (r *Repository) Relocate(ctx context.Context, old, updated events.ObjectRef) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	var moved int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE starred_items s
SET bucket_name = $3, file_name = $4
WHERE s.bucket_name = $1 AND s.file_name = $2
  AND NOT EXISTS (
      SELECT 1 FROM starred_items d
      WHERE d.user_id = s.user_id AND d.bucket_name = $3 AND d.file_name = $4
  );`, old.Bucket, old.Key, updated.Bucket, updated.Key)
		if err != nil {
			return fmt.Errorf("relocate starred: %w", err)
		}
		moved += tag.RowsAffected()

		tag, err = tx.Exec(ctx, `
UPDATE shared_items s
SET bucket_name = $3, file_name = $4
WHERE s.bucket_name = $1 AND s.file_name = $2
  AND NOT EXISTS (
      SELECT 1 FROM shared_items d
      WHERE d.shared_by_id = s.shared_by_id AND d.shared_to_id = s.shared_to_id
        AND d.bucket_name = $3 AND d.file_name = $4
  );`, old.Bucket, old.Key, updated.Bucket, updated.Key)
		if err != nil {
			return fmt.Errorf("relocate shared: %w", err)
		}
		moved += tag.RowsAffected()

		return deleteRef(ctx, tx, old)
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

// Forget deletes every star and share pointing at ref.
func (r *Repository) Forget(ctx context.Context, ref events.ObjectRef) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	var removed int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM starred_items WHERE bucket_name = $1 AND file_name = $2;`,
			`DELETE FROM shared_items WHERE bucket_name = $1 AND file_name = $2;`,
		} {
			tag, err := tx.Exec(ctx, stmt, ref.Bucket, ref.Key)
			if err != nil {
				return fmt.Errorf("forget reference: %w", err)
			}
			removed += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// ForgetBucket deletes every star and share inside bucketName.
func (r *Repository) ForgetBucket(ctx context.Context, bucketName string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	var removed int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM starred_items WHERE bucket_name = $1;`,
			`DELETE FROM shared_items WHERE bucket_name = $1;`,
		} {
			tag, err := tx.Exec(ctx, stmt, bucketName)
			if err != nil {
				return fmt.Errorf("forget bucket: %w", err)
			}
			removed += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func deleteRef(ctx context.Context, tx pgx.Tx, ref events.ObjectRef) error {
	if _, err := tx.Exec(ctx, `DELETE FROM starred_items WHERE bucket_name = $1 AND file_name = $2;`, ref.Bucket, ref.Key); err != nil {
		return fmt.Errorf("drop stale starred: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM shared_items WHERE bucket_name = $1 AND file_name = $2;`, ref.Bucket, ref.Key); err != nil {
		return fmt.Errorf("drop stale shared: %w", err)
	}
	return nil
}
