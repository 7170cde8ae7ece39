package video

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"reel/internal/services"
)

// Create inserts a new video record in pending status and returns it.
func (s *Store) Create(ctx context.Context, filename, storagePath string, duration float64) (*Video, error) {
	filename = strings.TrimSpace(filename)
	storagePath = strings.TrimSpace(storagePath)
	if filename == "" {
		return nil, services.Wrap(services.ErrValidation, "store", "create", "filename required", nil)
	}
	if storagePath == "" {
		return nil, services.Wrap(services.ErrValidation, "store", "create", "storage path required", nil)
	}

	id := uuid.NewString()
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO videos (
            id, filename, storage_path, tags_json, duration, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		filename,
		storagePath,
		"[]",
		duration,
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert video: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a video by identifier. A missing video returns (nil, nil).
func (s *Store) GetByID(ctx context.Context, id string) (*Video, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	item, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	return item, nil
}

// List returns videos newest-first, optionally filtered by status and tag.
// A non-positive limit falls back to 50.
func (s *Store) List(ctx context.Context, status Status, tag string, limit int) ([]*Video, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + videoColumns + ` FROM videos`
	var clauses []string
	var args []any
	if status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, status)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	tag = strings.ToLower(strings.TrimSpace(tag))
	videos := make([]*Video, 0)
	for rows.Next() {
		item, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		// Tags live in a JSON column, so tag filtering happens after decode
		// rather than in SQL.
		if tag != "" && !hasTag(item.Tags, tag) {
			continue
		}
		videos = append(videos, item)
		if len(videos) == limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return videos, nil
}

// Update applies the non-nil fields and returns the updated video. Setting
// status ready stamps processed_at. A missing video returns (nil, nil).
func (s *Store) Update(ctx context.Context, id string, update Update) (*Video, error) {
	assignments := make([]string, 0, 8)
	args := make([]any, 0, 8)

	if update.Title != nil {
		assignments = append(assignments, "title = ?")
		args = append(args, *update.Title)
	}
	if update.Tags != nil {
		encoded, err := json.Marshal(normalizeTags(*update.Tags))
		if err != nil {
			return nil, fmt.Errorf("encode tags: %w", err)
		}
		assignments = append(assignments, "tags_json = ?")
		args = append(args, string(encoded))
	}
	if update.Transcript != nil {
		assignments = append(assignments, "transcript = ?")
		args = append(args, *update.Transcript)
	}
	if update.Summary != nil {
		assignments = append(assignments, "summary = ?")
		args = append(args, *update.Summary)
	}
	if update.Duration != nil {
		assignments = append(assignments, "duration = ?")
		args = append(args, *update.Duration)
	}
	if update.Status != nil {
		if _, ok := statusSet[*update.Status]; !ok {
			return nil, fmt.Errorf("update video: unknown status %q", *update.Status)
		}
		assignments = append(assignments, "status = ?")
		args = append(args, *update.Status)
		if *update.Status == StatusReady {
			assignments = append(assignments, "processed_at = ?")
			args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
		}
	}

	if len(assignments) == 0 {
		return s.GetByID(ctx, id)
	}

	assignments = append(assignments, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	args = append(args, id)

	res, err := s.execWithRetry(ctx,
		"UPDATE videos SET "+strings.Join(assignments, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("update video: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update video rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	return s.GetByID(ctx, id)
}

// Delete removes a video record. The boolean reports whether a row existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM videos WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete video: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete video rows affected: %w", err)
	}
	return affected > 0, nil
}

// AllTags returns the distinct set of tags across all videos, sorted.
func (s *Store) AllTags(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT tags_json FROM videos WHERE tags_json != '[]'")
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan tags: %w", err)
		}
		var tags []string
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			continue
		}
		for _, tag := range tags {
			if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
				seen[tag] = struct{}{}
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}

	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out, nil
}

// CountByStatus returns how many videos sit in each status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM videos GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count videos: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

func hasTag(tags []string, want string) bool {
	for _, tag := range tags {
		if strings.EqualFold(strings.TrimSpace(tag), want) {
			return true
		}
	}
	return false
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
