package video

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const videoColumns = "id, filename, storage_path, title, tags_json, transcript, summary, duration, status, created_at, processed_at"

func scanVideo(scanner interface{ Scan(dest ...any) error }) (*Video, error) {
	var (
		id           string
		filename     string
		storagePath  string
		title        sql.NullString
		tagsJSON     sql.NullString
		transcript   sql.NullString
		summary      sql.NullString
		duration     sql.NullFloat64
		statusStr    string
		createdRaw   sql.NullString
		processedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&filename,
		&storagePath,
		&title,
		&tagsJSON,
		&transcript,
		&summary,
		&duration,
		&statusStr,
		&createdRaw,
		&processedRaw,
	); err != nil {
		return nil, err
	}

	item := &Video{
		ID:          id,
		Filename:    filename,
		StoragePath: storagePath,
		Title:       title.String,
		Transcript:  transcript.String,
		Summary:     summary.String,
		Duration:    duration.Float64,
		Status:      Status(statusStr),
		Tags:        []string{},
	}

	if tagsJSON.Valid && tagsJSON.String != "" {
		var tags []string
		if err := json.Unmarshal([]byte(tagsJSON.String), &tags); err == nil && tags != nil {
			item.Tags = tags
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if processedRaw.Valid {
		if processed, err := parseTimeString(processedRaw.String); err == nil {
			item.ProcessedAt = &processed
		}
	}
	return item, nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
