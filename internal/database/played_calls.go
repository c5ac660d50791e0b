package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// PlayedCallRow is one entry of the played-call log.
type PlayedCallRow struct {
	ID             int64     `json:"id"`
	CallID         int       `json:"callId"`
	SystemID       int       `json:"system"`
	TalkgroupID    int       `json:"talkgroup"`
	SystemLabel    string    `json:"systemLabel"`
	TalkgroupLabel string    `json:"talkgroupLabel"`
	TalkgroupName  string    `json:"talkgroupName"`
	CallTime       time.Time `json:"callTime"`
	Frequency      *int64    `json:"frequency,omitempty"`
	Source         *int      `json:"source,omitempty"`
	Duration       *float32  `json:"duration,omitempty"`
	Patches        []int32   `json:"patches,omitempty"`
	AudioKey       *string   `json:"audioKey,omitempty"`
	Action         string    `json:"action"`
	LoggedAt       time.Time `json:"loggedAt"`
}

// InsertPlayedCalls batch-inserts log rows using CopyFrom.
func (db *DB) InsertPlayedCalls(ctx context.Context, rows []PlayedCallRow) (int64, error) {
	copyRows := make([][]any, len(rows))
	for i, r := range rows {
		copyRows[i] = []any{
			r.CallID, r.SystemID, r.TalkgroupID, r.SystemLabel, r.TalkgroupLabel,
			r.TalkgroupName, r.CallTime, r.Frequency, r.Source, r.Duration,
			r.Patches, r.AudioKey, r.Action, r.LoggedAt,
		}
	}

	return db.Pool.CopyFrom(ctx,
		pgx.Identifier{"played_calls"},
		[]string{
			"call_id", "system_id", "talkgroup_id", "system_label", "talkgroup_label",
			"talkgroup_name", "call_time", "frequency", "source", "duration",
			"patches", "audio_key", "action", "logged_at",
		},
		pgx.CopyFromRows(copyRows),
	)
}

// PlayedCallFilter narrows ListPlayedCalls. Zero values skip the filter.
type PlayedCallFilter struct {
	System    *int
	Talkgroup *int
	Action    string
	Limit     int
	Offset    int
}

const playedCallColumns = `id, call_id, system_id, talkgroup_id, system_label, talkgroup_label,
	talkgroup_name, call_time, frequency, source, duration, patches, audio_key, action, logged_at`

func scanPlayedCall(row pgx.Row) (PlayedCallRow, error) {
	var r PlayedCallRow
	err := row.Scan(&r.ID, &r.CallID, &r.SystemID, &r.TalkgroupID, &r.SystemLabel, &r.TalkgroupLabel,
		&r.TalkgroupName, &r.CallTime, &r.Frequency, &r.Source, &r.Duration, &r.Patches, &r.AudioKey,
		&r.Action, &r.LoggedAt)
	return r, err
}

// ListPlayedCalls returns log rows newest first along with the total match count.
func (db *DB) ListPlayedCalls(ctx context.Context, f PlayedCallFilter) ([]PlayedCallRow, int, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	args := []any{pqIntPtr(f.System), pqIntPtr(f.Talkgroup), pqString(f.Action)}
	where := `WHERE ($1::int IS NULL OR system_id = $1)
		AND ($2::int IS NULL OR talkgroup_id = $2)
		AND ($3::text IS NULL OR action = $3)`

	var total int
	if err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM played_calls `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count played calls: %w", err)
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT `+playedCallColumns+` FROM played_calls `+where+
			` ORDER BY logged_at DESC, id DESC LIMIT $4 OFFSET $5`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list played calls: %w", err)
	}
	defer rows.Close()

	out := []PlayedCallRow{}
	for rows.Next() {
		r, err := scanPlayedCall(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// AudioKey returns the archive key of the most recent archived entry for a call.
func (db *DB) AudioKey(ctx context.Context, callID int) (string, error) {
	var key string
	err := db.Pool.QueryRow(ctx,
		`SELECT audio_key FROM played_calls
		 WHERE call_id = $1 AND audio_key IS NOT NULL
		 ORDER BY logged_at DESC LIMIT 1`, callID).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return key, err
}

func pqIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func pqString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
