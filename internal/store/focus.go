package store

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const dateLayout = "2006-01-02"

type FocusRecord struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	TaskName     string    `json:"task_name"`
	DurationMins int       `json:"duration_mins"`
	RecordDate   string    `json:"record_date"`
	CreatedAt    time.Time `json:"created_at"`
}

// DaySummary aggregates one user's focus sessions on a single date.
type DaySummary struct {
	Date      string `json:"date"`
	Sessions  int    `json:"sessions"`
	TotalMins int    `json:"total_mins"`
}

// AddFocusRecord stores a finished focus session dated on.
func (s *SQLiteStore) AddFocusRecord(ctx context.Context, userID int64, task string, mins int, on time.Time) (FocusRecord, error) {
	if mins <= 0 {
		return FocusRecord{}, errors.New("duration must be positive")
	}
	rec := FocusRecord{
		UserID:       userID,
		TaskName:     strings.TrimSpace(task),
		DurationMins: mins,
		RecordDate:   on.Format(dateLayout),
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO focus_records(user_id, task_name, duration_mins, record_date) VALUES(?,?,?,?)",
		rec.UserID, rec.TaskName, rec.DurationMins, rec.RecordDate)
	if err != nil {
		return FocusRecord{}, errors.Wrap(err, "insert focus record")
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return FocusRecord{}, errors.Wrap(err, "insert focus record id")
	}
	rec.CreatedAt = time.Now().UTC()
	return rec, nil
}

// DayAggregate sums the user's sessions on the given date.
func (s *SQLiteStore) DayAggregate(ctx context.Context, userID int64, on time.Time) (DaySummary, error) {
	sum := DaySummary{Date: on.Format(dateLayout)}
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(duration_mins), 0) FROM focus_records WHERE user_id=? AND record_date=?",
		userID, sum.Date).Scan(&sum.Sessions, &sum.TotalMins)
	if err != nil {
		return DaySummary{}, errors.Wrap(err, "day aggregate")
	}
	return sum, nil
}

// RecordsByMonth lists the user's records for month ("2006-01"), newest first.
func (s *SQLiteStore) RecordsByMonth(ctx context.Context, userID int64, month string) ([]FocusRecord, error) {
	if _, err := time.Parse("2006-01", month); err != nil {
		return nil, errors.Wrap(err, "bad month")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, COALESCE(task_name, ''), duration_mins, record_date, created_at
		   FROM focus_records
		  WHERE user_id=? AND substr(record_date, 1, 7)=?
		  ORDER BY record_date DESC, id DESC`,
		userID, month)
	if err != nil {
		return nil, errors.Wrap(err, "records by month")
	}
	defer rows.Close()

	out := make([]FocusRecord, 0)
	for rows.Next() {
		var r FocusRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.TaskName, &r.DurationMins, &r.RecordDate, &r.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan focus record")
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterate focus records")
}
