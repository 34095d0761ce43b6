package loans

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"librarydesk/internal/notify"
	"librarydesk/pkg/models"
)

const recordSelect = `
	SELECT r.id, r.book_id, r.member_id, r.borrow_date, r.due_date, r.return_date, b.title
	FROM borrow_records r
	JOIN members m ON m.id = r.member_id
	JOIN books b ON b.id = r.book_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.BorrowRecord, error) {
	var (
		r        models.BorrowRecord
		returned sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.BookID, &r.MemberID, &r.BorrowDate, &r.DueDate, &returned, &r.BookTitle); err != nil {
		return nil, err
	}
	if returned.Valid {
		t := returned.Time
		r.ReturnDate = &t
	}
	return &r, nil
}

// Repo is the read side of the loan ledger.
type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

type MemberLoans struct {
	Active   []models.BorrowRecord `json:"active_loans"`
	Returned []models.BorrowRecord `json:"return_history"`
}

// MemberIDForUser returns 0 when the user has not joined the library.
func (r *Repo) MemberIDForUser(ctx context.Context, userID string) (int64, error) {
	return memberIDForUser(ctx, r.DB, userID)
}

func (r *Repo) Get(ctx context.Context, id int64) (*models.BorrowRecord, error) {
	rec, err := scanRecord(r.DB.QueryRowContext(ctx, recordSelect+` WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get borrow record: %w", err)
	}
	return rec, nil
}

// ListByMember splits a member's records into open loans and history,
// newest borrow first.
func (r *Repo) ListByMember(ctx context.Context, memberID int64) (MemberLoans, error) {
	out := MemberLoans{
		Active:   []models.BorrowRecord{},
		Returned: []models.BorrowRecord{},
	}

	records, err := r.list(ctx, `WHERE r.member_id = ? ORDER BY r.borrow_date DESC, r.id DESC`, memberID)
	if err != nil {
		return out, fmt.Errorf("list member loans: %w", err)
	}
	for _, rec := range records {
		if rec.IsOpen() {
			out.Active = append(out.Active, rec)
		} else {
			out.Returned = append(out.Returned, rec)
		}
	}
	return out, nil
}

// ListOverdue evaluates IsOverdue against now for every open loan.
func (r *Repo) ListOverdue(ctx context.Context, now time.Time) ([]models.BorrowRecord, error) {
	records, err := r.list(ctx, `WHERE r.return_date IS NULL ORDER BY r.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list open loans: %w", err)
	}

	out := make([]models.BorrowRecord, 0, len(records))
	for _, rec := range records {
		if rec.IsOverdue(now) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// DueReminders lists open loans whose due date falls before now+within,
// overdue loans included, with the user to notify.
func (r *Repo) DueReminders(ctx context.Context, now time.Time, within time.Duration) ([]notify.Reminder, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT r.id, b.title, r.due_date, m.user_id
		FROM borrow_records r
		JOIN members m ON m.id = r.member_id
		JOIN books b ON b.id = r.book_id
		WHERE r.return_date IS NULL
		ORDER BY r.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("due reminders: %w", err)
	}
	defer rows.Close()

	cutoff := now.Add(within)
	var out []notify.Reminder
	for rows.Next() {
		var rem notify.Reminder
		if err := rows.Scan(&rem.RecordID, &rem.BookTitle, &rem.DueDate, &rem.UserID); err != nil {
			return nil, fmt.Errorf("scan due reminder: %w", err)
		}
		if rem.DueDate.After(cutoff) {
			continue
		}
		rem.Overdue = models.IsOverdue(nil, rem.DueDate, now)
		out = append(out, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func (r *Repo) HasOpenLoan(ctx context.Context, bookID int64, userID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM borrow_records r
			JOIN members m ON m.id = r.member_id
			WHERE r.book_id = ? AND m.user_id = ? AND r.return_date IS NULL
		)
	`, bookID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has open loan: %w", err)
	}
	return exists, nil
}

func (r *Repo) CountOpenLoans(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM borrow_records r
		JOIN members m ON m.id = r.member_id
		WHERE m.user_id = ? AND r.return_date IS NULL
	`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open loans: %w", err)
	}
	return n, nil
}

func (r *Repo) list(ctx context.Context, tail string, args ...any) ([]models.BorrowRecord, error) {
	rows, err := r.DB.QueryContext(ctx, recordSelect+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.BorrowRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan borrow record: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}
