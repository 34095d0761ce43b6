package loans

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"

	"librarydesk/pkg/models"
)

const (
	DefaultLoanPeriod      = 14 * 24 * time.Hour
	DefaultExtensionPeriod = 7 * 24 * time.Hour
)

// Policy holds the tunable lending rules.
type Policy struct {
	LoanPeriod      time.Duration
	ExtensionPeriod time.Duration
	// MaintenanceSticky keeps a book in maintenance when a copy comes back.
	// Without it a return flips the book to available.
	MaintenanceSticky bool
}

func DefaultPolicy() Policy {
	return Policy{
		LoanPeriod:        DefaultLoanPeriod,
		ExtensionPeriod:   DefaultExtensionPeriod,
		MaintenanceSticky: true,
	}
}

// Service runs the borrow, return and extend operations. Each one reads and
// writes inside a single transaction; the database opens transactions with
// BEGIN IMMEDIATE so concurrent borrowers queue on the write lock instead of
// racing on the copy count.
type Service struct {
	DB     *sql.DB
	Clock  Clock
	Policy Policy
	Logger *slog.Logger
}

func NewService(db *sql.DB, clock Clock, policy Policy, logger *slog.Logger) *Service {
	if clock == nil {
		clock = SystemClock{}
	}
	if policy.LoanPeriod <= 0 {
		policy.LoanPeriod = DefaultLoanPeriod
	}
	if policy.ExtensionPeriod <= 0 {
		policy.ExtensionPeriod = DefaultExtensionPeriod
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{DB: db, Clock: clock, Policy: policy, Logger: logger.With("component", "loans")}
}

// Borrow lends one copy of bookID to the member acting as userID.
func (s *Service) Borrow(ctx context.Context, bookID int64, userID string) (*models.BorrowRecord, error) {
	var rec *models.BorrowRecord
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		book, err := loadBook(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if book == nil {
			return ErrNotFound
		}
		memberID, err := memberIDForUser(ctx, tx, userID)
		if err != nil {
			return err
		}

		if !book.IsAvailable() {
			// a member holding the last copy is told they already have it
			if memberID != 0 {
				if open, err := hasOpenLoan(ctx, tx, bookID, memberID); err != nil {
					return err
				} else if open {
					return ErrAlreadyBorrowed
				}
			}
			return ErrUnavailable
		}
		if memberID == 0 {
			return ErrNotAMember
		}

		open, err := hasOpenLoan(ctx, tx, bookID, memberID)
		if err != nil {
			return err
		}
		if open {
			return ErrAlreadyBorrowed
		}

		now := s.Clock.Now().UTC()
		r := models.BorrowRecord{
			BookID:     bookID,
			MemberID:   memberID,
			BorrowDate: now,
			DueDate:    now.Add(s.Policy.LoanPeriod),
			BookTitle:  book.Title,
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO borrow_records (book_id, member_id, borrow_date, due_date)
			VALUES (?, ?, ?, ?)
		`, r.BookID, r.MemberID, r.BorrowDate, r.DueDate)
		if err != nil {
			var se sqlite3.Error
			if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
				return ErrAlreadyBorrowed
			}
			return fmt.Errorf("insert borrow record: %w", err)
		}
		if r.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		// SET expressions see the old row, so available_copies - 1 = 0
		// means this loan takes the last copy.
		res, err = tx.ExecContext(ctx, `
			UPDATE books
			SET available_copies = available_copies - 1,
			    status = CASE WHEN available_copies - 1 = 0 THEN 'borrowed' ELSE status END,
			    updated_at = ?
			WHERE id = ? AND status = 'available' AND available_copies > 0
		`, now, bookID)
		if err != nil {
			return fmt.Errorf("decrement copies: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("decrement copies rows: %w", err)
		} else if n == 0 {
			return ErrUnavailable
		}

		rec = &r
		return nil
	})
	if err != nil {
		s.logRejected(ctx, "borrow", err, "book_id", bookID, "user_id", userID)
		return nil, err
	}

	s.Logger.InfoContext(ctx, "book borrowed",
		"record_id", rec.ID, "book_id", bookID, "member_id", rec.MemberID, "due_date", rec.DueDate)
	return rec, nil
}

// Return closes an open loan owned by userID and puts the copy back.
func (s *Service) Return(ctx context.Context, recordID int64, userID string) (*models.BorrowRecord, error) {
	var rec *models.BorrowRecord
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		r, err := loadOwnedOpenRecord(ctx, tx, recordID, userID)
		if err != nil {
			return err
		}

		now := s.Clock.Now().UTC()
		res, err := tx.ExecContext(ctx, `
			UPDATE borrow_records SET return_date = ? WHERE id = ? AND return_date IS NULL
		`, now, r.ID)
		if err != nil {
			return fmt.Errorf("set return date: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("close record rows: %w", err)
		} else if n == 0 {
			return ErrNotFound
		}

		// MIN keeps available_copies <= total_copies even if an admin
		// shrank the stock while the copy was out.
		if _, err := tx.ExecContext(ctx, `
			UPDATE books
			SET available_copies = MIN(available_copies + 1, total_copies),
			    status = CASE
			        WHEN status = 'maintenance' AND ? THEN status
			        WHEN MIN(available_copies + 1, total_copies) > 0 THEN 'available'
			        ELSE status
			    END,
			    updated_at = ?
			WHERE id = ?
		`, s.Policy.MaintenanceSticky, now, r.BookID); err != nil {
			return fmt.Errorf("increment copies: %w", err)
		}

		r.ReturnDate = &now
		rec = r
		return nil
	})
	if err != nil {
		s.logRejected(ctx, "return", err, "record_id", recordID, "user_id", userID)
		return nil, err
	}

	s.Logger.InfoContext(ctx, "book returned",
		"record_id", rec.ID, "book_id", rec.BookID, "member_id", rec.MemberID)
	return rec, nil
}

// Extend pushes the due date of a loan that is not yet overdue.
func (s *Service) Extend(ctx context.Context, recordID int64, userID string) (*models.BorrowRecord, error) {
	var rec *models.BorrowRecord
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		r, err := loadOwnedOpenRecord(ctx, tx, recordID, userID)
		if err != nil {
			return err
		}
		if r.IsOverdue(s.Clock.Now()) {
			return ErrCannotExtendOverdue
		}

		due := r.DueDate.Add(s.Policy.ExtensionPeriod)
		if _, err := tx.ExecContext(ctx, `
			UPDATE borrow_records SET due_date = ? WHERE id = ? AND return_date IS NULL
		`, due, r.ID); err != nil {
			return fmt.Errorf("extend due date: %w", err)
		}

		r.DueDate = due
		rec = r
		return nil
	})
	if err != nil {
		s.logRejected(ctx, "extend", err, "record_id", recordID, "user_id", userID)
		return nil, err
	}

	s.Logger.InfoContext(ctx, "loan extended", "record_id", rec.ID, "due_date", rec.DueDate)
	return rec, nil
}

func (s *Service) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin loan tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit loan tx: %w", err)
	}
	return nil
}

func (s *Service) logRejected(ctx context.Context, op string, err error, attrs ...any) {
	attrs = append(attrs, "op", op, "error", err)
	if isBusinessError(err) {
		s.Logger.InfoContext(ctx, "loan operation rejected", attrs...)
		return
	}
	s.Logger.ErrorContext(ctx, "loan operation failed", attrs...)
}

func isBusinessError(err error) bool {
	for _, target := range []error{ErrNotFound, ErrUnavailable, ErrNotAMember, ErrAlreadyBorrowed, ErrCannotExtendOverdue} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadBook(ctx context.Context, q queryer, id int64) (*models.Book, error) {
	var b models.Book
	err := q.QueryRowContext(ctx, `
		SELECT id, title, status, total_copies, available_copies FROM books WHERE id = ?
	`, id).Scan(&b.ID, &b.Title, &b.Status, &b.TotalCopies, &b.AvailableCopies)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load book: %w", err)
	}
	return &b, nil
}

func hasOpenLoan(ctx context.Context, q queryer, bookID, memberID int64) (bool, error) {
	var open bool
	if err := q.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM borrow_records
			WHERE book_id = ? AND member_id = ? AND return_date IS NULL
		)
	`, bookID, memberID).Scan(&open); err != nil {
		return false, fmt.Errorf("check open loan: %w", err)
	}
	return open, nil
}

// memberIDForUser returns 0 when the user has no member record.
func memberIDForUser(ctx context.Context, q queryer, userID string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM members WHERE user_id = ?`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load member: %w", err)
	}
	return id, nil
}

// loadOwnedOpenRecord treats "missing", "someone else's" and "already
// returned" alike, so callers learn nothing about other members' loans.
func loadOwnedOpenRecord(ctx context.Context, q queryer, recordID int64, userID string) (*models.BorrowRecord, error) {
	r, err := scanRecord(q.QueryRowContext(ctx, recordSelect+`
		WHERE r.id = ? AND m.user_id = ? AND r.return_date IS NULL
	`, recordID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load borrow record: %w", err)
	}
	return r, nil
}
