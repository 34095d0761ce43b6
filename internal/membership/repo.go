package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"librarydesk/internal/auth"
	"librarydesk/pkg/models"
)

var (
	ErrDuplicate     = errors.New("member already exists")
	ErrUnknownUser   = errors.New("unknown user")
	ErrInvalidStatus = errors.New("invalid membership status")
)

var validate = validator.New()

const memberSelect = `
	SELECT m.id, m.user_id, m.membership_number, m.membership_status, m.date_joined,
	       TRIM(u.first_name || ' ' || u.last_name) AS full_name
	FROM members m
	JOIN users u ON u.id = m.user_id
`

type Repo struct {
	DB *sqlx.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: sqlx.NewDb(db, "sqlite3")}
}

type NewMember struct {
	UserID           string `validate:"required"`
	MembershipNumber string `validate:"omitempty,max=10,alphanum"`
	MembershipStatus string `validate:"omitempty,oneof=regular premium suspended"`
}

// NewMembershipNumber returns a ten character number like M3F9A01C2B.
func NewMembershipNumber() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "M" + strings.ToUpper(hex[:9])
}

// Create links a member record to a user. An empty number is generated.
func (r *Repo) Create(ctx context.Context, in NewMember) (*models.Member, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	id, err := insertMember(ctx, r.DB, in)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// CreateWithUser writes a new login and its member record in one commit.
// The member fields are validated before anything is written.
func (r *Repo) CreateWithUser(ctx context.Context, u auth.User, in NewMember) (*models.Member, error) {
	in.UserID = u.ID
	if err := in.normalize(); err != nil {
		return nil, err
	}

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create member: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := auth.CreateUserTx(ctx, tx.Tx, u); err != nil {
		return nil, err
	}
	id, err := insertMember(ctx, tx, in)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create member: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (in *NewMember) normalize() error {
	in.MembershipNumber = strings.ToUpper(strings.TrimSpace(in.MembershipNumber))
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("validate member: %w", err)
	}
	if in.MembershipNumber == "" {
		in.MembershipNumber = NewMembershipNumber()
	}
	if in.MembershipStatus == "" {
		in.MembershipStatus = models.MembershipRegular
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMember(ctx context.Context, ex execer, in NewMember) (int64, error) {
	res, err := ex.ExecContext(ctx, `
		INSERT INTO members (user_id, membership_number, membership_status)
		VALUES (?, ?, ?)
	`, in.UserID, in.MembershipNumber, in.MembershipStatus)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) {
			switch se.ExtendedCode {
			case sqlite3.ErrConstraintUnique:
				return 0, fmt.Errorf("insert member: %w", ErrDuplicate)
			case sqlite3.ErrConstraintForeignKey:
				return 0, fmt.Errorf("insert member: %w", ErrUnknownUser)
			}
		}
		return 0, fmt.Errorf("insert member: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*models.Member, error) {
	return r.getOne(ctx, "get member", `WHERE m.id = ?`, id)
}

// GetByUserID resolves the member acting for a login identity.
func (r *Repo) GetByUserID(ctx context.Context, userID string) (*models.Member, error) {
	return r.getOne(ctx, "get member by user", `WHERE m.user_id = ?`, userID)
}

func (r *Repo) GetByNumber(ctx context.Context, number string) (*models.Member, error) {
	return r.getOne(ctx, "get member by number", `WHERE m.membership_number = ?`,
		strings.ToUpper(strings.TrimSpace(number)))
}

func (r *Repo) getOne(ctx context.Context, op, where string, arg any) (*models.Member, error) {
	var m models.Member
	err := r.DB.GetContext(ctx, &m, memberSelect+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &m, nil
}

// List filters by status when set, newest members first.
func (r *Repo) List(ctx context.Context, status string) ([]models.Member, error) {
	query := memberSelect
	var args []any
	if status != "" {
		query += ` WHERE m.membership_status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY m.date_joined DESC, m.id DESC`

	out := []models.Member{}
	if err := r.DB.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return out, nil
}

func (r *Repo) SetStatus(ctx context.Context, id int64, status string) (*models.Member, error) {
	if !models.ValidMembershipStatus(status) {
		return nil, ErrInvalidStatus
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE members SET membership_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return nil, fmt.Errorf("set membership status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("set membership status rows: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}
