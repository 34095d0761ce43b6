package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"librarydesk/pkg/models"
)

var (
	ErrDuplicate    = errors.New("duplicate entry")
	ErrCopiesOnLoan = errors.New("more copies on loan than the new total")
)

var dialect = goqu.Dialect("sqlite3")

var validate = validator.New()

type Repo struct {
	DB *sqlx.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: sqlx.NewDb(db, "sqlite3")}
}

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

type NewCategory struct {
	Name        string `validate:"required,max=100"`
	Description string
}

func (r *Repo) CreateCategory(ctx context.Context, in NewCategory) (*models.Category, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("validate category: %w", err)
	}

	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO categories (name, description) VALUES (?, ?)
	`, in.Name, in.Description)
	if err != nil {
		return nil, fmt.Errorf("insert category: %w", mapConstraint(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return r.GetCategory(ctx, id)
}

func (r *Repo) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	var c models.Category
	err := r.DB.GetContext(ctx, &c, `
		SELECT c.id, c.name, c.description,
		       (SELECT COUNT(*) FROM books b WHERE b.category_id = c.id) AS book_count
		FROM categories c
		WHERE c.id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

// CategoryByName matches names case-insensitively.
func (r *Repo) CategoryByName(ctx context.Context, name string) (*models.Category, error) {
	var id int64
	err := r.DB.GetContext(ctx, &id, `
		SELECT id FROM categories WHERE LOWER(name) = LOWER(?) ORDER BY id LIMIT 1
	`, strings.TrimSpace(name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("category by name: %w", err)
	}
	return r.GetCategory(ctx, id)
}

// ListCategories returns every category with its number of books.
func (r *Repo) ListCategories(ctx context.Context) ([]models.Category, error) {
	out := []models.Category{}
	err := r.DB.SelectContext(ctx, &out, `
		SELECT c.id, c.name, c.description, COUNT(b.id) AS book_count
		FROM categories c
		LEFT JOIN books b ON b.category_id = c.id
		GROUP BY c.id
		ORDER BY c.name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

// DeleteCategory removes a category; its books keep existing uncategorised.
func (r *Repo) DeleteCategory(ctx context.Context, id int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete category rows: %w", err)
	}
	return n > 0, nil
}

// ---------------------------------------------------------------------------
// Authors
// ---------------------------------------------------------------------------

type NewAuthor struct {
	Name  string  `validate:"required,max=200"`
	Email *string `validate:"omitempty,email"`
	Bio   string
}

func (r *Repo) CreateAuthor(ctx context.Context, in NewAuthor) (*models.Author, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Email != nil {
		e := strings.TrimSpace(strings.ToLower(*in.Email))
		in.Email = &e
		if e == "" {
			in.Email = nil
		}
	}
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("validate author: %w", err)
	}

	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO authors (name, email, bio) VALUES (?, ?, ?)
	`, in.Name, in.Email, in.Bio)
	if err != nil {
		return nil, fmt.Errorf("insert author: %w", mapConstraint(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return r.GetAuthor(ctx, id)
}

func (r *Repo) GetAuthor(ctx context.Context, id int64) (*models.Author, error) {
	var a models.Author
	err := r.DB.GetContext(ctx, &a, `
		SELECT id, name, email, bio, created_at FROM authors WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get author: %w", err)
	}
	return &a, nil
}

// AuthorByName matches names case-insensitively and returns the oldest match.
func (r *Repo) AuthorByName(ctx context.Context, name string) (*models.Author, error) {
	var a models.Author
	err := r.DB.GetContext(ctx, &a, `
		SELECT id, name, email, bio, created_at FROM authors
		WHERE LOWER(name) = LOWER(?) ORDER BY id LIMIT 1
	`, strings.TrimSpace(name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("author by name: %w", err)
	}
	return &a, nil
}

// ListAuthors filters by a case-insensitive name fragment when q is set.
func (r *Repo) ListAuthors(ctx context.Context, q string, limit, offset int) ([]models.Author, error) {
	limit, offset = clampPage(limit, offset)

	ds := dialect.From("authors").
		Select("id", "name", "email", "bio", "created_at").
		Order(goqu.I("name").Asc()).
		Limit(uint(limit)).
		Offset(uint(offset))
	if kw := keyword(q); kw != "" {
		ds = ds.Where(goqu.Func("LOWER", goqu.I("name")).Like(kw))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build author list: %w", err)
	}

	out := []models.Author{}
	if err := r.DB.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	return out, nil
}

func (r *Repo) CountAuthors(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM authors`); err != nil {
		return 0, fmt.Errorf("count authors: %w", err)
	}
	return n, nil
}

// AuthorBooks lists the books an author contributed to.
func (r *Repo) AuthorBooks(ctx context.Context, authorID int64) ([]models.Book, error) {
	out := []models.Book{}
	err := r.DB.SelectContext(ctx, &out, `
		SELECT `+bookColumns+`
		FROM books b
		JOIN book_authors ba ON ba.book_id = b.id
		WHERE ba.author_id = ?
		ORDER BY b.title ASC
	`, authorID)
	if err != nil {
		return nil, fmt.Errorf("author books: %w", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Books
// ---------------------------------------------------------------------------

const bookColumns = `b.id, b.title, b.isbn, b.category_id, b.description, b.status,
	b.total_copies, b.available_copies, b.created_at, b.updated_at`

type NewBook struct {
	Title       string `validate:"required,max=200"`
	ISBN        string `validate:"required,max=13"`
	CategoryID  *int64
	AuthorIDs   []int64
	Description string
	TotalCopies int `validate:"gte=0"`
}

// CreateBook inserts a book with all copies on the shelf and links its authors.
func (r *Repo) CreateBook(ctx context.Context, in NewBook) (*models.Book, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.ISBN = strings.TrimSpace(in.ISBN)
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("validate book: %w", err)
	}
	if in.TotalCopies == 0 {
		in.TotalCopies = 1
	}

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create book: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO books (title, isbn, category_id, description, status, total_copies, available_copies)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, in.Title, in.ISBN, in.CategoryID, in.Description, models.BookStatusAvailable, in.TotalCopies, in.TotalCopies)
	if err != nil {
		return nil, fmt.Errorf("insert book: %w", mapConstraint(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	for _, authorID := range in.AuthorIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO book_authors (book_id, author_id) VALUES (?, ?)
		`, id, authorID); err != nil {
			return nil, fmt.Errorf("link author %d: %w", authorID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create book: %w", err)
	}
	return r.GetBook(ctx, id)
}

// GetBook loads a book with its category and authors.
func (r *Repo) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	var b models.Book
	err := r.DB.GetContext(ctx, &b, `SELECT `+bookColumns+` FROM books b WHERE b.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}

	if b.CategoryID != nil {
		if b.Category, err = r.GetCategory(ctx, *b.CategoryID); err != nil {
			return nil, err
		}
	}

	books := []models.Book{b}
	if err := r.attachAuthors(ctx, books); err != nil {
		return nil, err
	}
	return &books[0], nil
}

func (r *Repo) GetBookByISBN(ctx context.Context, isbn string) (*models.Book, error) {
	var id int64
	err := r.DB.GetContext(ctx, &id, `SELECT id FROM books WHERE isbn = ?`, strings.TrimSpace(isbn))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get book by isbn: %w", err)
	}
	return r.GetBook(ctx, id)
}

type ListQuery struct {
	Q          string // free text over title, author name and ISBN
	CategoryID int64  // 0 means any
	Status     string
	Limit      int
	Offset     int
}

func (r *Repo) ListBooks(ctx context.Context, q ListQuery) ([]models.Book, error) {
	limit, offset := clampPage(q.Limit, q.Offset)
	ds := r.bookFilter(q).
		Select(goqu.L(bookColumns)).
		Order(goqu.I("b.title").Asc(), goqu.I("b.id").Asc()).
		Limit(uint(limit)).
		Offset(uint(offset))

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build book list: %w", err)
	}

	out := []models.Book{}
	if err := r.DB.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	if err := r.attachCategories(ctx, out); err != nil {
		return nil, err
	}
	if err := r.attachAuthors(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) CountBooks(ctx context.Context, q ListQuery) (int, error) {
	query, args, err := r.bookFilter(q).Select(goqu.COUNT(goqu.Star())).Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build book count: %w", err)
	}
	var n int
	if err := r.DB.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	return n, nil
}

// bookFilter builds the WHERE part shared by list and count. Author matches
// go through a sub-select so a book with two matching authors is listed once.
func (r *Repo) bookFilter(q ListQuery) *goqu.SelectDataset {
	ds := dialect.From(goqu.T("books").As("b"))

	if kw := keyword(q.Q); kw != "" {
		byAuthor := dialect.From(goqu.T("book_authors").As("ba")).
			Join(goqu.T("authors").As("a"), goqu.On(goqu.I("a.id").Eq(goqu.I("ba.author_id")))).
			Select("ba.book_id").
			Where(goqu.Func("LOWER", goqu.I("a.name")).Like(kw))

		ds = ds.Where(goqu.Or(
			goqu.Func("LOWER", goqu.I("b.title")).Like(kw),
			goqu.Func("LOWER", goqu.I("b.isbn")).Like(kw),
			goqu.I("b.id").In(byAuthor),
		))
	}
	if q.CategoryID > 0 {
		ds = ds.Where(goqu.I("b.category_id").Eq(q.CategoryID))
	}
	if s := strings.ToLower(strings.TrimSpace(q.Status)); s != "" {
		ds = ds.Where(goqu.I("b.status").Eq(s))
	}
	return ds
}

// SimilarBooks returns up to limit other books from the same category.
func (r *Repo) SimilarBooks(ctx context.Context, b models.Book, limit int) ([]models.Book, error) {
	out := []models.Book{}
	if b.CategoryID == nil {
		return out, nil
	}
	err := r.DB.SelectContext(ctx, &out, `
		SELECT `+bookColumns+`
		FROM books b
		WHERE b.category_id = ? AND b.id <> ?
		ORDER BY b.title ASC
		LIMIT ?
	`, *b.CategoryID, b.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("similar books: %w", err)
	}
	return out, nil
}

func (r *Repo) RecentBooks(ctx context.Context, limit int) ([]models.Book, error) {
	out := []models.Book{}
	err := r.DB.SelectContext(ctx, &out, `
		SELECT `+bookColumns+` FROM books b ORDER BY b.created_at DESC, b.id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent books: %w", err)
	}
	return out, nil
}

// SetStatus is the admin override. Asking for available while no copy is
// on the shelf stores borrowed instead.
func (r *Repo) SetStatus(ctx context.Context, id int64, status string) (*models.Book, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !models.ValidBookStatus(status) {
		return nil, fmt.Errorf("set status: invalid status %q", status)
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE books
		SET status = CASE
		        WHEN ? = 'available' AND available_copies = 0 THEN 'borrowed'
		        ELSE ?
		    END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, status, id)
	if err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("set status rows: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return r.GetBook(ctx, id)
}

// SetTotalCopies changes the number of owned copies. Copies on loan are kept
// on loan, so the new total may not drop below them.
func (r *Repo) SetTotalCopies(ctx context.Context, id int64, total int) (*models.Book, error) {
	if total < 0 {
		return nil, fmt.Errorf("set total copies: negative total %d", total)
	}

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin set total copies: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var b models.Book
	err = tx.GetContext(ctx, &b, `SELECT `+bookColumns+` FROM books b WHERE b.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load book: %w", err)
	}

	onLoan := b.TotalCopies - b.AvailableCopies
	if total < onLoan {
		return nil, ErrCopiesOnLoan
	}
	available := total - onLoan

	status := b.Status
	if status != models.BookStatusMaintenance {
		status = models.BookStatusAvailable
		if available == 0 {
			status = models.BookStatusBorrowed
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE books
		SET total_copies = ?, available_copies = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, total, available, status, id); err != nil {
		return nil, fmt.Errorf("update copies: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit set total copies: %w", err)
	}
	return r.GetBook(ctx, id)
}

func (r *Repo) CountBooksByStatus(ctx context.Context, status string) (int, error) {
	var n int
	if err := r.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM books WHERE status = ?`, status); err != nil {
		return 0, fmt.Errorf("count books by status: %w", err)
	}
	return n, nil
}

func (r *Repo) CountCategories(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM categories`); err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return n, nil
}

func (r *Repo) attachCategories(ctx context.Context, books []models.Book) error {
	byID := map[int64]*models.Category{}
	for i := range books {
		id := books[i].CategoryID
		if id == nil {
			continue
		}
		c, seen := byID[*id]
		if !seen {
			var err error
			if c, err = r.GetCategory(ctx, *id); err != nil {
				return err
			}
			byID[*id] = c
		}
		books[i].Category = c
	}
	return nil
}

type bookAuthorRow struct {
	BookID int64 `db:"book_id"`
	models.Author
}

func (r *Repo) attachAuthors(ctx context.Context, books []models.Book) error {
	if len(books) == 0 {
		return nil
	}
	ids := make([]int64, len(books))
	for i, b := range books {
		ids[i] = b.ID
	}

	query, args, err := dialect.From(goqu.T("book_authors").As("ba")).
		Join(goqu.T("authors").As("a"), goqu.On(goqu.I("a.id").Eq(goqu.I("ba.author_id")))).
		Select("ba.book_id", "a.id", "a.name", "a.email", "a.bio", "a.created_at").
		Where(goqu.I("ba.book_id").In(ids)).
		Order(goqu.I("a.name").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build book authors: %w", err)
	}

	var rows []bookAuthorRow
	if err := r.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return fmt.Errorf("book authors: %w", err)
	}

	byBook := make(map[int64][]models.Author, len(books))
	for _, row := range rows {
		byBook[row.BookID] = append(byBook[row.BookID], row.Author)
	}
	for i := range books {
		books[i].Authors = byBook[books[i].ID]
	}
	return nil
}

// mapConstraint turns sqlite UNIQUE violations into ErrDuplicate.
func mapConstraint(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func keyword(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return ""
	}
	return "%" + q + "%"
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
