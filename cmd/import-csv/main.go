package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"librarydesk/internal/catalog"
	"librarydesk/pkg/database"
	"librarydesk/pkg/utils"
)

type importStats struct {
	categories int
	authors    int
	books      int
	skipped    int
}

func main() {
	var (
		categoriesIn = flag.String("categories", "", "input CSV path for categories (name,description)")
		authorsIn    = flag.String("authors", "", "input CSV path for authors (name,email,bio)")
		booksIn      = flag.String("books", "data/books.csv", "input CSV path for books (title,isbn,category,authors,copies,description)")
	)
	flag.Parse()
	utils.LoadEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	db := database.MustOpen(database.DefaultConfig())
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	repo := catalog.NewRepo(db)
	var st importStats

	if *categoriesIn != "" {
		if err := importCategories(ctx, repo, *categoriesIn, &st); err != nil {
			log.Fatalf("import categories failed: %v", err)
		}
	}
	if *authorsIn != "" {
		if err := importAuthors(ctx, repo, *authorsIn, &st); err != nil {
			log.Fatalf("import authors failed: %v", err)
		}
	}
	if *booksIn != "" {
		if err := importBooks(ctx, repo, *booksIn, &st); err != nil {
			log.Fatalf("import books failed: %v", err)
		}
	}

	log.Printf("✅ imported %d categories, %d authors, %d books (%d rows skipped)",
		st.categories, st.authors, st.books, st.skipped)
}

func importCategories(ctx context.Context, repo *catalog.Repo, path string, st *importStats) error {
	return eachRow(path, func(header map[string]int, row []string) error {
		name := valueAt(header, row, "name")
		if name == "" {
			st.skipped++
			return nil
		}
		existing, err := repo.CategoryByName(ctx, name)
		if err != nil {
			return err
		}
		if existing != nil {
			st.skipped++
			return nil
		}
		if _, err := repo.CreateCategory(ctx, catalog.NewCategory{
			Name:        name,
			Description: valueAt(header, row, "description"),
		}); err != nil {
			return fmt.Errorf("category %q: %w", name, err)
		}
		st.categories++
		return nil
	})
}

func importAuthors(ctx context.Context, repo *catalog.Repo, path string, st *importStats) error {
	return eachRow(path, func(header map[string]int, row []string) error {
		name := valueAt(header, row, "name")
		if name == "" {
			st.skipped++
			return nil
		}
		existing, err := repo.AuthorByName(ctx, name)
		if err != nil {
			return err
		}
		if existing != nil {
			st.skipped++
			return nil
		}

		in := catalog.NewAuthor{Name: name, Bio: valueAt(header, row, "bio")}
		if email := valueAt(header, row, "email"); email != "" {
			in.Email = &email
		}
		if _, err := repo.CreateAuthor(ctx, in); err != nil {
			if errors.Is(err, catalog.ErrDuplicate) {
				st.skipped++
				return nil
			}
			return fmt.Errorf("author %q: %w", name, err)
		}
		st.authors++
		return nil
	})
}

// importBooks creates missing categories and authors by name. Rows whose
// ISBN is already in the catalog are skipped so stock counts stay intact.
func importBooks(ctx context.Context, repo *catalog.Repo, path string, st *importStats) error {
	return eachRow(path, func(header map[string]int, row []string) error {
		title := valueAt(header, row, "title")
		isbn := valueAt(header, row, "isbn")
		if title == "" || isbn == "" {
			st.skipped++
			return nil
		}
		existing, err := repo.GetBookByISBN(ctx, isbn)
		if err != nil {
			return err
		}
		if existing != nil {
			st.skipped++
			return nil
		}

		copies := 1
		if raw := valueAt(header, row, "copies"); raw != "" {
			if copies, err = strconv.Atoi(raw); err != nil || copies < 1 {
				return fmt.Errorf("parse copies for %s: %q", isbn, raw)
			}
		}

		in := catalog.NewBook{
			Title:       title,
			ISBN:        isbn,
			Description: valueAt(header, row, "description"),
			TotalCopies: copies,
		}

		if name := valueAt(header, row, "category"); name != "" {
			id, err := ensureCategory(ctx, repo, name, st)
			if err != nil {
				return err
			}
			in.CategoryID = &id
		}
		for _, name := range splitList(valueAt(header, row, "authors")) {
			id, err := ensureAuthor(ctx, repo, name, st)
			if err != nil {
				return err
			}
			in.AuthorIDs = append(in.AuthorIDs, id)
		}

		if _, err := repo.CreateBook(ctx, in); err != nil {
			return fmt.Errorf("book %s: %w", isbn, err)
		}
		st.books++
		return nil
	})
}

func ensureCategory(ctx context.Context, repo *catalog.Repo, name string, st *importStats) (int64, error) {
	c, err := repo.CategoryByName(ctx, name)
	if err != nil {
		return 0, err
	}
	if c == nil {
		if c, err = repo.CreateCategory(ctx, catalog.NewCategory{Name: name}); err != nil {
			return 0, fmt.Errorf("category %q: %w", name, err)
		}
		st.categories++
	}
	return c.ID, nil
}

func ensureAuthor(ctx context.Context, repo *catalog.Repo, name string, st *importStats) (int64, error) {
	a, err := repo.AuthorByName(ctx, name)
	if err != nil {
		return 0, err
	}
	if a == nil {
		if a, err = repo.CreateAuthor(ctx, catalog.NewAuthor{Name: name}); err != nil {
			return 0, fmt.Errorf("author %q: %w", name, err)
		}
		st.authors++
	}
	return a.ID, nil
}

func eachRow(path string, fn func(header map[string]int, row []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := readHeader(r)
	if err != nil {
		return err
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if len(row) == 0 {
			continue
		}
		if err := fn(header, row); err != nil {
			return err
		}
	}
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// splitList accepts "A; B" or "A|B" author lists.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == '|' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
