package catalog

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"librarydesk/internal/auth"
	"librarydesk/pkg/models"
)

// LoanLookup answers the per-user loan questions the catalog pages show.
type LoanLookup interface {
	HasOpenLoan(ctx context.Context, bookID int64, userID string) (bool, error)
	CountOpenLoans(ctx context.Context, userID string) (int, error)
}

type Handler struct {
	Repo  *Repo
	Loans LoanLookup
}

func NewHandler(repo *Repo, loans LoanLookup) *Handler {
	return &Handler{Repo: repo, Loans: loans}
}

// RegisterRoutes mounts the public catalog. Callers put auth.OptionalAuth on
// rg so pages can show the caller's loan state.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/home", h.home)
	rg.GET("/books", h.listBooks)
	rg.GET("/books/:id", h.getBook)
	rg.GET("/authors", h.listAuthors)
	rg.GET("/authors/:id", h.getAuthor)
	rg.GET("/categories", h.listCategories)
}

func (h *Handler) home(c *gin.Context) {
	ctx := c.Request.Context()

	available, err := h.Repo.CountBooksByStatus(ctx, models.BookStatusAvailable)
	if err != nil {
		h.fail(c, "count failed", err)
		return
	}
	authors, err := h.Repo.CountAuthors(ctx)
	if err != nil {
		h.fail(c, "count failed", err)
		return
	}
	categories, err := h.Repo.CountCategories(ctx)
	if err != nil {
		h.fail(c, "count failed", err)
		return
	}
	recent, err := h.Repo.RecentBooks(ctx, 5)
	if err != nil {
		h.fail(c, "list failed", err)
		return
	}

	resp := gin.H{
		"available_books_count": available,
		"authors_count":         authors,
		"categories_count":      categories,
		"recent_books":          recent,
	}
	if claims := auth.MustGetClaims(c); claims != nil && h.Loans != nil {
		n, err := h.Loans.CountOpenLoans(ctx, claims.UserID)
		if err != nil {
			h.fail(c, "count failed", err)
			return
		}
		resp["borrowed_books_count"] = n
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) listBooks(c *gin.Context) {
	q := ListQuery{
		Q:      c.Query("q"),
		Status: c.Query("status"),
		Limit:  parseInt(c.Query("limit"), 12),
		Offset: parseInt(c.Query("offset"), 0),
	}
	q.Limit, q.Offset = clampPage(q.Limit, q.Offset)
	if q.Status != "" && !models.ValidBookStatus(strings.ToLower(strings.TrimSpace(q.Status))) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of: available, borrowed, maintenance"})
		return
	}
	if s := strings.TrimSpace(c.Query("category")); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
			return
		}
		q.CategoryID = id
	}

	ctx := c.Request.Context()
	total, err := h.Repo.CountBooks(ctx, q)
	if err != nil {
		h.fail(c, "count failed", err)
		return
	}
	items, err := h.Repo.ListBooks(ctx, q)
	if err != nil {
		h.fail(c, "list failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  q.Limit,
		"offset": q.Offset,
		"items":  items,
	})
}

func (h *Handler) getBook(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	b, err := h.Repo.GetBook(ctx, id)
	if err != nil {
		h.fail(c, "get failed", err)
		return
	}
	if b == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	similar, err := h.Repo.SimilarBooks(ctx, *b, 4)
	if err != nil {
		h.fail(c, "get failed", err)
		return
	}

	resp := gin.H{
		"book":          b,
		"is_available":  b.IsAvailable(),
		"similar_books": similar,
	}
	if claims := auth.MustGetClaims(c); claims != nil && h.Loans != nil {
		has, err := h.Loans.HasOpenLoan(ctx, b.ID, claims.UserID)
		if err != nil {
			h.fail(c, "get failed", err)
			return
		}
		resp["has_borrowed"] = has
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) listAuthors(c *gin.Context) {
	limit, offset := clampPage(parseInt(c.Query("limit"), 12), parseInt(c.Query("offset"), 0))

	items, err := h.Repo.ListAuthors(c.Request.Context(), c.Query("q"), limit, offset)
	if err != nil {
		h.fail(c, "list failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"limit": limit, "offset": offset, "items": items})
}

func (h *Handler) getAuthor(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	a, err := h.Repo.GetAuthor(ctx, id)
	if err != nil {
		h.fail(c, "get failed", err)
		return
	}
	if a == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	books, err := h.Repo.AuthorBooks(ctx, id)
	if err != nil {
		h.fail(c, "get failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"author": a, "books": books, "books_count": len(books)})
}

func (h *Handler) listCategories(c *gin.Context) {
	items, err := h.Repo.ListCategories(c.Request.Context())
	if err != nil {
		h.fail(c, "list failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	log.Printf("[catalog] %s %s: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
