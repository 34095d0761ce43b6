package loans

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"librarydesk/internal/auth"
	"librarydesk/internal/sync"
	"librarydesk/pkg/models"
)

// Notifier delivers a notice to one user.
type Notifier interface {
	NotifyUser(userID string, v any)
}

type Handler struct {
	Service *Service
	Repo    *Repo
	Hub     *sync.Hub
	// Notices is optional; the borrower gets their own events through it.
	Notices Notifier
}

func NewHandler(svc *Service, repo *Repo, hub *sync.Hub) *Handler {
	return &Handler{Service: svc, Repo: repo, Hub: hub}
}

// RegisterRoutes expects rg to be behind auth.AuthMiddleware.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/my-books", h.myBooks)
	rg.POST("/borrow/:book_id", h.borrow)
	rg.POST("/return/:record_id", h.giveBack)
	rg.POST("/extend/:record_id", h.extend)
}

// recordView adds the read-time loan state to a stored record.
type recordView struct {
	models.BorrowRecord
	IsOverdue    bool   `json:"is_overdue"`
	ReturnStatus string `json:"return_status"`
}

func (h *Handler) view(r models.BorrowRecord) recordView {
	now := h.Service.Clock.Now()
	return recordView{
		BorrowRecord: r,
		IsOverdue:    r.IsOverdue(now),
		ReturnStatus: r.ReturnStatus(now),
	}
}

func (h *Handler) views(rs []models.BorrowRecord) []recordView {
	out := make([]recordView, 0, len(rs))
	for _, r := range rs {
		out = append(out, h.view(r))
	}
	return out
}

func (h *Handler) myBooks(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	memberID, err := h.Repo.MemberIDForUser(ctx, claims.UserID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	if memberID == 0 {
		h.respondError(c, ErrNotAMember)
		return
	}

	loans, err := h.Repo.ListByMember(ctx, memberID)
	if err != nil {
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"active_loans":   h.views(loans.Active),
		"return_history": h.views(loans.Returned),
	})
}

func (h *Handler) borrow(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	bookID, ok := parseID(c, "book_id")
	if !ok {
		return
	}

	rec, err := h.Service.Borrow(c.Request.Context(), bookID, claims.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.publish(sync.LoanBorrowed, claims.UserID, rec)
	c.JSON(http.StatusCreated, gin.H{
		"message": "Successfully borrowed " + rec.BookTitle,
		"record":  h.view(*rec),
	})
}

func (h *Handler) giveBack(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	recordID, ok := parseID(c, "record_id")
	if !ok {
		return
	}

	rec, err := h.Service.Return(c.Request.Context(), recordID, claims.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.publish(sync.LoanReturned, claims.UserID, rec)
	c.JSON(http.StatusOK, gin.H{
		"message": "Successfully returned " + rec.BookTitle,
		"record":  h.view(*rec),
	})
}

func (h *Handler) extend(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	recordID, ok := parseID(c, "record_id")
	if !ok {
		return
	}

	rec, err := h.Service.Extend(c.Request.Context(), recordID, claims.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.publish(sync.LoanExtended, claims.UserID, rec)
	c.JSON(http.StatusOK, gin.H{
		"message": "Successfully extended borrowing period for " + rec.BookTitle,
		"record":  h.view(*rec),
	})
}

func (h *Handler) publish(typ, userID string, rec *models.BorrowRecord) {
	ev := sync.LoanEvent{
		Type:     typ,
		RecordID: rec.ID,
		BookID:   rec.BookID,
		DueDate:  rec.DueDate,
		At:       h.Service.Clock.Now().UTC(),
	}
	if h.Hub != nil {
		go h.Hub.Publish(ev)
	}
	if h.Notices != nil {
		go h.Notices.NotifyUser(userID, ev)
	}
}

// StatusFor maps lifecycle errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrAlreadyBorrowed):
		return http.StatusConflict
	case errors.Is(err, ErrNotAMember):
		return http.StatusForbidden
	case errors.Is(err, ErrCannotExtendOverdue):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.internalError(c, err)
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) internalError(c *gin.Context, err error) {
	h.Service.Logger.ErrorContext(c.Request.Context(), "loan request failed",
		"method", c.Request.Method, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
