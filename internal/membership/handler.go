package membership

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"librarydesk/internal/auth"
)

type Handler struct {
	Repo *Repo
}

func NewHandler(repo *Repo) *Handler {
	return &Handler{Repo: repo}
}

// RegisterRoutes expects rg to be behind auth.AuthMiddleware.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/members", h.join)
	rg.GET("/members/me", h.me)
}

type joinReq struct {
	MembershipNumber string `json:"membership_number"`
}

func (h *Handler) join(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req joinReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}

	m, err := h.Repo.Create(c.Request.Context(), NewMember{
		UserID:           claims.UserID,
		MembershipNumber: req.MembershipNumber,
	})
	switch {
	case errors.Is(err, ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "already a member or membership number taken"})
		return
	case isValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": "membership_number must be up to 10 letters or digits"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "join failed"})
		return
	}

	c.JSON(http.StatusCreated, m)
}

func (h *Handler) me(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	m, err := h.Repo.GetByUserID(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not a member"})
		return
	}
	c.JSON(http.StatusOK, m)
}

func isValidation(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs)
}
