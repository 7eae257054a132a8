package rest

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
)

type Handler struct {
	service ports.SocialService
}

func NewHandler(service ports.SocialService) *Handler {
	return &Handler{service: service}
}

// Register monte les routes sous /api/v1/social.
// Les listes et les stats sont publiques, le reste exige un token.
func (h *Handler) Register(r gin.IRouter, auth gin.HandlerFunc) {
	g := r.Group("/api/v1/social")

	g.GET("/followers/:userId", h.getFollowers)
	g.GET("/following/:userId", h.getFollowing)
	g.GET("/stats/:userId", h.getStats)

	private := g.Group("", auth)
	private.POST("/follow/:userId", h.follow)
	private.DELETE("/follow/:userId", h.unfollow)
	private.POST("/block/:userId", h.block)
	private.DELETE("/block/:userId", h.unblock)
	private.GET("/recommendations", h.getRecommendations)
	private.GET("/status/:userId", h.getStatus)
	private.POST("/stats/:userId/reconcile", h.reconcileStats)
	private.POST("/sync-users", h.syncUsers)
}

type followResult struct {
	Message     string `json:"message"`
	IsFollowing bool   `json:"isFollowing"`
}

type blockResult struct {
	Message   string `json:"message"`
	IsBlocked bool   `json:"isBlocked"`
}

type relationStatus struct {
	IsFollowing  bool `json:"is_following"`
	IsFollowedBy bool `json:"is_followed_by"`
	IsBlocked    bool `json:"is_blocked"`
}

type reconcileResult struct {
	UserID string        `json:"userId"`
	Stats  *domain.Stats `json:"stats"`
}

func (h *Handler) follow(c *gin.Context) {
	target, ok := userIDParam(c)
	if !ok {
		return
	}
	if err := h.service.Follow(c.Request.Context(), currentUserID(c), target); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, followResult{Message: "Successfully followed user", IsFollowing: true})
}

func (h *Handler) unfollow(c *gin.Context) {
	target, ok := userIDParam(c)
	if !ok {
		return
	}
	if err := h.service.Unfollow(c.Request.Context(), currentUserID(c), target); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, followResult{Message: "Successfully unfollowed user", IsFollowing: false})
}

func (h *Handler) block(c *gin.Context) {
	target, ok := userIDParam(c)
	if !ok {
		return
	}
	if err := h.service.Block(c.Request.Context(), currentUserID(c), target); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, blockResult{Message: "Successfully blocked user", IsBlocked: true})
}

func (h *Handler) unblock(c *gin.Context) {
	target, ok := userIDParam(c)
	if !ok {
		return
	}
	if err := h.service.Unblock(c.Request.Context(), currentUserID(c), target); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, blockResult{Message: "Successfully unblocked user", IsBlocked: false})
}

func (h *Handler) getFollowers(c *gin.Context) {
	h.listPage(c, h.service.GetFollowers)
}

func (h *Handler) getFollowing(c *gin.Context) {
	h.listPage(c, h.service.GetFollowing)
}

type pageFetcher func(ctx context.Context, userID string, req domain.PageRequest) (*domain.FollowPage, error)

func (h *Handler) listPage(c *gin.Context, fetch pageFetcher) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	page, ok := intQuery(c, "page", 1, 1, domain.MaxPage)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", domain.DefaultPageLimit, 1, domain.MaxPageLimit)
	if !ok {
		return
	}

	result, err := fetch(c.Request.Context(), userID, domain.PageRequest{Page: page, Limit: limit})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

func (h *Handler) getRecommendations(c *gin.Context) {
	limit, ok := intQuery(c, "limit", domain.DefaultRecommendationLimit, 1, domain.MaxRecommendationLimit)
	if !ok {
		return
	}
	result, err := h.service.GetRecommendations(c.Request.Context(), currentUserID(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

func (h *Handler) getStats(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	stats, err := h.service.GetStats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, stats)
}

func (h *Handler) reconcileStats(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	stats, err := h.service.ReconcileStats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, reconcileResult{UserID: userID, Stats: stats})
}

func (h *Handler) getStatus(c *gin.Context) {
	target, ok := userIDParam(c)
	if !ok {
		return
	}
	st, err := h.service.GetRelationStatus(c.Request.Context(), currentUserID(c), target)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, relationStatus{IsFollowing: st.IsFollowing, IsFollowedBy: st.IsFollowedBy, IsBlocked: st.IsBlocked})
}

func (h *Handler) syncUsers(c *gin.Context) {
	result, err := h.service.SyncUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// userIDParam valide le paramètre :userId (UUID)
func userIDParam(c *gin.Context) (string, bool) {
	id := c.Param("userId")
	if _, err := uuid.Parse(id); err != nil {
		validationError(c, "Invalid user ID format")
		return "", false
	}
	return id, true
}

// intQuery lit un entier optionnel borné (hi <= 0: pas de borne haute)
func intQuery(c *gin.Context, name string, def, lo, hi int) (int, bool) {
	raw, present := c.GetQuery(name)
	if !present || raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || (hi > 0 && v > hi) {
		if hi > 0 {
			validationError(c, name+" must be between "+strconv.Itoa(lo)+" and "+strconv.Itoa(hi))
		} else {
			validationError(c, name+" must be a positive integer")
		}
		return 0, false
	}
	return v, true
}

func validationError(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, failure("VALIDATION_ERROR", "Validation failed: "+message))
}
