package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"stubot/internal/repository"
	"stubot/internal/utils"
)

// stats returns the answered/unanswered counters.
func (h *Handler) stats(c *gin.Context) {
	cls, err := h.log.Classify(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, cls)
}

// listExchanges returns one page of the log, newest first. Unparseable page
// numbers fall back to the first page.
func (h *Handler) listExchanges(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(repository.DefaultPageSize)))
	if err != nil || pageSize > maxPageSize {
		pageSize = repository.DefaultPageSize
	}

	p, err := h.log.Page(c.Request.Context(), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, p)
}

const maxPageSize = 100

func (h *Handler) getExchange(c *gin.Context) {
	id, ok := parseExchangeID(c)
	if !ok {
		return
	}
	ex, err := h.log.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, ex)
}

func (h *Handler) deleteExchange(c *gin.Context) {
	id, ok := parseExchangeID(c)
	if !ok {
		return
	}
	if err := h.log.DeleteByID(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("exchange deleted", "exchange_id", id)
	utils.Success(c, gin.H{
		"id":      id,
		"deleted": true,
	})
}

func parseExchangeID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid exchange id")
		return uuid.Nil, false
	}
	return id, true
}
