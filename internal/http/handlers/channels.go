package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vidhub/internal/http/middleware"
	"vidhub/internal/lib/api/response"
)

func (h *Handler) ChannelProfile(c *gin.Context) {
	const op = "handlers.ChannelProfile"

	profile, err := h.channels.ChannelProfile(c.Request.Context(), middleware.UserID(c), c.Param("username"))
	if err != nil {
		h.writeError(c, op, err)
		return
	}

	response.OK(c, http.StatusOK, "user channel fetched successfully", profile)
}

func (h *Handler) WatchHistory(c *gin.Context) {
	const op = "handlers.WatchHistory"

	history, err := h.channels.WatchHistory(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.writeError(c, op, err)
		return
	}

	response.OK(c, http.StatusOK, "watch history fetched successfully", history)
}

func (h *Handler) RecordView(c *gin.Context) {
	const op = "handlers.RecordView"

	if err := h.channels.RecordView(c.Request.Context(), middleware.UserID(c), c.Param("videoId")); err != nil {
		h.writeError(c, op, err)
		return
	}

	response.OK(c, http.StatusOK, "view recorded", struct{}{})
}

func (h *Handler) Subscribe(c *gin.Context) {
	const op = "handlers.Subscribe"

	if err := h.channels.Subscribe(c.Request.Context(), middleware.UserID(c), c.Param("channelId")); err != nil {
		h.writeError(c, op, err)
		return
	}

	response.OK(c, http.StatusCreated, "subscribed", struct{}{})
}

func (h *Handler) Unsubscribe(c *gin.Context) {
	const op = "handlers.Unsubscribe"

	if err := h.channels.Unsubscribe(c.Request.Context(), middleware.UserID(c), c.Param("channelId")); err != nil {
		h.writeError(c, op, err)
		return
	}

	response.OK(c, http.StatusOK, "unsubscribed", struct{}{})
}
