package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"solochat/internal/store"
)

// Handler wires HTTP routes to the conversation store. The store is
// the single source of truth; handlers only translate between HTTP and
// store operations.
type Handler struct {
	store *store.Store
}

// NewHandler constructs a Handler instance.
func NewHandler(st *store.Store) *Handler {
	return &Handler{store: st}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/conversations", h.listConversations)
	api.POST("/conversations", h.createConversation)
	api.GET("/conversations/:id", h.getConversation)
	api.DELETE("/conversations/:id", h.deleteConversation)
	api.GET("/active", h.getActiveConversation)
	api.POST("/active", h.selectConversation)
	api.DELETE("/active", h.clearActiveConversation)
	api.POST("/messages", h.sendMessage)
}

func (h *Handler) listConversations(c *gin.Context) {
	list := h.store.List()
	c.JSON(http.StatusOK, gin.H{
		"conversations": list,
		"active_id":     h.store.ActiveID(),
	})
}

func (h *Handler) createConversation(c *gin.Context) {
	id := h.store.Create()
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) getConversation(c *gin.Context) {
	conv := h.store.Get(c.Param("id"))
	if conv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation": conv,
		"pending":      h.store.Pending(conv.ID),
	})
}

// Deletion is idempotent: removing an unknown id succeeds the same way
// removing a known one does.
func (h *Handler) deleteConversation(c *gin.Context) {
	h.store.Delete(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (h *Handler) getActiveConversation(c *gin.Context) {
	conv := h.store.Active()
	if conv == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation": conv,
		"pending":      h.store.Pending(conv.ID),
	})
}

type selectRequest struct {
	ID string `json:"id"`
}

// Selecting an unknown id is a silent no-op; the response reports
// whichever conversation is active afterwards so clients can resync.
func (h *Handler) selectConversation(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.store.Select(req.ID)
	c.JSON(http.StatusOK, gin.H{"active_id": h.store.ActiveID()})
}

func (h *Handler) clearActiveConversation(c *gin.Context) {
	h.store.Deselect()
	c.Status(http.StatusNoContent)
}

type sendRequest struct {
	Content string `json:"content"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := h.store.Send(c.Request.Context(), req.Content)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEmptyMessage):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "message content is empty"})
		case errors.Is(err, store.ErrReplyPending):
			c.JSON(http.StatusConflict, gin.H{"error": "a reply is already pending"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	// Wait for the exchange to resolve; the store stays free to serve
	// other requests meanwhile.
	reply, ok := <-res.Reply
	if !ok {
		// The conversation was deleted before the reply arrived.
		c.JSON(http.StatusOK, gin.H{
			"conversation_id": res.ConversationID,
			"user_message":    res.UserMessage,
			"ai_message":      nil,
		})
		return
	}

	body := gin.H{
		"conversation_id": res.ConversationID,
		"user_message":    res.UserMessage,
		"ai_message":      reply,
	}
	if conv := h.store.Get(res.ConversationID); conv != nil {
		body["title"] = conv.Title
	}
	c.JSON(http.StatusOK, body)
}
