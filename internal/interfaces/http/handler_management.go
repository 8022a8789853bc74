package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

// Telegram chat ids are numeric; the core keys identity on the string form.
func formatChatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (h *Handler) businessIDFromQuery(c *gin.Context) (uuid.UUID, bool) {
	businessID, err := uuid.Parse(c.Query("business_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "business_id query parameter required"})
		return uuid.Nil, false
	}
	return businessID, true
}

// GetConversationMessages lists a conversation's messages, oldest first.
func (h *Handler) GetConversationMessages(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation id"})
		return
	}

	messages, err := h.messageRepo.GetByConversation(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// CloseConversation is the explicit end-of-session flow; the orchestrator
// itself never closes conversations.
func (h *Handler) CloseConversation(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation id"})
		return
	}

	if err := h.conversationRepo.CloseConversation(c.Request.Context(), conversationID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

func (h *Handler) ConnectWhatsApp(c *gin.Context) {
	businessID, ok := h.businessIDFromQuery(c)
	if !ok {
		return
	}

	client, err := h.waManager.ConnectClient(businessID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": client.IsConnected(), "logged_in": client.IsLoggedIn()})
}

func (h *Handler) GetWhatsAppStatus(c *gin.Context) {
	businessID, ok := h.businessIDFromQuery(c)
	if !ok {
		return
	}

	client := h.waManager.GetClient(businessID)
	if client == nil {
		c.JSON(http.StatusOK, gin.H{"connected": false, "logged_in": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": client.IsConnected(), "logged_in": client.IsLoggedIn()})
}

// GetWhatsAppQR renders the current pairing code as a PNG.
func (h *Handler) GetWhatsAppQR(c *gin.Context) {
	businessID, ok := h.businessIDFromQuery(c)
	if !ok {
		return
	}

	client := h.waManager.GetClient(businessID)
	if client == nil || client.GetQR() == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No QR code available; connect first or already paired"})
		return
	}

	png, err := qrcode.Encode(client.GetQR(), qrcode.Medium, 256)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render QR code"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) LogoutWhatsApp(c *gin.Context) {
	businessID, ok := h.businessIDFromQuery(c)
	if !ok {
		return
	}

	if err := h.waManager.LogoutClient(businessID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

func (h *Handler) ConnectTelegram(c *gin.Context) {
	businessID, ok := h.businessIDFromQuery(c)
	if !ok {
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bot token required"})
		return
	}

	botName, err := h.tgManager.ValidateToken(req.Token)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.tgManager.ConnectBot(businessID, req.Token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "connected", "bot": botName})
}

func (h *Handler) DisconnectTelegram(c *gin.Context) {
	businessID, ok := h.businessIDFromQuery(c)
	if !ok {
		return
	}

	h.tgManager.DisconnectBot(businessID)
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

func (h *Handler) GetTelegramStatus(c *gin.Context) {
	businessID, ok := h.businessIDFromQuery(c)
	if !ok {
		return
	}

	connected, botName := h.tgManager.GetStatus(businessID)
	c.JSON(http.StatusOK, gin.H{"connected": connected, "bot": botName})
}
