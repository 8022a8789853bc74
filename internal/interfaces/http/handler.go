package http

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"omnichat/internal/entities"
	"omnichat/internal/infrastructure"
	"omnichat/internal/interfaces"
	"omnichat/internal/usecases"
)

type Handler struct {
	receiver         interfaces.MessageReceiver
	conversationRepo interfaces.ConversationRepository
	messageRepo      interfaces.MessageRepository
	waManager        *infrastructure.WhatsAppManager
	tgManager        *infrastructure.TelegramBotManager
}

func NewHandler(
	receiver interfaces.MessageReceiver,
	conversationRepo interfaces.ConversationRepository,
	messageRepo interfaces.MessageRepository,
	waManager *infrastructure.WhatsAppManager,
	tgManager *infrastructure.TelegramBotManager,
) *Handler {
	return &Handler{
		receiver:         receiver,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		waManager:        waManager,
		tgManager:        tgManager,
	}
}

func SetupRoutes(
	r *gin.Engine,
	receiver interfaces.MessageReceiver,
	auth *usecases.AuthUsecase,
	conversationRepo interfaces.ConversationRepository,
	messageRepo interfaces.MessageRepository,
	waManager *infrastructure.WhatsAppManager,
	tgManager *infrastructure.TelegramBotManager,
	middleware *Middleware,
) {
	h := NewHandler(receiver, conversationRepo, messageRepo, waManager, tgManager)

	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(10 << 20)) // 10MB max request size
	r.Use(middleware.CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "chat_gateway"})
	})

	// Channel webhooks. The web gateway authenticates with a service token;
	// Telegram webhooks are keyed by business id in the path.
	webhooks := r.Group("/api/v1/webhooks")
	{
		webhooks.POST("/web", middleware.ServiceAuthRequired(), h.HandleWebMessage)
		webhooks.POST("/telegram/:business_id", h.HandleTelegramWebhook)
	}

	// Public Auth Routes
	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/login", func(c *gin.Context) {
			var loginReq struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&loginReq); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			token, err := auth.Login(c.Request.Context(), loginReq.Username, loginReq.Password)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
		})

		authGroup.POST("/register", func(c *gin.Context) {
			var regReq struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&regReq); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			if !ValidUsername(regReq.Username) || len(regReq.Password) < 6 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid username or password (min 6 chars)"})
				return
			}
			if err := auth.Register(c.Request.Context(), regReq.Username, regReq.Password); err != nil {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusCreated, gin.H{"status": "registered"})
		})
	}

	// Protected management routes
	api := r.Group("/api")
	api.Use(middleware.AuthRequired())
	api.Use(middleware.RateLimitPerOperator(5, 10))
	{
		api.GET("/conversations/:id/messages", h.GetConversationMessages)
		api.POST("/conversations/:id/close", h.CloseConversation)

		api.POST("/whatsapp/connect", h.ConnectWhatsApp)
		api.GET("/whatsapp/status", h.GetWhatsAppStatus)
		api.GET("/whatsapp/qr", h.GetWhatsAppQR)
		api.POST("/whatsapp/logout", h.LogoutWhatsApp)

		api.POST("/telegram/connect", h.ConnectTelegram)
		api.POST("/telegram/disconnect", h.DisconnectTelegram)
		api.GET("/telegram/status", h.GetTelegramStatus)
	}
}

type webMessageRequest struct {
	Channel    string                 `json:"channel"`
	ExternalID string                 `json:"external_id"`
	BusinessID string                 `json:"business_id"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// HandleWebMessage receives a message relayed by the web-channel gateway and
// answers with the generated reply.
func (h *Handler) HandleWebMessage(c *gin.Context) {
	var req webMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Channel == "" {
		req.Channel = entities.ChannelWebSocket
	}
	businessID, err := uuid.Parse(req.BusinessID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid business_id"})
		return
	}
	if !ValidChannel(req.Channel) || !ValidExternalID(req.ExternalID) || !ValidContent(req.Content) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid channel, external_id or content"})
		return
	}

	endUser, conversation, reply, err := h.receiver.HandleNewMessage(
		c.Request.Context(), req.Channel, req.ExternalID, businessID,
		SanitizeString(req.Content), req.Metadata)
	if err != nil {
		log.Printf("[web] message handling failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"external_id":     req.ExternalID,
		"end_user_id":     endUser.ID,
		"conversation_id": conversation.ID,
		"content":         reply.Content,
		"metadata": gin.H{
			"user_id":    endUser.ID,
			"message_id": reply.ID,
		},
	})
}

// HandleTelegramWebhook translates a Telegram update into the core call
// shape and relays the reply through that business's bot.
func (h *Handler) HandleTelegramWebhook(c *gin.Context) {
	businessID, err := uuid.Parse(c.Param("business_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid business_id"})
		return
	}

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid update"})
		return
	}
	if update.Message == nil || update.Message.Text == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	chat := update.Message.Chat
	metadata := map[string]interface{}{
		"username":  chat.UserName,
		"update_id": update.UpdateID,
	}

	_, _, reply, err := h.receiver.HandleNewMessage(
		c.Request.Context(), entities.ChannelTelegram,
		formatChatID(chat.ID), businessID,
		SanitizeString(update.Message.Text), metadata)
	if err != nil {
		log.Printf("[tg] webhook handling failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	if serr := h.tgManager.SendMessage(businessID, chat.ID, reply.Content); serr != nil {
		log.Printf("[tg] send reply failed: %v", serr)
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "response": reply.Content})
}
