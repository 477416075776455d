package api

import (
	"backend_fieldservice/models"
	"backend_fieldservice/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type ConversationCreateRequest struct {
	Subject        string `json:"subject"`
	MissionID      *uint  `json:"mission_id"`
	ParticipantIDs []uint `json:"participant_ids" binding:"required,min=1"`
	Message        string `json:"message"`
}

type MessageRequest struct {
	Content string `json:"content" form:"content"`
}

// MessagesAPI обработчики переписки и сообщений по миссиям
type MessagesAPI struct {
	messaging *services.MessagingService
	uploads   *services.UploadService
	log       *logrus.Logger
}

// NewMessagesAPI создает новый экземпляр MessagesAPI
func NewMessagesAPI(messaging *services.MessagingService, uploads *services.UploadService, log *logrus.Logger) *MessagesAPI {
	return &MessagesAPI{messaging: messaging, uploads: uploads, log: log}
}

// RegisterMessagesRoutes регистрирует маршруты /api/conversations и /api/missions/:id/messages
func (api *MessagesAPI) RegisterMessagesRoutes(r *gin.RouterGroup) {
	conversations := r.Group("/conversations")
	{
		conversations.GET("", api.GetConversations)
		conversations.POST("", api.CreateConversation)
		conversations.GET("/unread-count", api.GetUnreadTotal)
		conversations.GET("/:id", api.GetConversation)
		conversations.POST("/:id/messages", api.SendMessage)
		conversations.POST("/:id/reply", api.Reply)
		conversations.PATCH("/:id/read", api.MarkRead)
	}

	r.GET("/missions/:id/messages", api.GetMissionMessages)
	r.POST("/missions/:id/messages", api.PostMissionMessage)
}

// GetConversations возвращает переписки текущего пользователя
func (api *MessagesAPI) GetConversations(c *gin.Context) {
	items, err := api.messaging.ListConversations(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, items)
}

// CreateConversation создает переписку и, при наличии, первое сообщение
func (api *MessagesAPI) CreateConversation(c *gin.Context) {
	var req ConversationCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	ctx := c.Request.Context()
	actor := currentUser(c)

	conversation, err := api.messaging.CreateConversation(ctx, actor, services.ConversationInput{
		Subject:        req.Subject,
		MissionID:      req.MissionID,
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	if req.Message != "" {
		if _, err := api.messaging.SendMessage(ctx, actor, conversation.ID, req.Message, nil); err != nil {
			respondError(c, api.log, err)
			return
		}
	}
	respondCreated(c, conversation)
}

// GetConversation возвращает переписку и ее сообщения
func (api *MessagesAPI) GetConversation(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	conversation, messages, err := api.messaging.GetConversation(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, gin.H{"conversation": conversation, "messages": messages})
}

// SendMessage отправляет текстовое сообщение
func (api *MessagesAPI) SendMessage(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	message, err := api.messaging.SendMessage(c.Request.Context(), currentUser(c), id, req.Content, nil)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondCreated(c, message)
}

// Reply отвечает в переписке; принимает multipart-форму с файлами attachments
func (api *MessagesAPI) Reply(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req MessageRequest
	var attachments []models.Attachment
	if isMultipart(c) {
		if err := c.ShouldBind(&req); err != nil {
			respondBindError(c, err)
			return
		}
		saved, err := api.uploads.SaveAll(services.UploadMessages, formFiles(c, "attachments"))
		if err != nil {
			respondError(c, api.log, err)
			return
		}
		attachments = saved
	} else if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	message, err := api.messaging.SendMessage(c.Request.Context(), currentUser(c), id, req.Content, attachments)
	if err != nil {
		api.uploads.RemoveAll(attachments)
		respondError(c, api.log, err)
		return
	}
	respondCreated(c, message)
}

// MarkRead сбрасывает счетчик непрочитанного текущего пользователя
func (api *MessagesAPI) MarkRead(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := api.messaging.MarkRead(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, api.log, err)
		return
	}
	respondMessage(c, "Conversation marked as read")
}

// GetUnreadTotal возвращает суммарное число непрочитанных сообщений
func (api *MessagesAPI) GetUnreadTotal(c *gin.Context) {
	total, err := api.messaging.UnreadTotal(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, gin.H{"count": total})
}

// GetMissionMessages возвращает сообщения миссии
func (api *MessagesAPI) GetMissionMessages(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	messages, err := api.messaging.MissionMessages(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, messages)
}

// PostMissionMessage добавляет сообщение к миссии
func (api *MessagesAPI) PostMissionMessage(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	message, err := api.messaging.PostMissionMessage(c.Request.Context(), currentUser(c), id, req.Content)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondCreated(c, message)
}
