package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/squadspace/backend/internal/boards"
	"github.com/squadspace/backend/internal/chat"
	"github.com/squadspace/backend/internal/events"
	"github.com/squadspace/backend/internal/gaming"
	"github.com/squadspace/backend/internal/identity"
	"github.com/squadspace/backend/internal/livesync"
	"github.com/squadspace/backend/internal/notifications"
	"github.com/squadspace/backend/internal/polls"
	"go.uber.org/zap"
)

const userIDContextKey = "squadspace_user_id"

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingIdentity      = errors.New("identity service dependency required")
	errMissingFeed          = errors.New("change feed dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// SessionTokenManager issues and validates session tokens.
type SessionTokenManager interface {
	IssueToken(ctx context.Context, userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies carries every service the HTTP surface exposes.
type Dependencies struct {
	TokenManager  SessionTokenManager
	Identity      *identity.Service
	Chat          *chat.Service
	Notifications *notifications.Service
	Boards        *boards.Service
	Events        *events.Service
	Gaming        *gaming.Service
	Polls         *polls.Service
	Feed          *livesync.Feed
	Logger        *zap.Logger
}

// NewHTTPHandler assembles the gin router for the API server.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Identity == nil {
		return nil, errMissingIdentity
	}
	if deps.Feed == nil {
		return nil, errMissingFeed
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{deps: deps, logger: logger}

	router.POST("/auth/session", handler.handleSession)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.GET("/channels", handler.handleListChannels)
	protected.POST("/channels", handler.handleCreateChannel)
	protected.GET("/channels/:channel_id/messages", handler.handleListMessages)
	protected.POST("/channels/:channel_id/messages", handler.handleSendMessage)
	protected.DELETE("/messages/:message_id", handler.handleDeleteMessage)
	protected.POST("/messages/:message_id/reactions", handler.handleAddReaction)

	protected.GET("/events", handler.handleListEvents)
	protected.POST("/events", handler.handleCreateEvent)
	protected.GET("/events/:event_id/participants", handler.handleListParticipants)
	protected.POST("/events/:event_id/rsvp", handler.handleRSVP)

	protected.GET("/lfg", handler.handleListLFGPosts)
	protected.POST("/lfg", handler.handleCreateLFGPost)
	protected.POST("/lfg/:post_id/join", handler.handleJoinLFGPost)
	protected.POST("/lfg/:post_id/leave", handler.handleLeaveLFGPost)

	protected.GET("/polls", handler.handleListPolls)
	protected.POST("/polls", handler.handleCreatePoll)
	protected.POST("/polls/:poll_id/vote", handler.handleVote)
	protected.POST("/polls/:poll_id/close", handler.handleClosePoll)

	protected.POST("/boards", handler.handleCreateBoard)
	protected.GET("/boards/:board_id/columns", handler.handleListColumns)
	protected.POST("/boards/:board_id/tasks", handler.handleCreateTask)
	protected.GET("/columns/:column_id/tasks", handler.handleListTasks)
	protected.POST("/tasks/:task_id/move", handler.handleMoveTask)

	protected.GET("/notifications", handler.handleListNotifications)
	protected.POST("/notifications/read_all", handler.handleMarkAllRead)
	protected.POST("/notifications/:notification_id/read", handler.handleMarkRead)

	protected.GET("/realtime/:table/:scope", handler.handleRealtime)

	return router, nil
}

type httpHandler struct {
	deps   Dependencies
	logger *zap.Logger
}

type sessionRequestPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type sessionResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
}

func (h *httpHandler) handleSession(c *gin.Context) {
	var request sessionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	profile, err := h.deps.Identity.Ensure(c.Request.Context(), request.UserID, request.Username)
	if err != nil {
		h.logger.Error("failed to resolve profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile_failed"})
		return
	}

	token, expiresIn, err := h.deps.TokenManager.IssueToken(c.Request.Context(), profile.UserID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, sessionResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		UserID:      profile.UserID,
		Username:    profile.Username,
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.deps.TokenManager.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

// respondError maps domain sentinels to HTTP statuses, falling back to 500.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, livesync.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, livesync.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, livesync.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, livesync.ErrCapacityExceeded):
		c.JSON(http.StatusConflict, gin.H{"error": "capacity_exceeded"})
	case errors.Is(err, livesync.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}

type createChannelPayload struct {
	SquadID string `json:"squad_id"`
	Name    string `json:"name"`
}

func (h *httpHandler) handleCreateChannel(c *gin.Context) {
	var request createChannelPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	channel, err := h.deps.Chat.CreateChannel(c.Request.Context(), request.SquadID, request.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, channel)
}

func (h *httpHandler) handleListChannels(c *gin.Context) {
	channels, err := h.deps.Chat.ListChannels(c.Request.Context(), c.Query("squad_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

type sendMessagePayload struct {
	Content  string `json:"content"`
	ImageURL string `json:"image_url"`
}

func (h *httpHandler) handleSendMessage(c *gin.Context) {
	channelID, err := chat.NewChannelID(c.Param("channel_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_channel"})
		return
	}
	var request sendMessagePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	record, err := h.deps.Chat.SendMessage(c.Request.Context(), channelID, c.GetString(userIDContextKey), request.Content, request.ImageURL)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *httpHandler) handleListMessages(c *gin.Context) {
	channelID, err := chat.NewChannelID(c.Param("channel_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_channel"})
		return
	}
	records, err := h.deps.Chat.ListMessages(c.Request.Context(), channelID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": records})
}

func (h *httpHandler) handleDeleteMessage(c *gin.Context) {
	err := h.deps.Chat.DeleteMessage(c.Request.Context(), c.Param("message_id"), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type addReactionPayload struct {
	Emoji string `json:"emoji"`
}

func (h *httpHandler) handleAddReaction(c *gin.Context) {
	var request addReactionPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Emoji) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	reaction, err := h.deps.Chat.AddReaction(c.Request.Context(), c.Param("message_id"), c.GetString(userIDContextKey), request.Emoji)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reaction)
}

type createEventPayload struct {
	SquadID          string `json:"squad_id"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	Location         string `json:"location"`
	StartTimeSeconds int64  `json:"start_time_s"`
	EndTimeSeconds   int64  `json:"end_time_s"`
	MaxParticipants  int    `json:"max_participants"`
}

func (h *httpHandler) handleCreateEvent(c *gin.Context) {
	var request createEventPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	event, err := h.deps.Events.CreateEvent(c.Request.Context(), events.CreateEventInput{
		SquadID:          request.SquadID,
		CreatedBy:        c.GetString(userIDContextKey),
		Title:            request.Title,
		Description:      request.Description,
		Location:         request.Location,
		StartTimeSeconds: request.StartTimeSeconds,
		EndTimeSeconds:   request.EndTimeSeconds,
		MaxParticipants:  request.MaxParticipants,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

func (h *httpHandler) handleListEvents(c *gin.Context) {
	list, err := h.deps.Events.ListEvents(c.Request.Context(), c.Query("squad_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": list})
}

func (h *httpHandler) handleListParticipants(c *gin.Context) {
	participants, err := h.deps.Events.Participants(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": participants})
}

type rsvpPayload struct {
	Status string `json:"status"`
}

func (h *httpHandler) handleRSVP(c *gin.Context) {
	var request rsvpPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	participant, err := h.deps.Events.RSVP(c.Request.Context(), c.Param("event_id"), c.GetString(userIDContextKey), request.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, participant)
}

type createLFGPostPayload struct {
	SquadID     string `json:"squad_id"`
	Game        string `json:"game"`
	Description string `json:"description"`
	MaxPlayers  int    `json:"max_players"`
}

func (h *httpHandler) handleCreateLFGPost(c *gin.Context) {
	var request createLFGPostPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	post, err := h.deps.Gaming.CreatePost(c.Request.Context(), request.SquadID, c.GetString(userIDContextKey), request.Game, request.Description, request.MaxPlayers)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (h *httpHandler) handleListLFGPosts(c *gin.Context) {
	posts, err := h.deps.Gaming.ListPosts(c.Request.Context(), c.Query("squad_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (h *httpHandler) handleJoinLFGPost(c *gin.Context) {
	participant, err := h.deps.Gaming.Join(c.Request.Context(), c.Param("post_id"), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, participant)
}

func (h *httpHandler) handleLeaveLFGPost(c *gin.Context) {
	err := h.deps.Gaming.Leave(c.Request.Context(), c.Param("post_id"), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type createPollPayload struct {
	SquadID       string   `json:"squad_id"`
	Question      string   `json:"question"`
	PollType      string   `json:"poll_type"`
	EndsAtSeconds int64    `json:"ends_at_s"`
	Options       []string `json:"options"`
}

func (h *httpHandler) handleCreatePoll(c *gin.Context) {
	var request createPollPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	poll, options, err := h.deps.Polls.CreatePoll(c.Request.Context(), polls.CreatePollInput{
		SquadID:       request.SquadID,
		CreatedBy:     c.GetString(userIDContextKey),
		Question:      request.Question,
		PollType:      request.PollType,
		EndsAtSeconds: request.EndsAtSeconds,
		OptionLabels:  request.Options,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"poll": poll, "options": options})
}

func (h *httpHandler) handleListPolls(c *gin.Context) {
	list, err := h.deps.Polls.ListPolls(c.Request.Context(), c.Query("squad_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"polls": list})
}

type votePayload struct {
	OptionID string `json:"option_id"`
}

func (h *httpHandler) handleVote(c *gin.Context) {
	var request votePayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.OptionID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	action, err := h.deps.Polls.Vote(c.Request.Context(), c.Param("poll_id"), request.OptionID, c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"action": action})
}

func (h *httpHandler) handleClosePoll(c *gin.Context) {
	err := h.deps.Polls.ClosePoll(c.Request.Context(), c.Param("poll_id"), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type createBoardPayload struct {
	SquadID string `json:"squad_id"`
	Name    string `json:"name"`
}

func (h *httpHandler) handleCreateBoard(c *gin.Context) {
	var request createBoardPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	board, err := h.deps.Boards.CreateBoard(c.Request.Context(), request.SquadID, request.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, board)
}

func (h *httpHandler) handleListColumns(c *gin.Context) {
	columns, err := h.deps.Boards.ListColumns(c.Request.Context(), c.Param("board_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"columns": columns})
}

type createTaskPayload struct {
	ColumnID    string `json:"column_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *httpHandler) handleCreateTask(c *gin.Context) {
	var request createTaskPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	task, err := h.deps.Boards.CreateTask(c.Request.Context(), c.Param("board_id"), request.ColumnID, c.GetString(userIDContextKey), request.Title, request.Description)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *httpHandler) handleListTasks(c *gin.Context) {
	tasks, err := h.deps.Boards.ListTasks(c.Request.Context(), c.Param("column_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

type moveTaskPayload struct {
	ToColumnID string `json:"to_column_id"`
	ToIndex    int    `json:"to_index"`
}

func (h *httpHandler) handleMoveTask(c *gin.Context) {
	var request moveTaskPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.ToColumnID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	task, err := h.deps.Boards.MoveTask(c.Request.Context(), c.Param("task_id"), request.ToColumnID, request.ToIndex)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *httpHandler) handleListNotifications(c *gin.Context) {
	list, err := h.deps.Notifications.ListForUser(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

func (h *httpHandler) handleMarkRead(c *gin.Context) {
	err := h.deps.Notifications.MarkRead(c.Request.Context(), c.Param("notification_id"), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleMarkAllRead(c *gin.Context) {
	err := h.deps.Notifications.MarkAllRead(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type realtimeEventPayload struct {
	Kind      string `json:"kind"`
	Table     string `json:"table"`
	Scope     string `json:"scope"`
	RowID     string `json:"row_id"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp int64  `json:"timestamp_s"`
}

// handleRealtime streams change feed events for one (table, scope) pair
// over SSE. Events published while the connection is down are not
// replayed; clients must re-fetch the scope after reconnecting.
func (h *httpHandler) handleRealtime(c *gin.Context) {
	table := c.Param("table")
	scope := c.Param("scope")

	subscription := h.deps.Feed.Subscribe(c.Request.Context(), table, scope)
	defer subscription.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("status", string(subscription.Status()))
	c.Writer.Flush()

	for {
		select {
		case event, ok := <-subscription.Events():
			if !ok {
				c.SSEvent("status", string(livesync.StatusClosed))
				c.Writer.Flush()
				return
			}
			c.SSEvent("change", realtimeEventPayload{
				Kind:      string(event.Kind),
				Table:     event.Table,
				Scope:     event.Scope,
				RowID:     event.RowID,
				Payload:   event.Payload,
				Timestamp: event.Timestamp.Unix(),
			})
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}
