package chat

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"ChatWire/logger"

	mw "ChatWire/middleware/security"
	core "ChatWire/service/chat"
	"ChatWire/service/storage"
	mgo "ChatWire/service/storage/mongo"
	"ChatWire/tools/errs"

	"github.com/gin-gonic/gin"
)

// Handler owns the room and history REST surface. Live delivery goes over
// the WebSocket; these endpoints cover listing, membership management and
// paging back through history.
type Handler struct {
	bridge *storage.Bridge
}

func NewHandler(bridge *storage.Bridge) *Handler {
	return &Handler{bridge: bridge}
}

func (h *Handler) Register(authed gin.IRouter) {
	authed.GET("/channels", h.ListChannels)
	authed.POST("/channels", h.CreateChannel)
	authed.POST("/channels/:id/join", h.JoinChannel)
	authed.POST("/channels/:id/leave", h.LeaveChannel)
	authed.GET("/channels/:id/members", h.ChannelMembers)

	authed.GET("/conversations", h.ListConversations)
	authed.POST("/conversations", h.OpenConversation)
	authed.GET("/conversations/:id", h.GetConversation)

	authed.GET("/messages/:roomId", h.History)
	authed.POST("/messages/:roomId", h.PostMessage)
	authed.POST("/dm/:conversationId/read", h.MarkRead)
}

// ---- channels ----

type createChannelReq struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func (h *Handler) CreateChannel(c *gin.Context) {
	var req createChannelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrValidation.WithDetail(err.Error()))
		return
	}
	ch, err := h.bridge.Channels.Create(c.Request.Context(), req.Name, req.Description, mw.UserID(c))
	if err != nil {
		if errs.ErrRecordExists.Is(err) {
			c.JSON(http.StatusConflict, errs.ErrRecordExists)
			return
		}
		c.JSON(http.StatusInternalServerError, errs.ErrDependency)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": channelView(ch)})
}

// ListChannels is the browse view; ?mine=true narrows it to channels the
// caller belongs to.
func (h *Handler) ListChannels(c *gin.Context) {
	var (
		channels []*mgo.Channel
		err      error
	)
	if c.Query("mine") == "true" {
		channels, err = h.bridge.Channels.ListForUser(c.Request.Context(), mw.UserID(c))
	} else {
		channels, err = h.bridge.Channels.ListAll(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrDependency)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": channelViews(channels)})
}

func (h *Handler) JoinChannel(c *gin.Context) {
	if err := h.bridge.Channels.Join(c.Request.Context(), c.Param("id"), mw.UserID(c)); err != nil {
		writeStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"joined": true})
}

func (h *Handler) LeaveChannel(c *gin.Context) {
	if err := h.bridge.Channels.Leave(c.Request.Context(), c.Param("id"), mw.UserID(c)); err != nil {
		writeStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"left": true})
}

func (h *Handler) ChannelMembers(c *gin.Context) {
	ch, err := h.bridge.Channels.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeStoreErr(c, err)
		return
	}
	displays, err := h.bridge.Users.DisplayMap(c.Request.Context(), ch.Members)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrDependency)
		return
	}
	out := make([]core.UserDisplay, 0, len(ch.Members))
	for _, id := range ch.Members {
		if d, ok := displays[id]; ok {
			out = append(out, d)
		} else {
			out = append(out, core.UserDisplay{ID: id})
		}
	}
	c.JSON(http.StatusOK, gin.H{"members": out})
}

// ---- conversations ----

type openConversationReq struct {
	PeerID string `json:"peerId" binding:"required"`
}

// OpenConversation returns the direct room with the peer, creating it on
// first contact.
func (h *Handler) OpenConversation(c *gin.Context) {
	var req openConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrValidation.WithDetail(err.Error()))
		return
	}
	userID := mw.UserID(c)
	if req.PeerID == userID {
		c.JSON(http.StatusBadRequest, errs.ErrValidation.WithDetail("cannot converse with self"))
		return
	}
	if _, err := h.bridge.Users.FindByID(c.Request.Context(), req.PeerID); err != nil {
		writeStoreErr(c, err)
		return
	}
	conv, err := h.bridge.Conversations.GetOrCreateWith(c.Request.Context(), userID, req.PeerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrDependency)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conversationView(conv, userID)})
}

func (h *Handler) ListConversations(c *gin.Context) {
	userID := mw.UserID(c)
	conversations, err := h.bridge.Conversations.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrDependency)
		return
	}
	out := make([]gin.H, 0, len(conversations))
	for _, conv := range conversations {
		out = append(out, conversationView(conv, userID))
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

func (h *Handler) GetConversation(c *gin.Context) {
	userID := mw.UserID(c)
	conv, err := h.bridge.Conversations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeStoreErr(c, err)
		return
	}
	if !contains(conv.Participants, userID) {
		c.JSON(http.StatusNotFound, errs.ErrRecordNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conversationView(conv, userID)})
}

// ---- history ----

// History pages a room's messages. Non-members get the same not-found
// response as a room that does not exist.
func (h *Handler) History(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("roomId")
	userID := mw.UserID(c)

	room, err := h.bridge.Resolve(ctx, roomID)
	if err != nil {
		writeStoreErr(c, err)
		return
	}
	member, err := h.bridge.IsMember(ctx, userID, roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrDependency)
		return
	}
	if !member {
		c.JSON(http.StatusNotFound, errs.ErrRecordNotFound)
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	var before time.Time
	if raw := c.Query("before"); raw != "" {
		before, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errs.ErrValidation.WithDetail("before must be RFC3339"))
			return
		}
	}

	page, err := h.bridge.HistoryFor(ctx, room, limit, before)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrDependency)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": page})
}

type postMessageReq struct {
	Content string `json:"content" binding:"required"`
}

// PostMessage is the REST fallback: it persists and bumps last-activity
// but does not broadcast; live delivery is the WebSocket's job.
func (h *Handler) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("roomId")
	userID := mw.UserID(c)

	var req postMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrValidation.WithDetail(err.Error()))
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, errs.ErrValidation.WithDetail("empty message content"))
		return
	}

	room, err := h.bridge.Resolve(ctx, roomID)
	if err != nil {
		writeStoreErr(c, err)
		return
	}
	member, err := h.bridge.IsMember(ctx, userID, roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrDependency)
		return
	}
	if !member {
		c.JSON(http.StatusNotFound, errs.ErrRecordNotFound)
		return
	}

	msg, err := h.bridge.Append(ctx, room, userID, content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrDependency)
		return
	}
	if err := h.bridge.UpdateLastActivity(ctx, room, msg); err != nil {
		logger.Warnf("[rest] last activity room=%s err=%v", roomID, err)
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *Handler) MarkRead(c *gin.Context) {
	ctx := c.Request.Context()
	conversationID := c.Param("conversationId")
	userID := mw.UserID(c)

	ok, err := h.bridge.Conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrDependency)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, errs.ErrRecordNotFound)
		return
	}
	n, err := h.bridge.Messages.MarkRead(ctx, conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrDependency)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

// ---- views ----

func channelView(ch *mgo.Channel) gin.H {
	return gin.H{
		"id":           ch.ID.Hex(),
		"name":         ch.Name,
		"description":  ch.Description,
		"creatorId":    ch.CreatorID,
		"members":      ch.Members,
		"lastActivity": ch.LastActivity.UTC().Format(time.RFC3339),
	}
}

func channelViews(channels []*mgo.Channel) []gin.H {
	out := make([]gin.H, 0, len(channels))
	for _, ch := range channels {
		out = append(out, channelView(ch))
	}
	return out
}

func conversationView(conv *mgo.Conversation, userID string) gin.H {
	return gin.H{
		"id":           conv.ID.Hex(),
		"peerId":       conv.PeerOf(userID),
		"lastMessage":  conv.LastMessage,
		"lastActivity": conv.LastActivity.UTC().Format(time.RFC3339),
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func writeStoreErr(c *gin.Context, err error) {
	switch {
	case errs.ErrRecordNotFound.Is(err):
		c.JSON(http.StatusNotFound, errs.ErrRecordNotFound)
	case errs.IsValidation(err):
		ce, _ := errs.CodeOf(err)
		c.JSON(http.StatusBadRequest, ce)
	default:
		c.JSON(http.StatusInternalServerError, errs.ErrDependency)
	}
}
