package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// DefaultHistoryLimit is how many messages the history endpoint returns.
const DefaultHistoryLimit = 100

const userContextKey = "user"

// Registry reports live connection counts for the health endpoint.
type Registry interface {
	GetStats() map[string]int
}

// WebSocketHandler upgrades a session channel request for the named room.
type WebSocketHandler interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request, channelName string)
}

// Server is the REST backend: accounts, rooms, chat history and the
// session channel endpoint. It holds no business state of its own.
type Server struct {
	db           interfaces.DatabaseManager
	registry     Registry
	ws           WebSocketHandler
	historyLimit int
	echo         *echo.Echo
	logger       *zap.Logger
}

// Options tunes a Server. Zero values select defaults.
type Options struct {
	HistoryLimit int
}

func NewServer(db interfaces.DatabaseManager, registry Registry, ws WebSocketHandler, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	s := &Server{
		db:           db,
		registry:     registry,
		ws:           ws,
		historyLimit: opts.HistoryLimit,
		echo:         e,
		logger:       logger.Named("api"),
	}

	e.Pre(middleware.AddTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
		MaxAge:       86400,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("request",
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health/", s.healthCheck)
	s.echo.POST("/api/auth/register/", s.register)

	auth := s.echo.Group("/api", s.tokenAuth)
	auth.GET("/auth/me/", s.me)
	auth.GET("/chatrooms/", s.listRooms)
	auth.POST("/chatrooms/", s.createRoom)
	auth.GET("/chatrooms/:id/", s.getRoom)
	auth.POST("/chatrooms/:id/join/", s.joinRoom)
	auth.GET("/chatrooms/:id/messages/", s.messages)
	auth.POST("/chatrooms/:id/send/", s.send)

	s.echo.GET("/ws/chat/:room/", s.handleWebSocket)
}

// ServeHTTP makes the server usable as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

type RegisterRequest struct {
	Username string     `json:"username"`
	UserType types.Role `json:"user_type"`
}

type RegisterResponse struct {
	Token string      `json:"token"`
	User  *types.User `json:"user"`
}

type CreateRoomRequest struct {
	Name         string   `json:"name"`
	Participants []string `json:"participants"`
}

type SendRequest struct {
	Content string `json:"content"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// tokenAuth resolves "Authorization: Token <key>" to a user.
func (s *Server) tokenAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Token ")
		if !ok || strings.TrimSpace(token) == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Authentication credentials were not provided.")
		}
		user, err := s.db.GetUserByToken(c.Request().Context(), strings.TrimSpace(token))
		if err != nil {
			if errors.Is(err, interfaces.ErrUserNotFound) {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token.")
			}
			return s.internalError("token lookup failed", err)
		}
		c.Set(userContextKey, user)
		return next(c)
	}
}

func currentUser(c echo.Context) *types.User {
	user, _ := c.Get(userContextKey).(*types.User)
	return user
}

func (s *Server) register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body.")
	}
	if !types.IsValidUsername(req.Username) {
		return echo.NewHTTPError(http.StatusBadRequest, types.ErrInvalidUsername.Error())
	}
	if !req.UserType.IsValid() {
		return echo.NewHTTPError(http.StatusBadRequest, types.ErrInvalidRole.Error())
	}

	user := &types.User{
		ID:       uuid.NewString(),
		Username: req.Username,
		UserType: req.UserType,
		Token:    strings.ReplaceAll(uuid.NewString(), "-", ""),
		Created:  time.Now().UTC(),
	}
	if err := s.db.CreateUser(c.Request().Context(), user); err != nil {
		if errors.Is(err, interfaces.ErrUserExists) {
			return echo.NewHTTPError(http.StatusBadRequest, "A user with that username already exists.")
		}
		return s.internalError("create user failed", err)
	}

	token := user.Token
	user.Token = ""
	return c.JSON(http.StatusCreated, RegisterResponse{Token: token, User: user})
}

func (s *Server) me(c echo.Context) error {
	return c.JSON(http.StatusOK, currentUser(c))
}

func (s *Server) listRooms(c echo.Context) error {
	rooms, err := s.db.ListRooms(c.Request().Context())
	if err != nil {
		return s.internalError("list rooms failed", err)
	}
	return c.JSON(http.StatusOK, rooms)
}

// createRoom adds the creator and every named participant that has an
// account; unknown names are ignored.
func (s *Server) createRoom(c echo.Context) error {
	var req CreateRoomRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body.")
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := types.ValidateRoomName(req.Name); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	user := currentUser(c)
	room := &types.Room{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Participants: append([]string{user.Username}, req.Participants...),
	}
	if err := s.db.CreateRoom(c.Request().Context(), room); err != nil {
		return s.internalError("create room failed", err)
	}
	s.logger.Info("room created",
		zap.String("room", room.ID),
		zap.String("name", room.Name),
		zap.String("by", user.Username))
	return c.JSON(http.StatusCreated, room)
}

func (s *Server) getRoom(c echo.Context) error {
	room, err := s.lookupRoom(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, room)
}

func (s *Server) joinRoom(c echo.Context) error {
	room, err := s.joinCurrentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, room)
}

// messages returns the most recent history, oldest first. Viewing a room
// joins it.
func (s *Server) messages(c echo.Context) error {
	room, err := s.joinCurrentUser(c)
	if err != nil {
		return err
	}
	msgs, err := s.db.GetRecentMessages(c.Request().Context(), room.ID, s.historyLimit)
	if err != nil {
		return s.internalError("load history failed", err)
	}
	return c.JSON(http.StatusOK, msgs)
}

// send posts a chat message over REST. The content is stored trimmed.
func (s *Server) send(c echo.Context) error {
	room, err := s.joinCurrentUser(c)
	if err != nil {
		return err
	}

	var req SendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body.")
	}
	content, err := types.ValidateChatContent(req.Content)
	if err != nil {
		if errors.Is(err, types.ErrEmptyMessage) {
			return echo.NewHTTPError(http.StatusBadRequest, "Message content required.")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	user := currentUser(c)
	msg := &types.ChatMessage{
		ID:         uuid.NewString(),
		RoomID:     room.ID,
		SenderName: user.Username,
		UserType:   user.UserType,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.StoreMessage(c.Request().Context(), msg); err != nil {
		return s.internalError("store message failed", err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) lookupRoom(c echo.Context) (*types.Room, error) {
	room, err := s.db.GetRoom(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, interfaces.ErrRoomNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "Not found.")
		}
		return nil, s.internalError("room lookup failed", err)
	}
	return room, nil
}

func (s *Server) joinCurrentUser(c echo.Context) (*types.Room, error) {
	room, err := s.lookupRoom(c)
	if err != nil {
		return nil, err
	}
	user := currentUser(c)
	if room.HasParticipant(user.Username) {
		return room, nil
	}
	if err := s.db.AddParticipant(c.Request().Context(), room.ID, user.Username); err != nil {
		return nil, s.internalError("join room failed", err)
	}
	room.Participants = append(room.Participants, user.Username)
	return room, nil
}

func (s *Server) handleWebSocket(c echo.Context) error {
	if s.ws == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Session channel unavailable.")
	}
	// The handler writes its own response, including handshake errors.
	s.ws.HandleWebSocket(c.Response(), c.Request(), c.Param("room"))
	return nil
}

// healthCheck returns 503 when the database is unreachable.
func (s *Server) healthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Database:  "healthy",
	}
	if err := s.db.HealthCheck(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Database = "error: " + err.Error()
	}
	if s.registry != nil {
		resp.Connections = s.registry.GetStats()
	}

	if resp.Status != "healthy" {
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) internalError(msg string, err error) error {
	s.logger.Error(msg, zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error.")
}

// errorHandler renders every error as {"detail": "..."}.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	detail := http.StatusText(code)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			detail = msg
		} else {
			detail = http.StatusText(code)
		}
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, ErrorResponse{Detail: detail})
}
