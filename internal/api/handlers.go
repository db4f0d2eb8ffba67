package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stubot/internal/exchange"
	"stubot/internal/repository"
	"stubot/internal/utils"
)

// Exchanger runs a single exchange.
type Exchanger interface {
	Process(ctx context.Context, req exchange.Request) (*exchange.Result, error)
}

// Options configures the HTTP surface. Admin endpoints are open when
// AdminToken is empty.
type Options struct {
	AudioDir       string
	AudioURLPrefix string
	AdminToken     string
	MaxUploadBytes int64
}

type Handler struct {
	exchanges Exchanger
	log       repository.ExchangeRepository
	opts      Options
	logger    *slog.Logger
}

func NewHandler(exchanges Exchanger, log repository.ExchangeRepository, opts Options, logger *slog.Logger) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 25 << 20
	}
	return &Handler{
		exchanges: exchanges,
		log:       log,
		opts:      opts,
		logger:    logger.With("component", "api"),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.Use(metricsMiddleware())

	// Health check
	r.GET("/health", h.healthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if h.opts.AudioDir != "" && h.opts.AudioURLPrefix != "" {
		r.Static(h.opts.AudioURLPrefix, h.opts.AudioDir)
	}

	// Kept at the root for existing chat front ends.
	r.POST("/chat", h.chat)

	// API v1
	v1 := r.Group("/api/v1")
	{
		v1.POST("/chat", h.chat)

		admin := v1.Group("/admin", adminAuth(h.opts.AdminToken))
		admin.GET("/stats", h.stats)
		admin.GET("/exchanges", h.listExchanges)
		admin.GET("/exchanges/:id", h.getExchange)
		admin.DELETE("/exchanges/:id", h.deleteExchange)
	}
}

// healthCheck returns server health status
func (h *Handler) healthCheck(c *gin.Context) {
	utils.Success(c, gin.H{
		"status":  "ok",
		"service": "stubot",
	})
}

type chatRequest struct {
	UserID  string `json:"userId" form:"userId"`
	Message string `json:"message" form:"message"`
}

var errPayloadTooLarge = errors.New("request body too large")

// chat accepts either a JSON body or a form with an optional voice_audio file.
func (h *Handler) chat(c *gin.Context) {
	req, err := h.readChatRequest(c)
	switch {
	case errors.Is(err, errPayloadTooLarge):
		utils.Error(c, http.StatusRequestEntityTooLarge, err.Error())
		return
	case err != nil:
		utils.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.exchanges.Process(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	// Flat body instead of the utils envelope: chat front ends read response and bot_audio_url at the top level.
	body := gin.H{
		"response":       res.ReplyText,
		"bot_audio_url":  res.BotAudioURL,
		"user_audio_url": res.UserAudioURL,
		"outcome":        res.Outcome,
	}
	if res.ExchangeID != uuid.Nil {
		body["exchange_id"] = res.ExchangeID
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) readChatRequest(c *gin.Context) (exchange.Request, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)

	var body chatRequest
	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if mediaType == "application/json" {
		if err := c.ShouldBindJSON(&body); err != nil {
			if isTooLarge(err) {
				return exchange.Request{}, errPayloadTooLarge
			}
			return exchange.Request{}, errors.New("invalid JSON body")
		}
		return exchange.Request{UserID: body.UserID, Message: body.Message}, nil
	}

	if err := c.Request.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		if isTooLarge(err) {
			return exchange.Request{}, errPayloadTooLarge
		}
		return exchange.Request{}, errors.New("failed to parse form")
	}
	req := exchange.Request{
		UserID:  c.PostForm("userId"),
		Message: c.PostForm("message"),
	}

	if c.Request.MultipartForm == nil {
		return req, nil
	}
	file, err := c.FormFile("voice_audio")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return exchange.Request{}, errors.New("failed to read voice_audio")
	}
	f, err := file.Open()
	if err != nil {
		return exchange.Request{}, errors.New("failed to read voice_audio")
	}
	defer f.Close()
	if req.VoiceAudio, err = io.ReadAll(f); err != nil {
		return exchange.Request{}, errors.New("failed to read voice_audio")
	}
	return req, nil
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

// fail maps domain errors onto HTTP status codes.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, exchange.ErrInvalidInput):
		utils.Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		utils.Error(c, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		utils.Error(c, http.StatusInternalServerError, "internal server error")
	}
}
