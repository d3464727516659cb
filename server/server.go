// Package server exposes the assistant over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/becomeliminal/docqa/assistant"
	"github.com/becomeliminal/docqa/conversation"
	"github.com/becomeliminal/docqa/core"
	"github.com/becomeliminal/docqa/extract"
	"github.com/becomeliminal/docqa/pkg/logger"
)

// Service is the slice of the assistant the HTTP layer needs.
type Service interface {
	Upload(ctx context.Context, userID, conversationID, path, filename string) (*assistant.UploadResult, error)
	Ask(ctx context.Context, userID, conversationID, question, docID string, topK int) (*assistant.AskResult, error)
	VoiceAsk(ctx context.Context, userID, conversationID string, audio []byte, mimeType, docID string, topK int) (*assistant.AskResult, string, error)
	Search(ctx context.Context, userID, conversationID, query, docID string, topK int) ([]string, error)
}

// Conversations is the read surface over conversation state.
type Conversations interface {
	Load(ctx context.Context, userID, conversationID string) (*conversation.State, error)
	List(ctx context.Context, userID string) ([]string, error)
}

// Config holds server settings.
type Config struct {
	Addr      string
	Mode      string // gin mode
	UploadDir string
}

// Server routes HTTP requests to the assistant.
type Server struct {
	engine    *gin.Engine
	svc       Service
	conv      Conversations
	uploadDir string
	addr      string
	log       *logger.Logger
}

// New builds the server and registers its routes.
func New(cfg Config, svc Service, conv Conversations, log *logger.Logger) *Server {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	s := &Server{
		engine:    gin.New(),
		svc:       svc,
		conv:      conv,
		uploadDir: cfg.UploadDir,
		addr:      cfg.Addr,
		log:       log.With("component", "server"),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.POST("/upload", s.handleUpload)
	s.engine.POST("/ask", s.handleAsk)
	s.engine.POST("/voice-ask", s.handleVoiceAsk)
	s.engine.POST("/search", s.handleSearch)
	s.engine.GET("/conversation", s.handleGetConversation)
	s.engine.GET("/conversations", s.handleListConversations)
}

// Run blocks serving HTTP until the listener fails.
func (s *Server) Run() error {
	s.log.Info("listening", "addr", s.addr)
	return s.engine.Run(s.addr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// POST /upload (multipart: file, user_id, conversation_id)
func (s *Server) handleUpload(c *gin.Context) {
	userID := c.PostForm("user_id")
	conversationID := c.PostForm("conversation_id")
	if userID == "" || conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and conversation_id are required"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	dst := filepath.Join(s.uploadDir, uuid.NewString()+"_"+filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, dst); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	res, err := s.svc.Upload(c.Request.Context(), userID, conversationID, dst, file.Filename)
	if err != nil {
		if errors.Is(err, extract.ErrEmptyDocument) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no text found in document"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":         userID,
		"conversation_id": conversationID,
		"doc_id":          res.DocID,
		"filename":        res.Filename,
		"translated":      res.Translated,
		"chunks_added":    res.ChunksAdded,
	})
}

type askRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	ConversationID string `json:"conversation_id" binding:"required"`
	Question       string `json:"question" binding:"required"`
	DocID          string `json:"doc_id"`
	TopK           int    `json:"top_k"`
}

// POST /ask
func (s *Server) handleAsk(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.svc.Ask(c.Request.Context(), req.UserID, req.ConversationID, req.Question, req.DocID, req.TopK)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":         req.UserID,
		"conversation_id": req.ConversationID,
		"answer":          res.Answer,
		"memory_used":     res.MemoryUsed,
	})
}

// POST /voice-ask (multipart: audio, user_id, conversation_id, doc_id, top_k)
func (s *Server) handleVoiceAsk(c *gin.Context) {
	userID := c.PostForm("user_id")
	conversationID := c.PostForm("conversation_id")
	if userID == "" || conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and conversation_id are required"})
		return
	}

	file, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio is required"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	audio, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	mimeType := file.Header.Get("Content-Type")
	res, transcript, err := s.svc.VoiceAsk(c.Request.Context(), userID, conversationID, audio, mimeType, c.PostForm("doc_id"), 0)
	if err != nil {
		if errors.Is(err, assistant.ErrEmptyTranscript) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no speech recognized"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":         userID,
		"conversation_id": conversationID,
		"transcript":      transcript,
		"answer":          res.Answer,
		"memory_used":     res.MemoryUsed,
	})
}

type searchRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	ConversationID string `json:"conversation_id" binding:"required"`
	Query          string `json:"query" binding:"required"`
	DocID          string `json:"doc_id"`
	TopK           int    `json:"top_k"`
}

// POST /search
func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := s.svc.Search(c.Request.Context(), req.UserID, req.ConversationID, req.Query, req.DocID, req.TopK)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if results == nil {
		results = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":         req.UserID,
		"conversation_id": req.ConversationID,
		"doc_id_filter":   req.DocID,
		"results":         results,
	})
}

// GET /conversation?user_id=...&conversation_id=...
func (s *Server) handleGetConversation(c *gin.Context) {
	userID := c.Query("user_id")
	conversationID := c.Query("conversation_id")
	if userID == "" || conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and conversation_id are required"})
		return
	}

	st, err := s.conv.Load(c.Request.Context(), userID, conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	messages := st.Messages
	if messages == nil {
		messages = []core.Message{}
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conversationID,
		"summary":         st.Summary,
		"messages":        messages,
	})
}

// GET /conversations?user_id=...
func (s *Server) handleListConversations(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	ids, err := s.conv.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ids == nil {
		ids = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"conversations": ids})
}
