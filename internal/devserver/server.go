// Package devserver is an in-memory stand-in for the KSTU portal API. It
// exists so the client can be exercised end to end on a laptop: real JWT
// pairs, attendance records, profile data and notification pushes, no
// backend required.
package devserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kstu-mobile/internal/config"
	attdomain "kstu-mobile/internal/domain/attendance"
	"kstu-mobile/internal/domain/portal"
	"kstu-mobile/internal/pkg/response"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	hub    *Hub

	mu         sync.Mutex
	accounts   map[string]*Account
	byID       map[int64]*Account
	records    map[int64][]attdomain.Record
	startTimes map[int64]time.Time
	nextID     int64
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		engine:     gin.Default(),
		logger:     logger,
		hub:        NewHub(logger),
		accounts:   make(map[string]*Account),
		byID:       make(map[int64]*Account),
		records:    make(map[int64][]attdomain.Record),
		startTimes: make(map[int64]time.Time),
		nextID:     1,
	}
	s.seedAccounts()
	s.routes()
	return s
}

// Handler exposes the engine, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Start() error {
	s.logger.Info("dev server listening", zap.String("addr", s.cfg.DevAddr))
	return s.engine.Run(s.cfg.DevAddr)
}

func (s *Server) routes() {
	api := s.engine.Group("/api/v1")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": "1.0.0"})
	})

	auth := api.Group("/auth")
	{
		auth.POST("/login", s.handleLogin)
		auth.POST("/token/refresh", s.handleRefresh)
	}

	protected := api.Group("")
	protected.Use(s.authRequired())
	{
		protected.GET("/attendance", s.handleHistory)
		protected.GET("/attendance/last", s.handleLastRecord)
		protected.POST("/attendance", s.handleSubmit)

		protected.GET("/profile", s.handleProfile)
		protected.GET("/tasks", s.handleTasks)
		protected.GET("/documents", s.handleDocuments)
		protected.GET("/news", s.handleNews)
	}

	s.engine.GET("/ws", s.handleWS)
}

func (s *Server) handleProfile(c *gin.Context) {
	acc := s.account(c)
	if acc == nil {
		return
	}
	response.Success(c, http.StatusOK, "profile", portal.Profile{
		ID:         acc.User.ID,
		FirstName:  acc.User.FirstName,
		LastName:   acc.User.LastName,
		Patronymic: acc.User.Patronymic,
		Email:      acc.User.Email,
		Phone:      acc.User.Phone,
		AvatarURL:  acc.User.AvatarURL,
		Department: acc.Department,
		Position:   acc.Position,
	})
}

func (s *Server) handleTasks(c *gin.Context) {
	response.Success(c, http.StatusOK, "tasks", []portal.Task{
		{ID: 1, Title: "Сдать отчет по практике", Status: "open", Deadline: "2026-09-15"},
		{ID: 2, Title: "Заполнить анкету HR", Status: "done", Deadline: "2026-08-01"},
	})
}

func (s *Server) handleDocuments(c *gin.Context) {
	response.Success(c, http.StatusOK, "documents", []portal.Document{
		{ID: 1, Title: "Справка с места учебы", URL: "/files/spravka.pdf", Date: "2026-06-10"},
	})
}

func (s *Server) handleNews(c *gin.Context) {
	response.Success(c, http.StatusOK, "news", []portal.NewsItem{
		{ID: 1, Title: "Начало учебного года", Body: "Занятия начинаются 1 сентября.", PublishedAt: "2026-08-20"},
	})
}
