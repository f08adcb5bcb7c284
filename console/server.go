package console

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LoveWonYoung/vcimon/config"
	"github.com/LoveWonYoung/vcimon/driver"
)

// Server exposes the console model over HTTP and pushes a snapshot to every
// WebSocket client once per tick.
type Server struct {
	router *gin.Engine
	app    *App
	hub    *Hub
	logger *zap.Logger
	server *http.Server
	tick   time.Duration
}

func NewServer(cfg config.ConsoleConfig, app *App, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router: gin.New(),
		app:    app,
		hub:    NewHub(app, logger),
		logger: logger,
		tick:   cfg.Tick,
	}
	if s.tick <= 0 {
		s.tick = 100 * time.Millisecond
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        cfg.Listen,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start binds the listener synchronously and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("Starting console server", zap.String("address", ln.Addr().String()))
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Console server failed", zap.Error(err))
		}
	}()
	return nil
}

// Run drives the render tick and the hub until ctx is done.
func (s *Server) Run(ctx context.Context) {
	go s.hub.Run(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.app.Tick()
			if s.hub.ClientCount() > 0 {
				s.hub.Broadcast(NewSnapshotMessage(snap))
			}
		}
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down console server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/ws", func(c *gin.Context) { ServeWs(s.hub, c.Writer, c.Request) })

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/state", s.getState)
		v1.GET("/baud-rates", s.listBaudRates)

		device := v1.Group("/device")
		{
			device.PUT("/handle", s.setHandle)
			device.POST("/open", s.openDevice)
			device.POST("/close", s.closeDevice)
			device.POST("/board-info", s.readBoardInfo)
			device.POST("/baud", s.applyBaud)
			device.POST("/transmit", s.transmit)
		}

		recv := v1.Group("/receive")
		{
			recv.POST("/start", s.startReceive)
			recv.POST("/stop", s.stopReceive)
			recv.DELETE("/data", s.clearData)
		}
	}
}

// LoggerMiddleware logs every request at debug level, failures at warn.
func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if c.Writer.Status() >= http.StatusBadRequest {
			logger.Warn("HTTP request", fields...)
			return
		}
		logger.Debug("HTTP request", fields...)
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	c.JSON(status, NewErrorResponse(code, err.Error(), nil))
}

// GET /health
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"clients":   s.hub.ClientCount(),
	})
}

// GET /api/v1/state
// Panes are drained only by the render tick in Run.
func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.app.Snapshot())
}

// GET /api/v1/baud-rates
func (s *Server) listBaudRates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"baud_rates": driver.BaudRates(),
		"default":    driver.DefaultBaudIndex,
	})
}

// PUT /api/v1/device/handle
func (s *Server) setHandle(c *gin.Context) {
	var req struct {
		DeviceType  *uint32 `json:"device_type"`
		DeviceIndex *uint32 `json:"device_index"`
		Channel     *uint32 `json:"channel"`
		CAN1        *uint32 `json:"can1"`
		CAN2        *uint32 `json:"can2"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("BAD_REQUEST", "Invalid request body", err.Error()))
		return
	}

	h := s.app.Handle()
	if req.DeviceType != nil {
		h.DeviceType = *req.DeviceType
	}
	if req.DeviceIndex != nil {
		h.DeviceIndex = *req.DeviceIndex
	}
	if req.Channel != nil {
		h.Channel = *req.Channel
	}
	s.app.SetHandle(h)

	if req.CAN1 != nil || req.CAN2 != nil {
		snap := s.app.Snapshot()
		can1, can2 := snap.CAN1, snap.CAN2
		if req.CAN1 != nil {
			can1 = *req.CAN1
		}
		if req.CAN2 != nil {
			can2 = *req.CAN2
		}
		s.app.SetChannels(can1, can2)
	}
	c.JSON(http.StatusOK, s.app.Snapshot())
}

// POST /api/v1/device/open
func (s *Server) openDevice(c *gin.Context) {
	if err := s.app.OpenDevice(); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Device opened"})
}

// POST /api/v1/device/close
func (s *Server) closeDevice(c *gin.Context) {
	s.app.CloseDevice()
	c.JSON(http.StatusOK, gin.H{"message": "Device closed"})
}

// POST /api/v1/device/board-info
func (s *Server) readBoardInfo(c *gin.Context) {
	info, err := s.app.ReadBoardInfo()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"board_info":       info,
		"firmware_version": driver.FormatVersion(info.FirmwareVersion),
	})
}

// POST /api/v1/device/baud  {"index": 8} or {"name": "250 Kbps"}
func (s *Server) applyBaud(c *gin.Context) {
	var req struct {
		Index *int   `json:"index"`
		Name  string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("BAD_REQUEST", "Invalid request body", err.Error()))
		return
	}

	index := -1
	switch {
	case req.Index != nil:
		index = *req.Index
	case req.Name != "":
		i, _, err := driver.BaudRateByName(req.Name)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse("BAD_REQUEST", err.Error(), nil))
			return
		}
		index = i
	default:
		c.JSON(http.StatusBadRequest, NewErrorResponse("BAD_REQUEST", "index or name required", nil))
		return
	}

	if err := s.app.ApplyBaud(index); err != nil {
		s.fail(c, err)
		return
	}
	rate, _ := driver.BaudRateAt(index)
	c.JSON(http.StatusOK, gin.H{"message": "Baud rate applied", "baud_rate": rate})
}

// POST /api/v1/device/transmit  {"id": "0x123", "data": "01 02 03"}
func (s *Server) transmit(c *gin.Context) {
	var req struct {
		ID   string `json:"id" binding:"required"`
		Data string `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("BAD_REQUEST", "Invalid request body", err.Error()))
		return
	}
	id, err := parseID(req.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("BAD_REQUEST", "Invalid id", err.Error()))
		return
	}
	if err := s.app.Transmit(id, req.Data); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Frame sent"})
}

// POST /api/v1/receive/start
func (s *Server) startReceive(c *gin.Context) {
	if err := s.app.StartReceive(); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Receiving started"})
}

// POST /api/v1/receive/stop
func (s *Server) stopReceive(c *gin.Context) {
	s.app.StopReceive()
	c.JSON(http.StatusAccepted, gin.H{"message": "Receiving stopped"})
}

// DELETE /api/v1/receive/data
func (s *Server) clearData(c *gin.Context) {
	s.app.ClearData()
	c.Status(http.StatusNoContent)
}

// parseID accepts hex with a 0x prefix or plain decimal.
func parseID(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, err
	}
	if v > driver.MaxExtendedID {
		return 0, fmt.Errorf("identifier 0x%X exceeds 29 bits", v)
	}
	return uint32(v), nil
}
