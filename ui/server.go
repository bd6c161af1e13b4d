package ui

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ilievs/plugpanel/core"
)

//go:embed static/plug.html
var static embed.FS

var pageTemplate = template.Must(template.ParseFS(static, "static/plug.html"))

// Link is the MQTT connection a panel session owns.
type Link interface {
	core.Transport
	Start(ctx context.Context, h core.Handler) error
	Close(ctx context.Context) error
}

type LinkFactory func() Link

const (
	ActionToggle = "toggle"
	ActionTimer  = "timer"
)

// Action is a user action sent by the page. Timer fields are null when the
// form held something that is not a number.
type Action struct {
	Action  string `json:"action"`
	On      bool   `json:"on"`
	Hours   *int   `json:"hours"`
	Minutes *int   `json:"minutes"`
	Seconds *int   `json:"seconds"`
}

type Server struct {
	echo     *echo.Echo
	newLink  LinkFactory
	observer core.Observer
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(newLink LinkFactory, observer core.Observer, metricsHandler http.Handler, logger *slog.Logger) *Server {
	s := &Server{
		echo:     echo.New(),
		newLink:  newLink,
		observer: observer,
		logger:   logger,
	}
	s.echo.HideBanner = true

	// Middleware
	s.echo.Use(middleware.Logger())
	s.echo.Use(middleware.Recover())

	// Routes
	s.echo.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusFound, "/plug?plug=1")
	})
	s.echo.GET("/plug", s.handlePage)
	s.echo.GET("/ws", s.handleSession)
	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(metricsHandler))
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	if err := s.echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type pageData struct {
	Plug  core.PlugId
	Error string
}

func (s *Server) handlePage(c echo.Context) error {
	id, err := core.ParsePlugId(c.QueryParams())
	status := http.StatusOK
	data := pageData{Plug: id}
	if err != nil {
		status = http.StatusBadRequest
		data.Error = "Configuration error: " + err.Error() + ". Open this page as /plug?plug=<number>."
	}

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(status)
	return pageTemplate.Execute(c.Response(), data)
}

// handleSession runs one panel page: a controller for the requested plug,
// its own MQTT connection and the websocket the page talks over.
func (s *Server) handleSession(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	session := NewSession(conn, s.logger)

	id, err := core.ParsePlugId(c.QueryParams())
	if err != nil {
		// never subscribe to a topic built from a bad id
		session.Fail("Configuration error: " + err.Error())
		return nil
	}

	sessionLogger := s.logger.With("remote", c.RealIP())
	logger := sessionLogger.With("plug", int(id))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	link := s.newLink()
	opts := []core.ControllerOption{core.WithLogger(sessionLogger)}
	if s.observer != nil {
		opts = append(opts, core.WithObserver(s.observer))
	}
	ctrl := core.NewPlugController(id, link, session, opts...)

	if err := link.Start(ctx, ctrl); err != nil {
		logger.Error("failed to start mqtt connection", "error", err)
		session.Fail("MQTT connection failed: " + err.Error())
		return nil
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := link.Close(closeCtx); err != nil {
			logger.Warn("failed to close mqtt connection", "error", err)
		}
	}()

	logger.Info("panel session opened")
	session.Sync()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("panel session read failed", "error", err)
			}
			break
		}

		// a frame that does not decode is reported to the page, the session stays up
		var action Action
		if err := json.Unmarshal(msg, &action); err != nil {
			logger.Warn("invalid panel action", "payload", string(msg), "error", err)
			session.Fail("Invalid action: " + err.Error())
			continue
		}
		s.dispatch(ctx, ctrl, session, action, logger)
	}

	last := session.Snapshot()
	logger.Info("panel session closed", "relay_on", last.RelayOn, "status", last.Status)
	return nil
}

func (s *Server) dispatch(ctx context.Context, ctrl *core.PlugController, session *Session, a Action, logger *slog.Logger) {
	switch a.Action {
	case ActionToggle:
		if err := ctrl.Toggle(ctx, a.On); err != nil {
			logger.Warn("toggle command not delivered", "error", err)
		}
	case ActionTimer:
		if a.Hours == nil || a.Minutes == nil || a.Seconds == nil {
			logger.Debug("timer form incomplete, ignoring")
			return
		}
		sent, err := ctrl.StartTimer(ctx, *a.Hours, *a.Minutes, *a.Seconds)
		switch {
		case err != nil && !sent:
			session.Fail("Timer not started: " + err.Error())
		case err != nil:
			logger.Warn("timer command not delivered", "error", err)
		}
	default:
		session.Fail("unknown action " + a.Action)
	}
}
