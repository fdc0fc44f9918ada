package api

import (
	"errors"
	"strings"

	"github.com/bookloop/messaging-service/internal/auth"
	"github.com/bookloop/messaging-service/internal/metrics"
	"github.com/bookloop/messaging-service/internal/redis"
	"github.com/bookloop/messaging-service/internal/service"
	"github.com/bookloop/messaging-service/internal/utils"
	"github.com/bookloop/messaging-service/internal/ws"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// Deps is everything the HTTP surface talks to. JWT and Limiter are optional.
type Deps struct {
	Cmd     *service.CommandService
	Qry     *service.QueryService
	WS      *ws.Server
	JWT     *auth.JWTValidator
	Limiter *redis.RateLimiter
	Log     *zap.Logger

	// AccessLog enables fiber's request logger.
	AccessLog bool
}

type Server struct {
	cmd *service.CommandService
	qry *service.QueryService
	ws  *ws.Server
	jv  *auth.JWTValidator
	log *zap.Logger
}

func NewServer(d Deps) *fiber.App {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	s := &Server{cmd: d.Cmd, qry: d.Qry, ws: d.WS, jv: d.JWT, log: d.Log.Named("http")}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		UnescapePath:          true,
		ErrorHandler:          s.errorHandler,
	})
	app.Use(recover.New())
	if d.AccessLog {
		app.Use(logger.New())
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"connections": s.ws.Hub().Len()})
	})
	app.Get("/metrics", metrics.Handler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.ws.HandleWS()))

	v1 := app.Group("/v1")
	if d.JWT != nil {
		v1.Use(JWTAuthMiddleware(d.JWT))
	}
	if d.Limiter != nil {
		v1.Use(d.Limiter.MiddlewareByKey(rateLimitKey))
	}
	v1.Get("/threads/:counterpart", s.getThread)
	v1.Get("/inbox", s.getInbox)
	v1.Post("/messages", s.sendMessage)

	return app
}

func JWTAuthMiddleware(jv *auth.JWTValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get(fiber.HeaderAuthorization)
		if h == "" || !strings.HasPrefix(h, "Bearer ") {
			return utils.JSONError(c, fiber.StatusUnauthorized, "missing auth")
		}
		userID, err := jv.Validate(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			return utils.JSONError(c, fiber.StatusUnauthorized, "invalid token")
		}
		c.Locals("user_id", userID)
		return c.Next()
	}
}

// rateLimitKey counts authenticated callers by identity and everyone else by
// address.
func rateLimitKey(c *fiber.Ctx) string {
	if uid, ok := c.Locals("user_id").(string); ok && uid != "" {
		return "user:" + uid
	}
	return "ip:" + c.IP()
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return utils.JSONError(c, fe.Code, fe.Message)
	}
	s.log.Error("unhandled request error", zap.String("path", c.Path()), zap.Error(err))
	return utils.JSONFromError(c, err)
}
