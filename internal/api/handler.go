package api

import (
	"errors"
	"strings"

	"github.com/bookloop/messaging-service/internal/domain"
	"github.com/bookloop/messaging-service/internal/service"
	"github.com/bookloop/messaging-service/internal/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var validate = validator.New()

type sendMessageReq struct {
	Sender   string `json:"sender" validate:"omitempty,max=256"`
	Receiver string `json:"receiver" validate:"required,max=256"`
	Body     string `json:"body" validate:"required_without=Message"`
	Message  string `json:"message" validate:"required_without=Body"`
}

// validationError turns the first failed field rule into an invalid payload
// error the client can read.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.InvalidPayload("invalid payload")
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required", "required_without":
		return domain.InvalidPayload(field + " is required")
	case "max":
		return domain.InvalidPayload(field + " too long")
	}
	return domain.InvalidPayload(field + " is invalid")
}

// identity prefers the token identity; without auth it falls back to the
// supplied value.
func identity(c *fiber.Ctx, fallback string) string {
	if uid, ok := c.Locals("user_id").(string); ok && uid != "" {
		return uid
	}
	return fallback
}

func (s *Server) getThread(c *fiber.Ctx) error {
	user := identity(c, c.Query("currentUser"))
	msgs, err := s.qry.AssembleThread(c.UserContext(), user, c.Params("counterpart"))
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, msgs)
}

func (s *Server) getInbox(c *fiber.Ctx) error {
	user := identity(c, c.Query("currentUser"))
	entries, err := s.qry.AggregateInbox(c.UserContext(), user)
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, entries)
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	var req sendMessageReq
	if err := c.BodyParser(&req); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := validate.Struct(req); err != nil {
		return utils.JSONFromError(c, validationError(err))
	}
	sender := identity(c, req.Sender)
	if req.Sender != "" && !domain.SameIdentity(sender, req.Sender) {
		return utils.JSONFromError(c, domain.InvalidPayload("sender does not match authenticated user"))
	}
	body := req.Body
	if body == "" {
		body = req.Message
	}

	msg, err := s.cmd.SendMessage(c.UserContext(), service.SendMessageCommand{
		Sender:   sender,
		Receiver: req.Receiver,
		Body:     body,
	})
	if err != nil {
		return utils.JSONFromError(c, err)
	}

	n := s.ws.BroadcastMessage(c.UserContext(), msg)
	s.log.Debug("message sent over http", zap.String("id", msg.ID), zap.Int("deliveries", n))
	return utils.JSONSuccess(c, fiber.StatusCreated, msg)
}
