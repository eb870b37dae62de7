// Package api exposes the order intake HTTP endpoints.
package api

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/proofline-hq/proofline/pkg/database"
	"github.com/proofline-hq/proofline/pkg/intentstore"
	"github.com/proofline-hq/proofline/pkg/logger"
	"github.com/proofline-hq/proofline/pkg/metrics"
	"github.com/proofline-hq/proofline/pkg/models"
	"github.com/proofline-hq/proofline/pkg/signer"
)

// Server is the order intake API
type Server struct {
	app      *fiber.App
	db       *database.OrderDatabase
	store    *intentstore.Store
	signer   *signer.Signer
	validate *validator.Validate
	log      logger.Logger
}

// NewServer creates the intake API server and registers its routes
func NewServer(db *database.OrderDatabase, store *intentstore.Store, sig *signer.Signer, log logger.Logger) *Server {
	if log == nil {
		log = &logger.EmptyLogger{}
	}

	s := &Server{
		app:      fiber.New(fiber.Config{DisableStartupMessage: true}),
		db:       db,
		store:    store,
		signer:   sig,
		validate: validator.New(),
		log:      log,
	}

	s.app.Post("/orders", s.createOrder)
	s.app.Get("/orders/:id", s.getOrder)
	return s
}

// Listen serves the API on the given port until Shutdown is called
func (s *Server) Listen(port string) error {
	return s.app.Listen(":" + port)
}

// Shutdown gracefully stops the API server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the underlying fiber app for tests
func (s *Server) App() *fiber.App {
	return s.app
}

type createOrderRequest struct {
	ChainID   int    `json:"chainId" validate:"required,gt=0"`
	To        string `json:"to" validate:"required"`
	From      string `json:"from" validate:"required"`
	ERC20     string `json:"erc20" validate:"required"`
	Amount    string `json:"amount" validate:"required,number"`
	Timestamp int64  `json:"timestamp"`
}

func (s *Server) createOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	if err := s.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"error":   err.Error(),
		})
	}
	for _, addr := range []string{req.To, req.From, req.ERC20} {
		if !common.IsHexAddress(addr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "Invalid address",
				"error":   addr + " is not a valid address",
			})
		}
	}

	if req.Timestamp == 0 {
		req.Timestamp = time.Now().Unix()
	}

	payload := signer.OrderPayload{
		ChainID:   req.ChainID,
		To:        strings.ToLower(req.To),
		From:      strings.ToLower(req.From),
		ERC20:     strings.ToLower(req.ERC20),
		Amount:    req.Amount,
		Timestamp: req.Timestamp,
	}
	signature := s.signer.SignOrder(payload)

	order := &models.Order{
		ERC20:     payload.ERC20,
		From:      payload.From,
		To:        payload.To,
		Amount:    payload.Amount,
		ChainID:   payload.ChainID,
		Timestamp: payload.Timestamp,
		Signature: signature,
	}
	if err := s.db.CreateOrder(c.Context(), order); err != nil {
		s.log.Error("Failed to create order: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not create order",
		})
	}

	if _, err := s.store.Register(c.Context(), models.Intent{
		OrderID:   order.ID,
		ERC20:     order.ERC20,
		From:      order.From,
		To:        order.To,
		Amount:    order.Amount,
		ChainID:   order.ChainID,
		Timestamp: order.Timestamp,
		Signature: order.Signature,
	}); err != nil {
		s.log.Error("Failed to register intent for order %s: %v", order.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not register order for matching",
		})
	}

	metrics.OrdersRegistered.WithLabelValues(strconv.Itoa(order.ChainID)).Inc()
	s.log.InfoWithChain(order.ChainID, "Created order %s for %s %s", order.ID, order.Amount, order.ERC20)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"orderId":   order.ID,
		"status":    order.Status,
		"signature": order.Signature,
	})
}

func (s *Server) getOrder(c *fiber.Ctx) error {
	order, err := s.db.GetOrderByID(c.Context(), c.Params("id"))
	if errors.Is(err, database.ErrOrderNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "Order not found",
		})
	}
	if err != nil {
		s.log.Error("Failed to fetch order: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not fetch order",
		})
	}
	return c.JSON(order)
}
