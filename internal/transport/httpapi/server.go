// Package httpapi exposes the vault engine as a JSON HTTP API. Caller
// identity arrives pre-authenticated in the X-Caller-Id header; the API's
// job is routing, decoding, and mapping engine errors to statuses.
package httpapi

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/hbeckert/covault/internal/platform/logger"
	"github.com/hbeckert/covault/internal/storage"
	"github.com/hbeckert/covault/internal/vault/service"
)

// Server wires the engine into a fiber application.
type Server struct {
	app    *fiber.App
	engine *service.Engine
	log    *logger.Logger
}

// New builds the HTTP server. The idempotency store may be nil to disable
// replay caching.
func New(engine *service.Engine, idempotency storage.IdempotencyStore, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	app := fiber.New(fiber.Config{
		AppName:               "covault",
		DisableStartupMessage: true,
	})

	s := &Server{app: app, engine: engine, log: log}

	app.Use(RequestID())
	app.Use(cors.New())

	v1 := app.Group("/v1")
	if idempotency != nil {
		v1.Use(Idempotency(idempotency, log))
	}

	// Mutations and owner-scoped listings need a caller; balance, owners,
	// approvals, and the event feed are unrestricted reads.
	v1.Post("/accounts", RequireCaller(), s.createAccount)
	v1.Get("/accounts", RequireCaller(), s.listAccounts)
	v1.Get("/accounts/:id", s.getAccount)
	v1.Get("/accounts/:id/balance", s.getBalance)
	v1.Get("/accounts/:id/owners", s.getOwners)
	v1.Post("/accounts/:id/deposits", RequireCaller(), s.deposit)
	v1.Post("/accounts/:id/withdrawals", RequireCaller(), s.requestWithdrawal)
	v1.Post("/accounts/:id/withdrawals/:wid/approvals", RequireCaller(), s.approveWithdrawal)
	v1.Get("/accounts/:id/withdrawals/:wid/approvals", s.getApprovals)
	v1.Post("/accounts/:id/withdrawals/:wid/execute", RequireCaller(), s.withdraw)
	v1.Get("/events", s.listEvents)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return s
}

// Listen serves on the given port until Shutdown is called.
func (s *Server) Listen(port int) error {
	return s.app.Listen(fmt.Sprintf(":%d", port))
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the underlying fiber application for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
