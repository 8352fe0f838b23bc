package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/hbeckert/covault/internal/errors"
	"github.com/hbeckert/covault/internal/vault/domain"
)

type createAccountRequest struct {
	OtherOwners []string `json:"other_owners"`
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) createAccount(c *fiber.Ctx) error {
	var req createAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	otherOwners := make([]domain.Identity, len(req.OtherOwners))
	for i, owner := range req.OtherOwners {
		otherOwners[i] = domain.Identity(owner)
	}

	id, err := s.engine.CreateAccount(c.Context(), caller(c), otherOwners)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"account_id": id})
}

func (s *Server) listAccounts(c *fiber.Ctx) error {
	ids, err := s.engine.GetAccounts(c.Context(), caller(c))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(fiber.Map{"account_ids": ids})
}

func (s *Server) getAccount(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "invalid account id")
	}

	owners, err := s.engine.GetOwners(c.Context(), id)
	if err != nil {
		return s.writeError(c, err)
	}
	balance, err := s.engine.GetBalance(c.Context(), id)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(fiber.Map{"account_id": id, "owners": owners, "balance": balance})
}

func (s *Server) getBalance(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "invalid account id")
	}
	balance, err := s.engine.GetBalance(c.Context(), id)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(fiber.Map{"balance": balance})
}

func (s *Server) getOwners(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "invalid account id")
	}
	owners, err := s.engine.GetOwners(c.Context(), id)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(fiber.Map{"owners": owners})
}

func (s *Server) deposit(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "invalid account id")
	}
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := s.engine.Deposit(c.Context(), caller(c), id, req.Amount); err != nil {
		return s.writeError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (s *Server) requestWithdrawal(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "invalid account id")
	}
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	withdrawalID, err := s.engine.RequestWithdrawal(c.Context(), caller(c), id, req.Amount)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"withdrawal_id": withdrawalID})
}

func (s *Server) approveWithdrawal(c *fiber.Ctx) error {
	id, withdrawalID, err := pathIDs(c)
	if err != nil {
		return badRequest(c, "invalid id")
	}
	if err := s.engine.ApproveWithdrawal(c.Context(), caller(c), id, withdrawalID); err != nil {
		return s.writeError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (s *Server) getApprovals(c *fiber.Ctx) error {
	id, withdrawalID, err := pathIDs(c)
	if err != nil {
		return badRequest(c, "invalid id")
	}
	approvals, err := s.engine.GetApprovals(c.Context(), id, withdrawalID)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(fiber.Map{"approvals": approvals})
}

func (s *Server) withdraw(c *fiber.Ctx) error {
	id, withdrawalID, err := pathIDs(c)
	if err != nil {
		return badRequest(c, "invalid id")
	}
	if err := s.engine.Withdraw(c.Context(), caller(c), id, withdrawalID); err != nil {
		return s.writeError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (s *Server) listEvents(c *fiber.Ctx) error {
	afterSeq, err := strconv.ParseUint(c.Query("after_seq", "0"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid after_seq")
	}
	limit, err := strconv.Atoi(c.Query("limit", "100"))
	if err != nil || limit < 0 {
		return badRequest(c, "invalid limit")
	}

	events, err := s.engine.ListEvents(c.Context(), afterSeq, limit)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(fiber.Map{"events": events})
}

func (s *Server) writeError(c *fiber.Ctx, err error) error {
	code := errors.GetCode(err)
	status := errors.HTTPStatus(code)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.Path(), "error", err)
		return c.Status(status).JSON(fiber.Map{"error": "internal error", "code": code})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error(), "code": code})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func caller(c *fiber.Ctx) domain.Identity {
	id, _ := c.Locals(localCallerID).(string)
	return domain.Identity(id)
}

func pathID(c *fiber.Ctx, name string) (uint64, error) {
	return strconv.ParseUint(c.Params(name), 10, 64)
}

func pathIDs(c *fiber.Ctx) (accountID, withdrawalID uint64, err error) {
	accountID, err = pathID(c, "id")
	if err != nil {
		return 0, 0, err
	}
	withdrawalID, err = pathID(c, "wid")
	if err != nil {
		return 0, 0, err
	}
	return accountID, withdrawalID, nil
}
