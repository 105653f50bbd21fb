package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kontoplan/kontoplan/internal/database/repository"
	"github.com/kontoplan/kontoplan/internal/mt940"
	"github.com/kontoplan/kontoplan/internal/service"
)

// Handler exposes the statement-import, detection and forecasting core
// over HTTP. Presentation (charts, tables, confirm dialogs) lives in the
// surrounding application.
type Handler struct {
	Log            zerolog.Logger
	Accounts       *repository.AccountRepo
	Counterparties *repository.CounterpartyRepo
	Patterns       *repository.PatternRepo
	Importer       *service.ImportService
	Detector       *service.DetectionService
	Forecaster     *service.ForecastService
	Merger         *service.MergeService
	PatternActions *service.PatternService

	ForecastHorizonMonths int
}

type createAccountRequest struct {
	Name          string `json:"name"`
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	IBAN          string `json:"iban"`
	BIC           string `json:"bic"`
	Currency      string `json:"currency"`
}

func (h *Handler) CreateAccount(c *fiber.Ctx) error {
	var req createAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}
	if req.Name == "" || req.BankCode == "" || req.AccountNumber == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name, bank_code and account_number required"})
	}
	if req.Currency == "" {
		req.Currency = "EUR"
	}
	a := repository.Account{
		ID:            uuid.NewString(),
		TenantID:      TenantID(c),
		Name:          req.Name,
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
		Currency:      req.Currency,
	}
	if req.IBAN != "" {
		a.IBAN = &req.IBAN
	}
	if req.BIC != "" {
		a.BIC = &req.BIC
	}
	if err := h.Accounts.Insert(c.Context(), a); err != nil {
		return h.serverError(c, "create account", err)
	}
	return c.Status(fiber.StatusCreated).JSON(accountJSON(a))
}

func (h *Handler) ListAccounts(c *fiber.Ctx) error {
	accounts, err := h.Accounts.List(c.Context(), TenantID(c))
	if err != nil {
		return h.serverError(c, "list accounts", err)
	}
	out := make([]fiber.Map, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountJSON(a))
	}
	return c.JSON(out)
}

func (h *Handler) DeleteAccount(c *fiber.Ctx) error {
	if err := h.Accounts.Delete(c.Context(), TenantID(c), c.Params("id")); err != nil {
		return h.serverError(c, "delete account", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UploadStatement ingests an MT940 file for one account. The response
// always distinguishes "all duplicates" from "invalid file": duplicates
// come back as a skipped count, invalid files as a 422.
func (h *Handler) UploadStatement(c *fiber.Ctx) error {
	tenantID := TenantID(c)
	accountID := c.Params("id")

	res, err := h.Importer.Import(c.Context(), tenantID, accountID, c.Body())
	if err != nil {
		var formatErr *mt940.FormatError
		var mismatchErr *service.AccountMismatchError
		switch {
		case errors.As(err, &formatErr):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": formatErr.Error()})
		case errors.As(err, &mismatchErr):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": mismatchErr.Error()})
		}
		return h.serverError(c, "import statement", err)
	}

	recordErrors := make([]fiber.Map, 0, len(res.Errors))
	for _, re := range res.Errors {
		recordErrors = append(recordErrors, fiber.Map{"record": re.Index, "message": re.Message})
	}
	h.Log.Info().
		Str("tenant", tenantID).
		Str("account", accountID).
		Int("imported", res.Imported).
		Int("skipped", res.Skipped).
		Int("errors", len(res.Errors)).
		Msg("statement imported")
	return c.JSON(fiber.Map{
		"imported": res.Imported,
		"skipped":  res.Skipped,
		"errors":   recordErrors,
	})
}

func (h *Handler) DetectPatterns(c *fiber.Ctx) error {
	patterns, err := h.Detector.Detect(c.Context(), TenantID(c))
	if err != nil {
		return h.serverError(c, "detect patterns", err)
	}
	return c.JSON(h.patternsJSON(c, patterns))
}

func (h *Handler) ListPatterns(c *fiber.Ctx) error {
	patterns, err := h.Patterns.List(c.Context(), TenantID(c))
	if err != nil {
		return h.serverError(c, "list patterns", err)
	}
	return c.JSON(h.patternsJSON(c, patterns))
}

// PatternAction dispatches confirm/ignore/unignore/pause/resume.
func (h *Handler) PatternAction(c *fiber.Ctx) error {
	tenantID := TenantID(c)
	id := c.Params("id")
	var err error
	switch action := c.Params("action"); action {
	case "confirm":
		err = h.PatternActions.Confirm(c.Context(), tenantID, id)
	case "ignore":
		err = h.PatternActions.Ignore(c.Context(), tenantID, id)
	case "unignore":
		err = h.PatternActions.Unignore(c.Context(), tenantID, id)
	case "pause":
		err = h.PatternActions.Pause(c.Context(), tenantID, id)
	case "resume":
		err = h.PatternActions.Resume(c.Context(), tenantID, id)
	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown action " + action})
	}
	if err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) Forecast(c *fiber.Ctx) error {
	months := h.ForecastHorizonMonths
	if v := c.Query("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 120 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "months must be 1..120"})
		}
		months = n
	}
	f, err := h.Forecaster.Project(c.Context(), TenantID(c), months)
	if err != nil {
		return h.serverError(c, "forecast", err)
	}
	out := make([]fiber.Map, 0, len(f.Months))
	for _, m := range f.Months {
		out = append(out, fiber.Map{
			"month":             m.Month.Format("2006-01"),
			"projected_income":  m.ProjectedIncome,
			"projected_costs":   m.ProjectedCosts,
			"projected_balance": m.ProjectedBalance,
			"occurrences":       m.Occurrences,
			"tentative":         m.Tentative,
		})
	}
	return c.JSON(fiber.Map{
		"current_balance": f.CurrentBalance,
		"as_of":           f.AsOfDate.Format(time.DateOnly),
		"months":          out,
	})
}

func (h *Handler) ListCounterparties(c *fiber.Ctx) error {
	cps, err := h.Counterparties.List(c.Context(), TenantID(c))
	if err != nil {
		return h.serverError(c, "list counterparties", err)
	}
	out := make([]fiber.Map, 0, len(cps))
	for _, cp := range cps {
		out = append(out, fiber.Map{
			"id":   cp.ID,
			"name": cp.Name,
			"iban": strOrEmpty(cp.IBAN),
			"bic":  strOrEmpty(cp.BIC),
		})
	}
	return c.JSON(out)
}

type renameRequest struct {
	Name string `json:"name"`
}

func (h *Handler) RenameCounterparty(c *fiber.Ctx) error {
	var req renameRequest
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name required"})
	}
	if err := h.Counterparties.Rename(c.Context(), TenantID(c), c.Params("id"), req.Name); err != nil {
		return h.serverError(c, "rename counterparty", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type mergeRequest struct {
	TargetID string `json:"target_id"`
}

func (h *Handler) MergeCounterparty(c *fiber.Ctx) error {
	var req mergeRequest
	if err := c.BodyParser(&req); err != nil || req.TargetID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "target_id required"})
	}
	if err := h.Merger.Merge(c.Context(), TenantID(c), c.Params("id"), req.TargetID); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) MergeCandidates(c *fiber.Ctx) error {
	candidates, err := h.Merger.MergeCandidates(c.Context(), TenantID(c))
	if err != nil {
		return h.serverError(c, "merge candidates", err)
	}
	out := make([]fiber.Map, 0, len(candidates))
	for _, cand := range candidates {
		out = append(out, fiber.Map{
			"source_id":   cand.Source.ID,
			"source_name": cand.Source.Name,
			"target_id":   cand.Target.ID,
			"target_name": cand.Target.Name,
			"similarity":  cand.Similarity,
		})
	}
	return c.JSON(out)
}

func (h *Handler) patternsJSON(c *fiber.Ctx, patterns []repository.RecurringPattern) []fiber.Map {
	names := map[string]string{}
	if cps, err := h.Counterparties.List(c.Context(), TenantID(c)); err == nil {
		for _, cp := range cps {
			names[cp.ID] = cp.Name
		}
	}
	out := make([]fiber.Map, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, fiber.Map{
			"id":            p.ID,
			"counterparty":  names[p.CounterpartyID],
			"amount_avg":    p.AmountAvg,
			"frequency":     p.Frequency.String(),
			"day_of_month":  p.DayOfMonth,
			"confidence":    p.Confidence,
			"status":        p.Status,
			"last_seen":     p.LastSeen.Format(time.DateOnly),
			"evidence_size": len(p.Evidence),
		})
	}
	return out
}

func (h *Handler) serverError(c *fiber.Ctx, op string, err error) error {
	h.Log.Error().Err(err).Str("op", op).Msg("request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "server error"})
}

func accountJSON(a repository.Account) fiber.Map {
	m := fiber.Map{
		"id":             a.ID,
		"name":           a.Name,
		"bank_code":      a.BankCode,
		"account_number": a.AccountNumber,
		"currency":       a.Currency,
		"iban":           strOrEmpty(a.IBAN),
		"bic":            strOrEmpty(a.BIC),
	}
	if a.Balance != nil {
		m["balance"] = *a.Balance
	}
	if a.BalanceDate != nil {
		m["balance_date"] = a.BalanceDate.Format(time.DateOnly)
	}
	return m
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
