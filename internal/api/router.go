package api

import (
	"github.com/gofiber/fiber/v2"
)

// Router wires the handler into a fiber app.
type Router struct {
	Handler *Handler
	AuthMW  fiber.Handler
}

func (r *Router) RegisterRoutes(app *fiber.App) {
	h := r.Handler
	mw := r.AuthMW

	app.Post("/api/accounts", mw, h.CreateAccount)
	app.Get("/api/accounts", mw, h.ListAccounts)
	app.Delete("/api/accounts/:id", mw, h.DeleteAccount)
	app.Post("/api/accounts/:id/statements", mw, h.UploadStatement)

	app.Get("/api/patterns", mw, h.ListPatterns)
	app.Post("/api/patterns/detect", mw, h.DetectPatterns)
	app.Post("/api/patterns/:id/:action", mw, h.PatternAction)

	app.Get("/api/counterparties", mw, h.ListCounterparties)
	app.Get("/api/counterparties/merge-candidates", mw, h.MergeCandidates)
	app.Patch("/api/counterparties/:id", mw, h.RenameCounterparty)
	app.Post("/api/counterparties/:id/merge", mw, h.MergeCounterparty)

	app.Get("/api/forecast", mw, h.Forecast)
}
