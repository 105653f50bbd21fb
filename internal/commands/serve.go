package commands

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/kontoplan/kontoplan/internal/api"
	"github.com/kontoplan/kontoplan/internal/logger"
	"github.com/kontoplan/kontoplan/internal/service"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			if e.cfg.HTTP.JWTSecret == "" {
				return errors.New("http.jwt_secret must be configured")
			}

			log := logger.New()
			handler := &api.Handler{
				Log:            log,
				Accounts:       e.accounts,
				Counterparties: e.counterparties,
				Patterns:       e.patterns,
				Importer:       e.importer(),
				Detector:       e.detector(),
				Forecaster:     e.forecaster(),
				Merger: &service.MergeService{
					DB:             e.db,
					Counterparties: e.counterparties,
					Transactions:   e.transactions,
					Patterns:       e.patterns,
				},
				PatternActions:        &service.PatternService{Patterns: e.patterns},
				ForecastHorizonMonths: e.cfg.Forecast.HorizonMonths,
			}

			app := fiber.New(fiber.Config{
				BodyLimit: 10 * 1024 * 1024, // statement uploads
			})
			router := &api.Router{Handler: handler, AuthMW: api.TenantAuth([]byte(e.cfg.HTTP.JWTSecret))}
			router.RegisterRoutes(app)

			log.Info().Str("addr", e.cfg.HTTP.Addr).Msg("listening")
			return app.Listen(e.cfg.HTTP.Addr)
		},
	}
	return cmd
}
