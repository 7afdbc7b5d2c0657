// handlers/player_routes.go
package handlers

import (
	"context"

	"github.com/FFXIVVenues/kino-ki/deathroll"
	"github.com/FFXIVVenues/kino-ki/middleware"
	"github.com/FFXIVVenues/kino-ki/models"

	"github.com/gofiber/fiber/v2"
)

// PlayerStats reads deathroll records and history.
type PlayerStats interface {
	Record(ctx context.Context, userID string) (deathroll.PlayerRecord, error)
	Leaderboard(ctx context.Context, limit int) ([]deathroll.PlayerRecord, error)
	RecentMatches(ctx context.Context, userID string, limit int) ([]models.DeathrollMatch, error)
}

type playerStatsResponse struct {
	deathroll.PlayerRecord
	Losses        int                     `json:"losses"`
	RecentMatches []models.DeathrollMatch `json:"recent_matches"`
}

func SetupPlayerRoutes(app *fiber.App, players PlayerStats) {
	secured := app.Group("/players", middleware.UserContextMiddleware())

	secured.Get("/leaderboard", func(c *fiber.Ctx) error {
		board, err := players.Leaderboard(c.UserContext(), c.QueryInt("limit", 10))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"leaderboard": board})
	})

	secured.Get("/:id/stats", func(c *fiber.Ctx) error {
		userID := c.Params("id")
		if userID == "me" {
			userID = middleware.UserID(c)
		}
		rec, err := players.Record(c.UserContext(), userID)
		if err != nil {
			return respondError(c, err)
		}
		recent, err := players.RecentMatches(c.UserContext(), userID, c.QueryInt("recent", 5))
		if err != nil {
			return respondError(c, err)
		}
		if recent == nil {
			recent = []models.DeathrollMatch{}
		}
		return c.JSON(playerStatsResponse{PlayerRecord: rec, Losses: rec.Losses(), RecentMatches: recent})
	})
}
