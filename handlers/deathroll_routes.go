// handlers/deathroll_routes.go
package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FFXIVVenues/kino-ki/deathroll"
	"github.com/FFXIVVenues/kino-ki/middleware"
	"github.com/FFXIVVenues/kino-ki/services"

	"github.com/gofiber/fiber/v2"
)

const sseKeepAlive = 15 * time.Second

type challengeRequest struct {
	OpponentID string `json:"opponent_id"`
	ChannelID  string `json:"channel_id"`
	Ceiling    int    `json:"ceiling"`
}

type randomRequest struct {
	Range int `json:"range"`
}

func SetupDeathrollRoutes(app *fiber.App, svc *services.DeathrollService, hub *services.EventHub) {
	// 🔐 Every route acts on behalf of a user in a guild
	secured := app.Group("/deathrolls", middleware.UserContextMiddleware())

	secured.Post("/", func(c *fiber.Ctx) error {
		var req challengeRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid body", err)
		}
		if req.OpponentID == "" {
			return badRequest(c, "opponent_id is required", nil)
		}
		snap, err := svc.Challenge(c.UserContext(), middleware.GuildID(c), req.ChannelID,
			middleware.UserID(c), req.OpponentID, req.Ceiling)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(snap)
	})

	secured.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"deathrolls": svc.Active(middleware.GuildID(c))})
	})

	// Registered before /:id so "events" is not taken for a match id
	secured.Get("/events", func(c *fiber.Ctx) error {
		return streamEvents(c, hub, middleware.GuildID(c))
	})

	secured.Get("/:id", func(c *fiber.Ctx) error {
		snap, err := svc.Snapshot(middleware.GuildID(c), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(snap)
	})

	submit := func(option string) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if err := svc.Submit(middleware.GuildID(c), c.Params("id"), middleware.UserID(c), option); err != nil {
				return respondError(c, err)
			}
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted", "option": option})
		}
	}
	secured.Post("/:id/toss", submit(deathroll.OptionCoinToss))
	secured.Post("/:id/roll", submit(deathroll.OptionRoll))

	app.Post("/random", middleware.UserContextMiddleware(), func(c *fiber.Ctx) error {
		var req randomRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "invalid body", err)
			}
		}
		n, err := svc.RandomRoll(req.Range)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"user_id": middleware.UserID(c), "result": n})
	})
}

// streamEvents writes the guild's deathroll events as server-sent events.
func streamEvents(c *fiber.Ctx, hub *services.EventHub, guildID string) error {
	events, cancel := hub.Subscribe(guildID)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		ticker := time.NewTicker(sseKeepAlive)
		defer ticker.Stop()

		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload)
			case <-ticker.C:
				w.WriteString(":\n\n")
			}
			// A failed flush means the client went away
			if err := w.Flush(); err != nil {
				return
			}
		}
	})
	return nil
}
