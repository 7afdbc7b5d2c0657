// handlers/job_posting_routes.go
package handlers

import (
	"github.com/FFXIVVenues/kino-ki/middleware"
	"github.com/FFXIVVenues/kino-ki/services"

	"github.com/gofiber/fiber/v2"
)

type tagRequest struct {
	ChannelID string `json:"channel_id"`
	Tag       string `json:"tag"`
	RoleID    string `json:"role_id"`
}

type tagsRemovedRequest struct {
	Tags []string `json:"tags"`
}

func SetupJobPostingRoutes(app *fiber.App, jobs *services.JobPostingService) {
	secured := app.Group("/jobs", middleware.UserContextMiddleware())

	secured.Get("/", func(c *fiber.Ctx) error {
		guildID := middleware.GuildID(c)
		channels, err := jobs.Channels(c.UserContext(), guildID)
		if err != nil {
			return respondError(c, err)
		}
		tags, err := jobs.ListTags(c.UserContext(), guildID)
		if err != nil {
			return respondError(c, err)
		}
		stats, err := jobs.Stats(c.UserContext(), guildID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"channels": channels, "tags": tags, "stats": stats})
	})

	channelRoute := func(op func(*fiber.Ctx, string, string) error, status int) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if err := op(c, middleware.GuildID(c), c.Params("channel_id")); err != nil {
				return respondError(c, err)
			}
			return c.SendStatus(status)
		}
	}
	secured.Post("/sources/:channel_id", channelRoute(func(c *fiber.Ctx, g, ch string) error {
		return jobs.AddSource(c.UserContext(), g, ch)
	}, fiber.StatusCreated))
	secured.Delete("/sources/:channel_id", channelRoute(func(c *fiber.Ctx, g, ch string) error {
		return jobs.RemoveSource(c.UserContext(), g, ch)
	}, fiber.StatusNoContent))
	secured.Post("/destinations/:channel_id", channelRoute(func(c *fiber.Ctx, g, ch string) error {
		return jobs.AddDestination(c.UserContext(), g, ch)
	}, fiber.StatusCreated))
	secured.Delete("/destinations/:channel_id", channelRoute(func(c *fiber.Ctx, g, ch string) error {
		return jobs.RemoveDestination(c.UserContext(), g, ch)
	}, fiber.StatusNoContent))

	secured.Get("/tags", func(c *fiber.Ctx) error {
		tags, err := jobs.ListTags(c.UserContext(), middleware.GuildID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"tags": tags})
	})

	secured.Post("/tags", func(c *fiber.Ctx) error {
		var req tagRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid body", err)
		}
		if req.ChannelID == "" || req.RoleID == "" {
			return badRequest(c, "channel_id and role_id are required", nil)
		}
		tag, err := jobs.MapTag(c.UserContext(), middleware.GuildID(c), req.ChannelID, req.Tag, req.RoleID)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(tag)
	})

	secured.Delete("/tags/:tag/roles/:role_id", func(c *fiber.Ctx) error {
		if err := jobs.UnmapTag(c.UserContext(), middleware.GuildID(c), c.Params("tag"), c.Params("role_id")); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	secured.Get("/roles/:role_id/tags", func(c *fiber.Ctx) error {
		tags, err := jobs.TagsForRole(c.UserContext(), middleware.GuildID(c), c.Params("role_id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"tags": tags})
	})

	// Relay events
	secured.Post("/threads", func(c *fiber.Ctx) error {
		var thread services.Thread
		if err := c.BodyParser(&thread); err != nil {
			return badRequest(c, "invalid body", err)
		}
		thread.GuildID = middleware.GuildID(c)
		res, err := jobs.Crosspost(c.UserContext(), thread)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	secured.Post("/channels/:channel_id/deleted", func(c *fiber.Ctx) error {
		if err := jobs.ChannelDeleted(c.UserContext(), middleware.GuildID(c), c.Params("channel_id")); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	secured.Post("/channels/:channel_id/tags-removed", func(c *fiber.Ctx) error {
		var req tagsRemovedRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid body", err)
		}
		n, err := jobs.TagsRemoved(c.UserContext(), middleware.GuildID(c), c.Params("channel_id"), req.Tags)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"removed": n})
	})
}
