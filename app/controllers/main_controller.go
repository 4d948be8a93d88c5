package controllers

import (
	"github.com/gofiber/fiber/v2"
)

func HandleStart(c *fiber.Ctx) error {
	return c.Render("index", viewData(c, fiber.Map{
		"Title": "Willkommen",
	}))
}

func HandleAbout(c *fiber.Ctx) error {
	return c.Render("about", viewData(c, fiber.Map{
		"Title": "Über uns",
	}))
}
