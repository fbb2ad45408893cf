package handlers

import (
	"github.com/gofiber/fiber/v2"
)

const statusPage = `<!DOCTYPE html>
<html>
  <head>
    <title>Discourse Toolbots</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/@picocss/pico@2/css/pico.min.css" />
  </head>
  <body>
    <main class="container">
      <h1>Discourse Toolbots</h1>
      <p>Solved-topic auto replies are running.</p>
    </main>
  </body>
</html>
`

// Status serves the landing page at GET /.
func Status(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.SendString(statusPage)
}
