package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/uproot-labs/uproot/app/controllers"
	"github.com/uproot-labs/uproot/internal/pkg/middleware"
	"github.com/uproot-labs/uproot/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	h.registerPublicRoutes(app)
}

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// Payment provider webhooks (no CSRF/session, signature-verified in controller)
	app.Post("/webhooks/stripe", controllers.HandleStripeWebhook)
	app.Post("/webhooks/razorpay", controllers.HandleRazorpayWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
