package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/uproot-labs/uproot/app/controllers"
	"github.com/uproot-labs/uproot/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{Max: 120}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// Auth
	auth := api.Group("/auth")
	auth.Post("/signup", controllers.HandleSignup)
	auth.Post("/login", controllers.HandleLogin)
	auth.Post("/logout", middleware.RequireAPISessionAuth, controllers.HandleLogout)
	auth.Post("/password-reset", controllers.HandlePasswordResetRequest)
	auth.Post("/reset-password", controllers.HandlePasswordReset)

	// Profile
	user := api.Group("/user", middleware.RequireAPISessionAuth)
	user.Get("/profile", controllers.HandleGetProfile)
	user.Put("/profile", controllers.HandleUpdateProfile)

	// Resume
	resume := api.Group("/resume", middleware.RequireAPISessionAuth)
	resume.Get("/", controllers.HandleGetResume)
	resume.Put("/", controllers.HandlePutResume)
	resume.Post("/improve", controllers.HandleImproveResume)

	// Subscription
	sub := api.Group("/subscription", middleware.RequireAPISessionAuth)
	sub.Get("/", controllers.HandleGetSubscription)
	sub.Post("/cancel", controllers.HandleCancelSubscription)
	sub.Post("/reactivate", controllers.HandleReactivateSubscription)
	api.Get("/stripe/verify-subscription", middleware.RequireAPISessionAuth, controllers.HandleVerifyStripeSubscription)

	// Razorpay checkout
	razorpay := api.Group("/razorpay", middleware.RequireAPISessionAuth)
	razorpay.Post("/create-order", controllers.HandleRazorpayCreateOrder)
	razorpay.Post("/verify-payment", controllers.HandleRazorpayVerifyPayment)

	// PayU checkout. The response endpoints are hit by PayU's servers or by
	// browser redirects without our session, so they stay unauthenticated and
	// rely on the response hash instead.
	api.Post("/payu/create-payment", middleware.RequireAPISessionAuth, controllers.HandlePayUCreatePayment)
	api.Post("/payu/payment-success", controllers.HandlePayUPaymentSuccess)
	api.Get("/payu/payment-success", controllers.HandlePayUPaymentSuccess)
	api.Post("/payu/payment-failure", controllers.HandlePayUPaymentFailure)
	api.Get("/payu/payment-failure", controllers.HandlePayUPaymentFailure)
	api.Post("/payu/payment-cancel", controllers.HandlePayUPaymentCancel)
	api.Get("/payu/payment-cancel", controllers.HandlePayUPaymentCancel)

	// Calls
	calls := api.Group("/calls", middleware.RequireAPISessionAuth)
	calls.Post("/schedule", controllers.HandleScheduleCall)
	calls.Get("/logs", controllers.HandleCallLogs)
	calls.Get("/scheduled", controllers.HandleScheduledCalls)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
