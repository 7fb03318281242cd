package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	controller "odcrm/controllers"
	"odcrm/middleware"
	"odcrm/utils"
)

// SetupRoutes wires the HTTP surface. Everything under /api is tenant scoped
// via the X-Customer-Id header; tracking, unsubscribe and the provider
// webhook are public because recipients and providers hit them directly.
func SetupRoutes(app *fiber.App, db *gorm.DB, mailer utils.Mailer) {
	routeLogger := log.New(os.Stdout, "API: ", log.Ldate|log.Ltime|log.Lshortfile)

	campaignCtl := controller.NewCampaignController(db, routeLogger)
	scheduleCtl := controller.NewScheduleController(db, routeLogger)
	identityCtl := controller.NewIdentityController(db, mailer, routeLogger)
	suppressionCtl := controller.NewSuppressionController(db, routeLogger)
	contactCtl := controller.NewContactController(db, routeLogger)
	eventCtl := controller.NewEventController(db, routeLogger)
	reportCtl := controller.NewReportController(db, routeLogger)

	// Public endpoints: tracking links land here from recipients' mail
	// clients, the webhook from the provider.
	app.Get("/track/open/:messageID/:token", eventCtl.TrackOpen)
	app.Get("/track/click/:messageID/:token", eventCtl.TrackClick)
	app.Get("/unsubscribe/:token", eventCtl.Unsubscribe)
	app.Post("/api/events/webhook", eventCtl.ReceiveWebhook)

	api := app.Group("/api",
		logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}),
		middleware.CustomerScoped(db),
	)

	// Campaigns
	campaigns := api.Group("/campaigns")
	campaigns.Post("/", campaignCtl.CreateCampaign)
	campaigns.Get("/", campaignCtl.GetCampaigns)
	campaigns.Get("/:id", campaignCtl.GetCampaign)
	campaigns.Put("/:id", campaignCtl.UpdateCampaign)
	campaigns.Patch("/:id", campaignCtl.UpdateCampaign)
	campaigns.Delete("/:id", campaignCtl.DeleteCampaign)

	campaigns.Post("/:id/start", campaignCtl.StartCampaign)
	campaigns.Post("/:id/pause", campaignCtl.PauseCampaign)
	campaigns.Post("/:id/complete", campaignCtl.CompleteCampaign)

	campaigns.Post("/:id/templates", campaignCtl.SetSequenceSteps)
	campaigns.Get("/:id/templates", campaignCtl.GetSequenceSteps)

	campaigns.Post("/:id/prospects", campaignCtl.EnrollProspects)
	campaigns.Get("/:id/prospects", campaignCtl.GetProspects)
	campaigns.Delete("/:id/prospects/:prospectId", campaignCtl.RemoveProspect)

	campaigns.Get("/:id/stats", campaignCtl.GetCampaignStats)

	// Websocket upgrade check, then the progress stream.
	app.Use("/api/campaigns/:id/progress", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/api/campaigns/:id/progress", controller.CampaignProgressWS(db, routeLogger))

	// Schedules
	schedules := api.Group("/schedules")
	schedules.Post("/", scheduleCtl.CreateSchedule)
	schedules.Get("/", scheduleCtl.GetSchedules)
	schedules.Put("/:id", scheduleCtl.UpdateSchedule)
	schedules.Patch("/:id", scheduleCtl.UpdateSchedule)
	schedules.Delete("/:id", scheduleCtl.DeleteSchedule)

	// Sender identities
	identities := api.Group("/outlook/identities")
	identities.Post("/", identityCtl.CreateIdentity)
	identities.Get("/", identityCtl.GetIdentities)
	identities.Put("/:id", identityCtl.UpdateIdentity)
	identities.Patch("/:id", identityCtl.UpdateIdentity)
	identities.Delete("/:id", identityCtl.DeleteIdentity)
	identities.Post("/:id/test", middleware.IdentityTestRateLimiter(), identityCtl.TestIdentity)

	// Suppression list
	suppression := api.Group("/suppression")
	suppression.Post("/", suppressionCtl.CreateSuppression)
	suppression.Get("/", suppressionCtl.GetSuppressions)
	suppression.Delete("/:id", suppressionCtl.DeleteSuppression)

	// Contacts and lists
	contacts := api.Group("/contacts")
	contacts.Post("/", contactCtl.CreateContact)
	contacts.Get("/", contactCtl.GetContacts)
	contacts.Put("/:id", contactCtl.UpdateContact)
	contacts.Delete("/:id", contactCtl.DeleteContact)

	lists := api.Group("/contact-lists")
	lists.Post("/", contactCtl.CreateContactList)
	lists.Get("/", contactCtl.GetContactLists)
	lists.Post("/:id/members", contactCtl.AddListMembers)

	// Inbox and reports
	api.Get("/inbox/replies", reportCtl.GetReplies)
	api.Get("/reports/emails", reportCtl.GetEmailReport)
	api.Get("/reports/team-performance", reportCtl.GetTeamPerformance)

	routeLogger.Println("Routes initialized successfully")
}
