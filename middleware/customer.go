package middleware

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"odcrm/models"
	"odcrm/utils"
)

// CustomerHeader carries the tenant every /api request is scoped to.
const CustomerHeader = "X-Customer-Id"

// CustomerScoped resolves the X-Customer-Id header into a customer and puts
// it in the request locals. Tenant isolation is enforced here: every handler
// filters by the resolved customer ID, never by client-supplied body fields.
func CustomerScoped(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(CustomerHeader)
		if header == "" {
			// Fallback for clients passing the tenant as a query param.
			header = c.Query("customerId")
		}
		if header == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing " + CustomerHeader + " header",
			})
		}

		customerID := utils.ParseUint(header)
		if customerID == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid customer id",
			})
		}

		var customer models.Customer
		if err := db.First(&customer, customerID).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Customer not found",
			})
		}

		c.Locals("customer", &customer)
		return c.Next()
	}
}

// CurrentCustomer returns the customer resolved by CustomerScoped.
func CurrentCustomer(c *fiber.Ctx) *models.Customer {
	return c.Locals("customer").(*models.Customer)
}
