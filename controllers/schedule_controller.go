package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"odcrm/middleware"
	"odcrm/models"
	"odcrm/utils"
)

type ScheduleController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewScheduleController(db *gorm.DB, logger *log.Logger) *ScheduleController {
	return &ScheduleController{DB: db, Logger: logger}
}

type ScheduleRequest struct {
	Name       string `json:"name" validate:"required"`
	Timezone   string `json:"timezone" validate:"required,iana_tz"`
	DaysOfWeek []int  `json:"days_of_week" validate:"required,min=1,dive,min=0,max=6"`
	StartHour  int    `json:"start_hour" validate:"min=0,max=23"`
	EndHour    int    `json:"end_hour" validate:"min=0,max=23"`
}

// CreateSchedule creates a send window schedule. Hour ranges never wrap past
// midnight, so StartHour must be strictly below EndHour.
func (sc *ScheduleController) CreateSchedule(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var req ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if req.StartHour >= req.EndHour {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "start_hour must be before end_hour",
		})
	}

	schedule := models.Schedule{
		CustomerID: customer.ID,
		Name:       req.Name,
		Timezone:   req.Timezone,
		DaysOfWeek: req.DaysOfWeek,
		StartHour:  req.StartHour,
		EndHour:    req.EndHour,
	}
	if err := sc.DB.Create(&schedule).Error; err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to create schedule (name may already exist)",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(schedule)
}

// GetSchedules lists the customer's schedules.
func (sc *ScheduleController) GetSchedules(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var schedules []models.Schedule
	if err := sc.DB.Where("customer_id = ?", customer.ID).
		Order("name ASC").Find(&schedules).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch schedules",
		})
	}

	return c.JSON(fiber.Map{"schedules": schedules})
}

// UpdateSchedule edits a schedule in place. Campaigns referencing it pick up
// the new window on the next dispatch tick.
func (sc *ScheduleController) UpdateSchedule(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var schedule models.Schedule
	if err := sc.DB.Where("id = ? AND customer_id = ?", c.Params("id"), customer.ID).
		First(&schedule).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Schedule not found",
		})
	}

	var req ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if req.StartHour >= req.EndHour {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "start_hour must be before end_hour",
		})
	}
	if schedule.Name == models.DefaultScheduleName && req.Name != models.DefaultScheduleName {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "The default schedule cannot be renamed",
		})
	}

	schedule.Name = req.Name
	schedule.Timezone = req.Timezone
	schedule.DaysOfWeek = req.DaysOfWeek
	schedule.StartHour = req.StartHour
	schedule.EndHour = req.EndHour
	if err := sc.DB.Save(&schedule).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update schedule",
		})
	}

	return c.JSON(schedule)
}

// DeleteSchedule removes a schedule. The "Default" schedule is protected.
// Campaigns still pointing at a deleted schedule fall back to their legacy
// per-campaign window at dispatch time.
func (sc *ScheduleController) DeleteSchedule(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var schedule models.Schedule
	if err := sc.DB.Where("id = ? AND customer_id = ?", c.Params("id"), customer.ID).
		First(&schedule).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Schedule not found",
		})
	}
	if schedule.Name == models.DefaultScheduleName {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "The default schedule cannot be deleted",
		})
	}

	if err := sc.DB.Delete(&schedule).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete schedule",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Schedule deleted successfully",
	})
}
