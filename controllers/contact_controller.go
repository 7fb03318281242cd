package controller

import (
	"log"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"odcrm/middleware"
	"odcrm/models"
	"odcrm/utils"
)

type ContactController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewContactController(db *gorm.DB, logger *log.Logger) *ContactController {
	return &ContactController{DB: db, Logger: logger}
}

type ContactRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Position  string `json:"position"`
	Phone     string `json:"phone"`
	Source    string `json:"source"`
}

// CreateContact adds a single contact. Emails are normalized to lowercase
// and deduplicated per customer.
func (cc *ContactController) CreateContact(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var req ContactRequest
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

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := checkmail.ValidateFormat(email); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid email address",
		})
	}

	var existing models.Contact
	if err := cc.DB.Where("customer_id = ? AND email = ?", customer.ID, email).
		First(&existing).Error; err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "A contact with this email already exists",
		})
	}

	contact := models.Contact{
		CustomerID: customer.ID,
		Email:      email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Company:    req.Company,
		Position:   req.Position,
		Phone:      req.Phone,
		Source:     req.Source,
	}
	if contact.Source == "" {
		contact.Source = "manual"
	}
	if err := cc.DB.Create(&contact).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create contact",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(contact)
}

// GetContacts lists contacts with optional search over email, name and
// company.
func (cc *ContactController) GetContacts(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	query := cc.DB.Where("customer_id = ?", customer.ID)
	if search := c.Query("search"); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(company) LIKE ?",
			like, like, like, like)
	}

	var contacts []models.Contact
	if err := query.Order("id DESC").Find(&contacts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch contacts",
		})
	}

	return c.JSON(fiber.Map{"contacts": contacts})
}

// UpdateContact applies partial updates to a contact.
func (cc *ContactController) UpdateContact(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var contact models.Contact
	if err := cc.DB.Where("id = ? AND customer_id = ?", c.Params("id"), customer.ID).
		First(&contact).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Contact not found",
		})
	}

	var req struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		Company   *string `json:"company"`
		Position  *string `json:"position"`
		Phone     *string `json:"phone"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	updates := map[string]interface{}{}
	if req.FirstName != nil {
		updates["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		updates["last_name"] = *req.LastName
	}
	if req.Company != nil {
		updates["company"] = *req.Company
	}
	if req.Position != nil {
		updates["position"] = *req.Position
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if len(updates) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No fields to update",
		})
	}

	if err := cc.DB.Model(&contact).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update contact",
		})
	}

	return c.JSON(contact)
}

// DeleteContact removes a contact and its list memberships. Prospect rows in
// campaigns keep their denormalized copy.
func (cc *ContactController) DeleteContact(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var contact models.Contact
	if err := cc.DB.Where("id = ? AND customer_id = ?", c.Params("id"), customer.ID).
		First(&contact).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Contact not found",
		})
	}

	err := cc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("contact_id = ?", contact.ID).
			Delete(&models.ContactListMembership{}).Error; err != nil {
			return err
		}
		return tx.Delete(&contact).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete contact",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Contact deleted successfully",
	})
}

type ContactListRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// CreateContactList creates an empty list.
func (cc *ContactController) CreateContactList(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var req ContactListRequest
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

	list := models.ContactList{
		CustomerID:  customer.ID,
		Name:        req.Name,
		Description: req.Description,
		Source:      "manual",
	}
	if err := cc.DB.Create(&list).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create contact list",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(list)
}

// GetContactLists lists the customer's contact lists.
func (cc *ContactController) GetContactLists(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var lists []models.ContactList
	if err := cc.DB.Where("customer_id = ?", customer.ID).
		Order("name ASC").Find(&lists).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch contact lists",
		})
	}

	return c.JSON(fiber.Map{"lists": lists})
}

type AddListMembersRequest struct {
	ContactIDs []uint `json:"contact_ids" validate:"required,min=1"`
}

// AddListMembers adds contacts to a list, skipping ones already present.
func (cc *ContactController) AddListMembers(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var list models.ContactList
	if err := cc.DB.Where("id = ? AND customer_id = ?", c.Params("id"), customer.ID).
		First(&list).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Contact list not found",
		})
	}

	var req AddListMembersRequest
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

	var contacts []models.Contact
	if err := cc.DB.Where("customer_id = ? AND id IN ?", customer.ID, req.ContactIDs).
		Find(&contacts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch contacts",
		})
	}

	var existing []uint
	if err := cc.DB.Model(&models.ContactListMembership{}).
		Where("contact_list_id = ?", list.ID).
		Pluck("contact_id", &existing).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to check list membership",
		})
	}
	memberSet := make(map[uint]bool, len(existing))
	for _, id := range existing {
		memberSet[id] = true
	}

	var memberships []models.ContactListMembership
	for _, contact := range contacts {
		if memberSet[contact.ID] {
			continue
		}
		memberships = append(memberships, models.ContactListMembership{
			ContactID:     contact.ID,
			ContactListID: list.ID,
		})
	}

	if len(memberships) > 0 {
		err := cc.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&memberships).Error; err != nil {
				return err
			}
			return tx.Model(&list).
				Update("contact_count", gorm.Expr("contact_count + ?", len(memberships))).Error
		})
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to add contacts to list",
			})
		}
	}

	return c.JSON(fiber.Map{
		"message": "Contacts added to list",
		"added":   len(memberships),
	})
}
