package utils

import (
	"strings"

	"odcrm/models"
)

// Placeholder aliases accepted in subject and body templates. Both the
// canonical camelCase names and the snake_case aliases the importer produces
// resolve to the same value.
var placeholderAliases = map[string]string{
	"firstName":   "firstName",
	"first_name":  "firstName",
	"lastName":    "lastName",
	"last_name":   "lastName",
	"fullName":    "fullName",
	"full_name":   "fullName",
	"companyName": "companyName",
	"company":     "companyName",
	"senderName":  "senderName",
	"sender_name": "senderName",
	"senderEmail": "senderEmail",
	"email":       "prospectEmail",
}

// RenderTemplate substitutes {{placeholder}} variables with prospect and
// identity values. Unknown placeholders are left untouched so a typo shows
// up in a test send instead of disappearing silently.
func RenderTemplate(tpl string, prospect *models.Prospect, identity *models.SenderIdentity) string {
	values := map[string]string{
		"firstName":     prospect.FirstName,
		"lastName":      prospect.LastName,
		"fullName":      strings.TrimSpace(prospect.FirstName + " " + prospect.LastName),
		"companyName":   prospect.Company,
		"prospectEmail": prospect.Email,
		"senderName":    identity.DisplayName,
		"senderEmail":   identity.EmailAddress,
	}

	out := tpl
	for alias, canonical := range placeholderAliases {
		token := "{{" + alias + "}}"
		if strings.Contains(out, token) {
			out = strings.ReplaceAll(out, token, values[canonical])
		}
	}
	return out
}
