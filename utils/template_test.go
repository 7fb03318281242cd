package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"odcrm/models"
)

func TestRenderTemplate(t *testing.T) {
	prospect := &models.Prospect{
		Email:     "jane@corp.com",
		FirstName: "Jane",
		LastName:  "Doe",
		Company:   "Corp",
	}
	identity := &models.SenderIdentity{
		EmailAddress: "sales@acme.test",
		DisplayName:  "Acme Sales",
	}

	tests := []struct {
		name string
		tpl  string
		want string
	}{
		{
			name: "camelCase placeholders",
			tpl:  "Hi {{firstName}} at {{companyName}}",
			want: "Hi Jane at Corp",
		},
		{
			name: "snake_case aliases",
			tpl:  "Hi {{first_name}} {{last_name}} from {{company}}",
			want: "Hi Jane Doe from Corp",
		},
		{
			name: "sender placeholders",
			tpl:  "Best, {{senderName}} ({{senderEmail}})",
			want: "Best, Acme Sales (sales@acme.test)",
		},
		{
			name: "full name",
			tpl:  "Dear {{fullName}},",
			want: "Dear Jane Doe,",
		},
		{
			name: "unknown placeholder left intact",
			tpl:  "Re: {{subjectLine}}",
			want: "Re: {{subjectLine}}",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RenderTemplate(tc.tpl, prospect, identity))
		})
	}
}

func TestRenderTemplateEmptyFields(t *testing.T) {
	prospect := &models.Prospect{Email: "x@y.com"}
	identity := &models.SenderIdentity{}
	assert.Equal(t, "Hi ", RenderTemplate("Hi {{firstName}}", prospect, identity))
	assert.Equal(t, "Dear ,", RenderTemplate("Dear {{fullName}},", prospect, identity))
}
