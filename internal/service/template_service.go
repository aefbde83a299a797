// internal/service/template_service.go
package service

import (
	"strings"

	"github.com/unclebandit/campaign-engine/internal/model"
)

func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// RenderForItem fills {name}, {first_name}, {number} and {email} for one
// audience member.
func RenderForItem(template string, it model.ContactListItem) string {
	email := ""
	if it.Email != nil {
		email = *it.Email
	}
	first := it.Name
	if i := strings.IndexByte(first, ' '); i > 0 {
		first = first[:i]
	}
	return RenderTemplate(template, map[string]string{
		"name":       it.Name,
		"first_name": first,
		"number":     it.Number,
		"email":      email,
	})
}
