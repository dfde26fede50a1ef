package campaign

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/zaptalk/zapcampaigns/internal/domain"
)

// ContactView is the flattened contact record handed to the variable
// resolver: the list item merged with any CRM contact found by number.
type ContactView struct {
	Name   string
	Email  string
	Number string
	Fields map[string]string
}

// NewContactView merges a contact list item with an optional CRM contact.
// CRM fields win only where the list item is blank.
func NewContactView(item *domain.ContactListItem, crm *domain.Contact) ContactView {
	v := ContactView{
		Name:   item.Name,
		Email:  item.Email,
		Number: item.Number,
		Fields: map[string]string{},
	}
	if crm != nil {
		if v.Name == "" {
			v.Name = crm.Name
		}
		if v.Email == "" {
			v.Email = crm.Email
		}
		v.Fields["company"] = crm.Company
		v.Fields["city"] = crm.City
		v.Fields["situation"] = crm.Situation
	}
	v.Fields["name"] = v.Name
	v.Fields["email"] = v.Email
	v.Fields["number"] = v.Number
	return v
}

// fieldAliases maps localized placeholder names to underlying contact field
// names.
var fieldAliases = map[string]string{
	"nome":         "name",
	"primeiroNome": "firstName",
	"numero":       "number",
	"empresa":      "company",
	"cidade":       "city",
	"situacao":     "situation",
}

// ResolveVariables substitutes `{key}` placeholders in a template. Passes in
// order: fixed built-ins, campaign custom variables, localized aliases, and
// a generic pass over every contact field by exact and kebab-cased name.
// Unmatched placeholders stay verbatim. Time-derived values are computed at
// resolution time, not enqueue time.
func ResolveVariables(template string, custom []CustomVariable, contact ContactView, now time.Time) string {
	out := template

	firstName := contact.Name
	if i := strings.IndexByte(firstName, ' '); i > 0 {
		firstName = firstName[:i]
	}
	period, greeting := dayPeriod(now.Hour())

	builtins := []CustomVariable{
		{Key: "name", Value: contact.Name},
		{Key: "firstName", Value: firstName},
		{Key: "email", Value: contact.Email},
		{Key: "number", Value: contact.Number},
		{Key: "date", Value: now.Format("02/01/2006")},
		{Key: "isoDate", Value: now.Format("2006-01-02")},
		{Key: "hour", Value: now.Format("15:04")},
		{Key: "dayPeriod", Value: period},
		{Key: "greeting", Value: greeting},
	}
	for _, b := range builtins {
		out = replacePlaceholder(out, b.Key, b.Value)
	}

	for _, cv := range custom {
		if cv.Key == "" {
			continue
		}
		out = replacePlaceholder(out, cv.Key, cv.Value)
	}

	for alias, field := range fieldAliases {
		var val string
		var ok bool
		switch field {
		case "firstName":
			val, ok = firstName, true
		default:
			val, ok = contact.Fields[field]
		}
		if ok {
			out = replacePlaceholder(out, alias, val)
		}
	}

	for field, val := range contact.Fields {
		out = replacePlaceholder(out, field, val)
		out = replacePlaceholder(out, toKebab(field), val)
	}

	return out
}

func replacePlaceholder(text, key, value string) string {
	re := regexp.MustCompile(`\{` + regexp.QuoteMeta(key) + `\}`)
	return re.ReplaceAllLiteralString(text, value)
}

// dayPeriod returns the time-of-day label and the matching greeting phrase.
func dayPeriod(hour int) (string, string) {
	switch {
	case hour >= 6 && hour < 12:
		return "morning", "Bom dia"
	case hour >= 12 && hour < 18:
		return "afternoon", "Boa tarde"
	default:
		return "evening", "Boa noite"
	}
}

// toKebab converts a camelCase field name to kebab-case.
func toKebab(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
