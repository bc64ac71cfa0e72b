package facebook

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CanonicalFields is the fixed contact record a lead form can populate.
// Each field is set only when a recognized alias matched a non-empty answer.
type CanonicalFields struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Company   string
	City      string
}

// CustomAnswer is a form answer that did not match any known alias.
type CustomAnswer struct {
	Label string
	Value string
}

// NormalizedLead is the result of mapping raw form answers onto the
// canonical contact shape.
type NormalizedLead struct {
	Canonical     CanonicalFields
	CustomAnswers []CustomAnswer
}

// Notes renders the custom answers as a newline-joined free-text block.
// Returns the empty string when there are none.
func (n NormalizedLead) Notes() string {
	if len(n.CustomAnswers) == 0 {
		return ""
	}
	lines := make([]string, 0, len(n.CustomAnswers))
	for _, a := range n.CustomAnswers {
		lines = append(lines, a.Label+": "+a.Value)
	}
	return strings.Join(lines, "\n")
}

// Alias tables: ordered lists of raw field names recognized per canonical
// field, covering the Swedish and English variants seen in real lead forms.
// Probing stops at the first alias with a non-empty value.
var (
	firstNameAliases = []string{"first_name", "förnamn", "fornamn"}
	lastNameAliases  = []string{"last_name", "efternamn"}
	fullNameAliases  = []string{"full_name", "namn", "name", "fullständigt_namn"}
	emailAliases     = []string{"email", "e-post", "epost", "e_post", "e-mail", "mail", "email_address", "epostadress"}
	phoneAliases     = []string{
		"phone_number", "telefon", "telefonnummer", "phone",
		"mobile_phone_number", "mobilnummer", "mobil", "mobile",
		"mobiltelefon", "cell_phone", "tel", "telephone",
	}
	companyAliases = []string{"company_name", "företag", "foretag", "company", "företagsnamn", "organisation"}
	cityAliases    = []string{"city", "stad", "ort", "postort"}
)

// knownAliases is the union of every alias table, used to decide whether an
// answer falls through to the custom-answer list.
var knownAliases = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, list := range [][]string{
		firstNameAliases, lastNameAliases, fullNameAliases,
		emailAliases, phoneAliases, companyAliases, cityAliases,
	} {
		for _, name := range list {
			set[name] = struct{}{}
		}
	}
	return set
}()

// Normalize reconciles loosely-structured, multi-language form answers into
// a canonical contact record plus free-form custom answers. It never fails:
// absent alias matches simply leave the canonical field unset.
func Normalize(fieldData []FieldData) NormalizedLead {
	// Case-insensitive name -> first value. Later duplicates of the same
	// name overwrite earlier ones. Answers with no values are skipped.
	lookup := make(map[string]string, len(fieldData))
	for _, fd := range fieldData {
		if len(fd.Values) == 0 {
			continue
		}
		lookup[strings.ToLower(fd.Name)] = fd.Values[0]
	}

	var c CanonicalFields
	c.FirstName = probe(lookup, firstNameAliases)
	c.LastName = probe(lookup, lastNameAliases)
	c.Email = probe(lookup, emailAliases)
	c.Phone = probe(lookup, phoneAliases)
	c.Company = probe(lookup, companyAliases)
	c.City = probe(lookup, cityAliases)

	// Derive missing name parts from a full-name answer: first token becomes
	// the first name, the remaining tokens the last name.
	if c.FirstName == "" || c.LastName == "" {
		if full := probe(lookup, fullNameAliases); full != "" {
			parts := strings.Fields(full)
			if c.FirstName == "" && len(parts) > 0 {
				c.FirstName = parts[0]
			}
			if c.LastName == "" && len(parts) > 1 {
				c.LastName = strings.Join(parts[1:], " ")
			}
		}
	}

	// Everything unrecognized and non-empty becomes a custom answer, in
	// payload order. The label keeps the original casing of the raw name.
	var custom []CustomAnswer
	for _, fd := range fieldData {
		if len(fd.Values) == 0 || fd.Values[0] == "" {
			continue
		}
		if _, known := knownAliases[strings.ToLower(fd.Name)]; known {
			continue
		}
		custom = append(custom, CustomAnswer{Label: humanize(fd.Name), Value: fd.Values[0]})
	}

	return NormalizedLead{Canonical: c, CustomAnswers: custom}
}

// probe returns the first non-empty value among the aliases, in order.
func probe(lookup map[string]string, aliases []string) string {
	for _, alias := range aliases {
		if v := lookup[alias]; v != "" {
			return v
		}
	}
	return ""
}

// humanize turns a raw field name into a label: underscores become spaces
// and the first rune is upper-cased.
func humanize(name string) string {
	s := strings.ReplaceAll(name, "_", " ")
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
