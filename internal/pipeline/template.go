package pipeline

import "strings"

// SummaryInput assembles the final stage's input. Profile analysis, domain
// suggestions and raw job listings are inserted verbatim; the cleaned links
// follow as a separate section when present.
func SummaryInput(profile, domains, listings, links string) string {
	var b strings.Builder
	b.WriteString("LinkedIn Profile Analysis:\n")
	b.WriteString(profile)
	b.WriteString("\n\nJob Suggestions:\n")
	b.WriteString(domains)
	b.WriteString("\n\nJob Matches:\n")
	b.WriteString(listings)
	if strings.TrimSpace(links) != "" {
		b.WriteString("\n\nDirect Job Links:\n")
		b.WriteString(links)
	}
	b.WriteString("\n\nPlease analyze the above information and create a comprehensive career analysis report in markdown format.")
	return b.String()
}
