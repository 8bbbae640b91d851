package pipeline

import (
	"github.com/nextlevelbuilder/jobscout/internal/agent"
	"github.com/nextlevelbuilder/jobscout/internal/config"
)

// Stage IDs in execution order.
const (
	StageProfileAnalysis  = "profile-analysis"
	StageDomainSuggestion = "domain-suggestion"
	StageURLTemplate      = "url-template"
	StageJobListings      = "job-listings"
	StageURLCleanup       = "url-cleanup"
	StageFinalSummary     = "final-summary"
)

// StageOrder is the fixed execution order.
var StageOrder = []string{
	StageProfileAnalysis,
	StageDomainSuggestion,
	StageURLTemplate,
	StageJobListings,
	StageURLCleanup,
	StageFinalSummary,
}

const profileInstructions = `You analyze LinkedIn profiles. Use the web tools to open the profile URL you are given, then report on:

- Professional experience and career progression
- Education and certifications
- Core skills and expertise
- Current role and company
- Previous roles and notable achievements
- Industry reputation (recommendations, endorsements)

Answer with a structured bullet-point analysis followed by a short executive summary.`

const domainInstructions = `You classify professionals by domain. From the profile analysis you are given, identify the primary professional domain and up to two adjacent domains this person is a strong fit for (for example: AI/ML, developer tools, fintech, healthcare, B2B SaaS). Explain each choice in one sentence.`

const urlTemplateInstructions = `You build Y Combinator job board URLs. Given a set of suggested domains, produce the Work at a Startup (https://www.workatastartup.com) search URL that lists companies and roles for the primary domain. Output the URL on its own line, followed by one line per alternative domain URL if any.`

const listingsInstructions = `You extract job listings from the Y Combinator job board. Use the web tools to open the URL you are given and list the real open roles you find. For each role give the company, the role title, location or remote status, a one-line description and the job link exactly as it appears on the page.`

const urlCleanupInstructions = `You clean up job links. Y Combinator job links are often wrapped in sign-in or tracking redirects. Rewrite every link in the listings you are given into its direct job URL, keeping company and role next to each link. Do not invent links that are not present.`

const summaryInstructions = `You write career analysis reports. Combine the profile analysis, domain suggestions and job matches you are given into one comprehensive report: candidate overview, strengths, best-fit domains, the most relevant roles with direct links and concrete next steps.

Respond with well-formatted markdown that can be displayed as-is.`

var defaultStages = []agent.Spec{
	{ID: StageProfileAnalysis, Name: "LinkedIn Profile Analyzer", Instructions: profileInstructions, UsesTools: true},
	{ID: StageDomainSuggestion, Name: "Job Suggestions", Instructions: domainInstructions},
	{ID: StageURLTemplate, Name: "URL Generator", Instructions: urlTemplateInstructions},
	{ID: StageJobListings, Name: "Job Finder", Instructions: listingsInstructions, UsesTools: true},
	{ID: StageURLCleanup, Name: "URL Parser", Instructions: urlCleanupInstructions},
	{ID: StageFinalSummary, Name: "Summary Agent", Instructions: summaryInstructions},
}

// BuildStages returns the six stage specs bound to model, with per-stage
// overrides applied. The result is meant to be built once and reused.
func BuildStages(model string, overrides map[string]config.StageOverride) []agent.Spec {
	stages := make([]agent.Spec, len(defaultStages))
	for i, s := range defaultStages {
		s = s.WithModel(model)
		if o, ok := overrides[s.ID]; ok {
			s = s.WithModel(o.Model).WithInstructions(o.Instructions)
		}
		stages[i] = s
	}
	return stages
}
