package classify

import (
	"strings"

	"github.com/ignite/adpulse/internal/domain"
)

// Mapping holds the static classification tables: raw action types to
// result families, and optimization goals to an ordered list of allowed
// families with a default. The tables are refreshable independently of
// the pipeline and are never mutated by it.
type Mapping struct {
	actionFamily map[string]domain.ResultFamily
	goalFamilies map[string]goalEntry
}

type goalEntry struct {
	// allowed families in priority order; first occurring wins
	allowed []domain.ResultFamily
	def     domain.ResultFamily
}

// defaultActionFamily maps the platform's raw conversion action types to
// result families.
var defaultActionFamily = map[string]domain.ResultFamily{
	"onsite_conversion.messaging_conversation_started_7d": domain.FamilyMessages,
	"onsite_conversion.messaging_first_reply":             domain.FamilyMessages,
	"lead":                             domain.FamilyLeadForm,
	"onsite_conversion.lead_grouped":   domain.FamilyLeadForm,
	"leadgen_grouped":                  domain.FamilyLeadForm,
	"offsite_conversion.fb_pixel_lead": domain.FamilyWebsiteLead,
	"offsite_conversion.fb_pixel_complete_registration": domain.FamilyWebsiteLead,
	"purchase":                             domain.FamilyPurchase,
	"omni_purchase":                        domain.FamilyPurchase,
	"offsite_conversion.fb_pixel_purchase": domain.FamilyPurchase,
	"link_click":                           domain.FamilyClick,
	"landing_page_view":                    domain.FamilyClick,
	"video_view":                           domain.FamilyVideoView,
	"thruplay":                             domain.FamilyVideoView,
	"app_install":                          domain.FamilyAppInstall,
	"mobile_app_install":                   domain.FamilyAppInstall,
	"omni_app_install":                     domain.FamilyAppInstall,
}

// defaultGoalFamilies maps optimization goals to their allowed families.
var defaultGoalFamilies = map[string]goalEntry{
	"CONVERSATIONS": {
		allowed: []domain.ResultFamily{domain.FamilyMessages},
		def:     domain.FamilyMessages,
	},
	"QUALITY_LEAD": {
		allowed: []domain.ResultFamily{domain.FamilyWebsiteLead, domain.FamilyLeadForm},
		def:     domain.FamilyWebsiteLead,
	},
	"LEAD_GENERATION": {
		allowed: []domain.ResultFamily{domain.FamilyLeadForm, domain.FamilyWebsiteLead, domain.FamilyMessages},
		def:     domain.FamilyLeadForm,
	},
	"OFFSITE_CONVERSIONS": {
		allowed: []domain.ResultFamily{domain.FamilyPurchase, domain.FamilyWebsiteLead},
		def:     domain.FamilyPurchase,
	},
	"VALUE": {
		allowed: []domain.ResultFamily{domain.FamilyPurchase},
		def:     domain.FamilyPurchase,
	},
	"LINK_CLICKS": {
		allowed: []domain.ResultFamily{domain.FamilyClick},
		def:     domain.FamilyClick,
	},
	"LANDING_PAGE_VIEWS": {
		allowed: []domain.ResultFamily{domain.FamilyClick},
		def:     domain.FamilyClick,
	},
	"THRUPLAY": {
		allowed: []domain.ResultFamily{domain.FamilyVideoView},
		def:     domain.FamilyVideoView,
	},
	"APP_INSTALLS": {
		allowed: []domain.ResultFamily{domain.FamilyAppInstall},
		def:     domain.FamilyAppInstall,
	},
}

// fallbackGoal is used for unknown optimization goals. Classification must
// never block aggregation, so unknown goals degrade to the click family.
var fallbackGoal = goalEntry{
	allowed: []domain.ResultFamily{domain.FamilyClick},
	def:     domain.FamilyClick,
}

// NewMapping returns a Mapping seeded with the default static tables.
func NewMapping() *Mapping {
	return &Mapping{
		actionFamily: defaultActionFamily,
		goalFamilies: defaultGoalFamilies,
	}
}

// NewMappingFromTables builds a Mapping from externally supplied tables,
// e.g. a refresh pushed by the ingestion collaborator. Unknown entries in
// goals fall back to the defaults at lookup time.
func NewMappingFromTables(actions map[string]domain.ResultFamily, goals map[string][]domain.ResultFamily, defaults map[string]domain.ResultFamily) *Mapping {
	gf := make(map[string]goalEntry, len(goals))
	for goal, allowed := range goals {
		def := defaults[goal]
		if def == "" && len(allowed) > 0 {
			def = allowed[0]
		}
		gf[strings.ToUpper(goal)] = goalEntry{allowed: allowed, def: def}
	}
	return &Mapping{actionFamily: actions, goalFamilies: gf}
}

// ActionFamily classifies a single raw action type. Unmapped types return
// FamilyOther.
func (m *Mapping) ActionFamily(actionType string) domain.ResultFamily {
	if f, ok := m.actionFamily[actionType]; ok {
		return f
	}
	return domain.FamilyOther
}

// PrimaryFamily picks the result family for an ad week: the
// highest-priority allowed family (per the goal's ordering) that occurs
// in the action list, falling back to the goal's default when nothing
// matches. Unknown goals fall back to the click family.
func (m *Mapping) PrimaryFamily(optimizationGoal string, actions []domain.ActionCount) domain.ResultFamily {
	entry, ok := m.goalFamilies[strings.ToUpper(optimizationGoal)]
	if !ok {
		entry = fallbackGoal
	}

	present := make(map[domain.ResultFamily]bool, len(actions))
	for _, a := range actions {
		present[m.ActionFamily(a.ActionType)] = true
	}

	for _, fam := range entry.allowed {
		if present[fam] {
			return fam
		}
	}
	return entry.def
}

// FamilyCounts groups an action list into result-family counts. Actions
// that classify to FamilyOther are kept under FamilyOther so that spend
// against unmapped conversions stays visible downstream.
func (m *Mapping) FamilyCounts(actions []domain.ActionCount) map[domain.ResultFamily]int64 {
	out := make(map[domain.ResultFamily]int64)
	for _, a := range actions {
		out[m.ActionFamily(a.ActionType)] += a.Count
	}
	return out
}
