package manual

// Category is one of the fixed knowledge categories a manual's content is
// split into. The set is closed; unknown keys coming back from the
// categorizer are dropped during normalization.
type Category string

const (
	CategorySafety     Category = "safety"
	CategoryParts      Category = "parts"
	CategoryWarranty   Category = "warranty"
	CategoryProcedures Category = "procedures"
	CategoryErrors     Category = "errors"
	CategoryVideo      Category = "video"
)

// CategoryInfo describes how a category is presented and what the
// categorizer is asked to extract for it.
type CategoryInfo struct {
	Label  string
	Color  string // hex, used by UI and CLI rendering
	Prompt string // extraction instruction sent to the categorizer
}

// Categories maps every valid category to its presentation and prompt.
var Categories = map[Category]CategoryInfo{
	CategorySafety: {
		Label:  "Safety Warnings",
		Color:  "#e74c3c",
		Prompt: "Extract all safety warnings, hazard notices, cautions, and dangerous-operation advisories.",
	},
	CategoryParts: {
		Label:  "Parts & Specifications",
		Color:  "#3498db",
		Prompt: "Extract part names, part numbers, technical specifications, dimensions, and materials.",
	},
	CategoryWarranty: {
		Label:  "Warranty & Support",
		Color:  "#9b59b6",
		Prompt: "Extract warranty terms, coverage periods, support contacts, and claim procedures.",
	},
	CategoryProcedures: {
		Label:  "Procedures & Usage",
		Color:  "#27ae60",
		Prompt: "Extract setup, operation, maintenance, and cleaning procedures as ordered steps.",
	},
	CategoryErrors: {
		Label:  "Error Codes & Troubleshooting",
		Color:  "#f39c12",
		Prompt: "Extract error codes, diagnostic indicators, fault symptoms, and their fixes.",
	},
	CategoryVideo: {
		Label:  "Videos & Links",
		Color:  "#1abc9c",
		Prompt: "Extract referenced video tutorials, URLs, QR-code targets, and online guides.",
	},
}

// CategoryOrder is the stable display and serialization order.
var CategoryOrder = []Category{
	CategorySafety,
	CategoryParts,
	CategoryWarranty,
	CategoryProcedures,
	CategoryErrors,
	CategoryVideo,
}

// Valid reports whether c is a member of the closed category set.
func (c Category) Valid() bool {
	_, ok := Categories[c]
	return ok
}
