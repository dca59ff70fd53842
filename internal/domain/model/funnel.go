package model

// FunnelQuestion is one scripted intake question.
type FunnelQuestion struct {
	ID          string `json:"id"`
	Question    string `json:"question"`
	Placeholder string `json:"placeholder,omitempty"`
}

// FunnelState tracks the intake flow of a session before its first real query.
type FunnelState struct {
	IsActive      bool              `json:"isActive"`
	CurrentStep   int               `json:"currentStep"`
	CollectedData map[string]string `json:"collectedData"`
	Questions     []FunnelQuestion  `json:"questions"`
}

// DefaultFunnel is used when configuration does not override the questions.
var DefaultFunnel = []FunnelQuestion{
	{
		ID:          "component_type",
		Question:    "Heb je een vraag voor componenten, verdampers, compressoren, gaskoelers of condensors?",
		Placeholder: "Bijv. verdampers",
	},
	{
		ID:          "type_number",
		Question:    "Welk typenummer heb je en zoek je een bepaalde versie?",
		Placeholder: "Bijv. RTK-1234",
	},
	{
		ID:          "details",
		Question:    "Bedankt, vertel me wat je wilt weten dan ga ik voor je zoeken!",
		Placeholder: "Beschrijf je vraag...",
	},
}
