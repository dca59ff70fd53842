package model

import (
	"sort"
	"strings"
)

// AssistantProfile binds a colleague to a provider assistant and its document set.
type AssistantProfile struct {
	ColleagueID         string `json:"id"`
	ProviderAssistantID string `json:"-"`
	DocumentSetID       string `json:"-"`
	DisplayName         string `json:"name"`
}

// AssistantDirectory is the immutable colleague lookup table passed to the relay.
type AssistantDirectory struct {
	byID  map[string]AssistantProfile
	order []string
}

func NewAssistantDirectory(profiles ...AssistantProfile) *AssistantDirectory {
	d := &AssistantDirectory{byID: make(map[string]AssistantProfile, len(profiles))}
	for _, p := range profiles {
		id := strings.ToLower(strings.TrimSpace(p.ColleagueID))
		if id == "" {
			continue
		}
		if _, dup := d.byID[id]; !dup {
			d.order = append(d.order, id)
		}
		p.ColleagueID = id
		if p.DisplayName == "" {
			p.DisplayName = id
		}
		d.byID[id] = p
	}
	return d
}

// Lookup returns the profile of a colleague. ok is false for unknown ids.
func (d *AssistantDirectory) Lookup(colleagueID string) (AssistantProfile, bool) {
	p, ok := d.byID[strings.ToLower(colleagueID)]
	return p, ok
}

// IDs returns colleague ids in configuration order.
func (d *AssistantDirectory) IDs() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Known returns a set view used by the mention resolver.
func (d *AssistantDirectory) Known() map[string]bool {
	out := make(map[string]bool, len(d.byID))
	for id := range d.byID {
		out[id] = true
	}
	return out
}

// Profiles returns all profiles sorted by display name.
func (d *AssistantDirectory) Profiles() []AssistantProfile {
	out := make([]AssistantProfile, 0, len(d.byID))
	for _, id := range d.order {
		out = append(out, d.byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out
}
