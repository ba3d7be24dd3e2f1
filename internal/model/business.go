package model

import "time"

// BusinessRecord is a single registry entry, assembled from a search
// summary and, when available, the agent fields from the detail page.
// Records are never mutated after construction; a re-fetch produces a
// replacement value.
type BusinessRecord struct {
	BusinessName   string `json:"business_name"`
	RegistrationID string `json:"registration_id"`
	Status         string `json:"status"`
	FilingDate     string `json:"filing_date"`
	AgentName      string `json:"agent_name,omitempty"`
	AgentAddress   string `json:"agent_address,omitempty"`
	AgentEmail     string `json:"agent_email,omitempty"`
}

// Key returns the dedup key for the record: the registration ID, or the
// business name when the registry returned no ID for the row.
func (r BusinessRecord) Key() string {
	if r.RegistrationID != "" {
		return r.RegistrationID
	}
	return r.BusinessName
}

// WithAgent returns a copy of the record with the agent fields filled in.
func (r BusinessRecord) WithAgent(d AgentDetails) BusinessRecord {
	r.AgentName = d.Name
	r.AgentAddress = d.Address
	r.AgentEmail = d.Email
	return r
}

// AgentDetails holds the registered-agent fields scraped from a business
// detail page. Any field may be empty when the page omits it.
type AgentDetails struct {
	Name    string `json:"agent_name"`
	Address string `json:"agent_address"`
	Email   string `json:"agent_email"`
}

// SearchPage is one page of search results. It only lives for the
// duration of a pagination loop.
type SearchPage struct {
	Items      []BusinessRecord
	Page       int
	TotalPages int
	Total      int
}

// Session is the opaque token the registry hands out after the
// verification challenge is cleared. One session per program run.
type Session struct {
	Token     string
	CreatedAt time.Time
}

// SummaryFromAPI builds a partial BusinessRecord from a raw search-result
// item. Missing or mistyped fields become zero values; parsing never fails.
func SummaryFromAPI(item map[string]any) BusinessRecord {
	return BusinessRecord{
		BusinessName:   stringField(item, "businessName"),
		RegistrationID: stringField(item, "registrationId", "id"),
		Status:         stringField(item, "status"),
		FilingDate:     stringField(item, "filingDate"),
		AgentName:      stringField(item, "agentName"),
		AgentAddress:   stringField(item, "agentAddress"),
		AgentEmail:     stringField(item, "agentEmail"),
	}
}

// stringField returns the first key present in m with a string value.
func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok {
			return v
		}
	}
	return ""
}
