package facebook

// WebhookEvent is the top-level structure received from Meta's Lead Ads webhook.
type WebhookEvent struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry represents a single entry in the webhook payload.
type Entry struct {
	ID      string   `json:"id"`
	Time    int64    `json:"time"`
	Changes []Change `json:"changes"`
}

// Change represents a single change notification. Only changes with
// Field == "leadgen" carry lead submissions; everything else is ignored.
type Change struct {
	Field string       `json:"field"`
	Value LeadgenValue `json:"value"`
}

// LeadgenValue is the payload of a leadgen change.
type LeadgenValue struct {
	LeadgenID   string `json:"leadgen_id"`
	FormID      string `json:"form_id"`
	AdID        string `json:"ad_id"`
	AdgroupID   string `json:"adgroup_id"`
	PageID      string `json:"page_id"`
	CreatedTime int64  `json:"created_time"`
}

// LeadMetadata identifies a single lead submission announced by the webhook.
// The webhook only carries ids; the actual answers are fetched separately.
type LeadMetadata struct {
	LeadID    string
	FormID    string
	AdID      string
	AdGroupID string
	PageID    string
}

// FieldData is one answered question from a lead form. Values is non-empty
// when the question was answered; the first value is taken as canonical.
type FieldData struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// LeadData is the full lead detail fetched from the Graph API.
type LeadData struct {
	ID          string      `json:"id"`
	CreatedTime string      `json:"created_time"`
	FieldData   []FieldData `json:"field_data"`
}

// GraphError is the error object the Graph API embeds in failure responses.
type GraphError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}
