package voicelane

import (
	"fmt"
	"regexp"
	"strings"
)

// Property is a single JSON-schema property in a tool's parameter schema.
type Property struct {
	Type        string              `json:"type"`
	Description string              `json:"description,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
}

// ParameterSchema is the JSON-schema object describing a tool's arguments.
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
}

// ToolDefinition is a callable tool derived from a webhook configuration.
// WebhookURL and WebhookID are local bookkeeping and must be stripped before
// transmission to the credential endpoint; Wire does that.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  ParameterSchema
	WebhookURL  string
	WebhookID   string
}

// WireTool is the sanitized form of a ToolDefinition sent to the credential
// endpoint and the hosted bot platform. It carries no local bookkeeping.
type WireTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// Wire strips local bookkeeping fields for transmission.
func (t ToolDefinition) Wire() WireTool {
	return WireTool{
		Type:        "function",
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.Parameters,
	}
}

// WireTools sanitizes a tool list for transmission.
func WireTools(tools []ToolDefinition) []WireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]WireTool, len(tools))
	for i, t := range tools {
		out[i] = t.Wire()
	}
	return out
}

// ToolWebhookMap derives the tool-name to webhook-URL mapping from the same
// tool list sent to the credential endpoint. The map is written once at
// session start and only read thereafter.
func ToolWebhookMap(tools []ToolDefinition) map[string]string {
	m := make(map[string]string, len(tools))
	for _, t := range tools {
		m[t.Name] = t.WebhookURL
	}
	return m
}

var (
	invalidToolChars = regexp.MustCompile(`[^a-z0-9_]`)
	underscoreRuns   = regexp.MustCompile(`_+`)
)

// defaultToolName is used when normalization leaves nothing of the webhook name.
const defaultToolName = "webhook_action"

// sanitizeToolName normalizes a webhook name to a safe tool identifier:
// lowercase, non-alphanumerics collapsed to single underscores, leading and
// trailing underscores stripped.
func sanitizeToolName(name string) string {
	s := invalidToolChars.ReplaceAllString(strings.ToLower(name), "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return defaultToolName
	}
	return s
}

// fieldDescriptions maps known payload field keys to the static descriptions
// shown to the model. Unknown keys fall back to the key itself.
var fieldDescriptions = map[string]string{
	"caller_number":     "The caller phone number",
	"transcript":        "Full conversation transcript",
	"call_duration":     "Duration of the call in seconds",
	"summary":           "Brief summary of the conversation and outcome",
	"address":           "Customer address (street, suburb, state, postcode)",
	"installer_message": "Detailed message for the installer with special instructions, access notes, and job specifics",
	"custom_data":       "Any additional custom data",
	"extracted_fields":  "Extracted information like name, email, service type",
	"agent_name":        "Name of the AI agent",
	"timestamp":         "ISO timestamp of when this was triggered",
}

// extractedFieldsDescription instructs the model to populate everything the
// caller provided, not just the fields it considers relevant.
const extractedFieldsDescription = "All information collected from the caller during the conversation. " +
	"ALWAYS include every piece of information the caller provided."

var extractedFieldsProperties = map[string]Property{
	"name":           {Type: "string", Description: "Caller's full name"},
	"email":          {Type: "string", Description: "Caller's email address"},
	"phone":          {Type: "string", Description: "Caller's phone number"},
	"company":        {Type: "string", Description: "Caller's company or business name"},
	"service_type":   {Type: "string", Description: "Type of service requested"},
	"preferred_date": {Type: "string", Description: "Preferred date/time for appointment"},
	"notes":          {Type: "string", Description: "Any other relevant details mentioned by the caller"},
}

var addressProperties = map[string]Property{
	"street":   {Type: "string"},
	"suburb":   {Type: "string"},
	"state":    {Type: "string"},
	"postcode": {Type: "string"},
}

// fieldProperty builds the schema property for a single payload field key.
func fieldProperty(field string) Property {
	desc, known := fieldDescriptions[field]
	if !known {
		desc = field
	}
	switch field {
	case "address":
		return Property{Type: "object", Description: desc, Properties: addressProperties}
	case "extracted_fields", "extracted_information":
		return Property{Type: "object", Description: extractedFieldsDescription, Properties: extractedFieldsProperties}
	case "custom_data":
		return Property{Type: "object", Description: desc}
	case "call_duration":
		return Property{Type: "number", Description: desc}
	default:
		return Property{Type: "string", Description: desc}
	}
}

// toolDescription builds a context-aware usage description from the webhook
// name, steering the model toward the right trigger moments.
func toolDescription(name string) string {
	lower := strings.ToLower(name)
	switch {
	case containsAny(lower, "human", "callback", "message"):
		return fmt.Sprintf("Trigger the %q webhook. Use this when the caller asks to speak to a real person, "+
			"leave a message, or requests a callback. Collect their name, phone number, and reason before triggering.", name)
	case containsAny(lower, "booking", "appointment"):
		return fmt.Sprintf("Trigger the %q webhook. Use this when the caller wants to book an appointment "+
			"or service. Collect their details before triggering.", name)
	default:
		return fmt.Sprintf("Trigger the %q webhook. Use this when the caller's request matches this action. "+
			"Collect all relevant information before triggering.", name)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// BuildTools derives callable tool definitions from the agent's webhook set.
// Only webhooks with the on-tool-call trigger and both a name and a URL are
// included; configuration order is preserved.
func BuildTools(webhooks []WebhookConfig) []ToolDefinition {
	var tools []ToolDefinition
	for _, wh := range webhooks {
		if wh.Trigger != TriggerOnToolCall || wh.Name == "" || wh.URL == "" {
			continue
		}

		props := make(map[string]Property, len(wh.PayloadFields))
		for _, field := range wh.PayloadFields {
			props[field] = fieldProperty(field)
		}

		tools = append(tools, ToolDefinition{
			Name:        sanitizeToolName(wh.Name),
			Description: toolDescription(wh.Name),
			Parameters:  ParameterSchema{Type: "object", Properties: props},
			WebhookURL:  wh.URL,
			WebhookID:   wh.ID,
		})
	}
	return tools
}
