package fallback

import (
	"fmt"
	"strings"

	"github.com/agentmesh/amcp/event"
)

// emptyCategory is the dictionary key for the generic, requestType-less
// emergency message ("I cannot process this request right now.").
const emptyCategory = ""

// defaultEmergencyMessages is the small dictionary from failure category
// to canned message, per spec.md §4.8. Categories are TaskError codes;
// emptyCategory covers total-failure (synthesis itself failed).
func defaultEmergencyMessages() map[string]string {
	return map[string]string{
		event.ErrCodeTaskTimeout:       "The %s is taking longer than expected and couldn't be completed in time.",
		event.ErrCodeUnauthorized:      "I'm not authorized to complete the %s.",
		event.ErrCodeAgentUnavailable:  "No agent is currently available to handle the %s.",
		event.ErrCodeInvalidParameters: "I couldn't understand the details needed for the %s.",
		event.ErrCodeExecutionFailed:   "Something went wrong while handling the %s.",
		ErrCodeCapabilityUnknown:       "I don't have a way to handle the %s yet.",
		emptyCategory:                 "I cannot process this request right now.",
	}
}

// EmergencyMessage composes the final emergency string for category,
// interpolating taskDescription into the category's template. Unknown
// categories fall back to the generic message.
func (m *Manager) EmergencyMessage(category, taskDescription string) string {
	tmpl, ok := m.emergency[category]
	if !ok {
		tmpl = m.emergency[emptyCategory]
	}
	if strings.Contains(tmpl, "%s") {
		return fmt.Sprintf(tmpl, taskDescription)
	}
	return tmpl
}
