package classifier

import "regexp"

// Keyword routing backstop for department and event type. The collaborator
// usually fills these in; when it does not, the category and description
// text decide where the report lands.
var routingRules = []struct {
	pattern    *regexp.Regexp
	eventType  string
	department string
}{
	{regexp.MustCompile(`robbery|theft|crime|attack|fight|weapon|gun`), "Safety Alert", "Police"},
	{regexp.MustCompile(`traffic|jam|accident|signal|rush`), "Traffic Rush", "Traffic"},
	{regexp.MustCompile(`road|pothole|closure|construction`), "Road Closure", "Municipal"},
	{regexp.MustCompile(`power|electricity|transformer|outage`), "Power Outage", "Electricity"},
	{regexp.MustCompile(`water|pipeline|sewage|leak`), "Water Issue", "Municipal"},
}

// routeEventAndDepartment derives (eventType, department) from free text.
func routeEventAndDepartment(text string) (string, string) {
	for _, rule := range routingRules {
		if rule.pattern.MatchString(text) {
			return rule.eventType, rule.department
		}
	}
	return "General Civic Issue", "General"
}
