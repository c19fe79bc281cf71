package workflow

import "sort"

// Built-in templates. They are seed data: callers only ever receive copies.
var templates = []Workflow{
	{
		ID:          "tpl-page-snapshot",
		Name:        "Page snapshot",
		Description: "Open a page, wait for it to settle and capture a screenshot.",
		Browser:     BrowserConfig{Headless: true},
		Steps: []Step{
			{ID: "open", Type: StepNavigate, Label: "Open page", Params: Params{"url": "https://example.com"}},
			{ID: "settle", Type: StepWait, Label: "Let the page settle", Params: Params{"duration": 1000}},
			{ID: "shot", Type: StepScreenshot, Label: "Capture", Params: Params{"filename": "snapshot-{index}.png"}},
		},
	},
	{
		ID:          "tpl-form-login",
		Name:        "Form login",
		Description: "Sign in to a portal with a username/password form and confirm the landing page.",
		Browser:     BrowserConfig{Headless: false},
		Steps: []Step{
			{ID: "login", Type: StepLogin, Label: "Sign in", Params: Params{
				"portal":            "form",
				"url":               "https://portal.example.com/login",
				"username_selector": "#username",
				"password_selector": "#password",
				"submit_selector":   "button[type=submit]",
			}},
			{ID: "landing", Type: StepWait, Label: "Wait for dashboard", Params: Params{"selector": "#dashboard", "timeout": 30000}},
			{ID: "greeting", Type: StepExtractText, Label: "Read greeting", Params: Params{"selector": "#dashboard h1", "variable": "greeting"}},
		},
	},
	{
		ID:          "tpl-sso-report-export",
		Name:        "SSO report export",
		Description: "Sign in through the district SSO portal, open a saved report and download its export.",
		Browser:     BrowserConfig{Headless: false, PersistentContext: true},
		Steps: []Step{
			{ID: "sso", Type: StepLogin, Label: "Sign in with SSO", Params: Params{"portal": "sso"}},
			{ID: "reports", Type: StepNavigate, Label: "Open reports", Params: Params{"url": "https://sis.example.com/reports"}},
			{ID: "report", Type: StepClick, Label: "Choose saved report", Params: Params{"selector": `text="Class Roster With Contacts"`}},
			{ID: "export", Type: StepDownload, Label: "Export CSV", Params: Params{"selector": `text="Export"`, "timeout": 60000}},
		},
	},
	{
		ID:          "tpl-paged-capture",
		Name:        "Paged capture",
		Description: "Screenshot a paginated list, advancing with the Next control while it exists.",
		Browser:     BrowserConfig{Headless: true},
		Steps: []Step{
			{ID: "open", Type: StepNavigate, Label: "Open list", Params: Params{"url": "https://example.com/list"}},
			{ID: "pages", Type: StepLoop, Label: "Five pages", Params: Params{"count": 5}, Steps: []Step{
				{ID: "page-shot", Type: StepScreenshot, Label: "Capture page", Params: Params{"filename": "page-{iteration}.png"}},
				{ID: "has-next", Type: StepConditional, Label: "Next exists", Params: Params{"selector": "a.next"}, Steps: []Step{
					{ID: "next", Type: StepClick, Label: "Next page", Params: Params{"selector": "a.next"}},
				}},
			}},
		},
	},
}

var templateIndex = func() map[string]int {
	idx := make(map[string]int, len(templates))
	for i, t := range templates {
		idx[t.ID] = i
	}
	return idx
}()

// Templates returns copies of every built-in template, ordered by name.
func Templates() []Workflow {
	out := make([]Workflow, len(templates))
	for i, t := range templates {
		out[i] = t.Clone()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Template returns a copy of the template with id.
func Template(id string) (Workflow, bool) {
	i, ok := templateIndex[id]
	if !ok {
		return Workflow{}, false
	}
	return templates[i].Clone(), true
}

// IsTemplate reports whether id names a built-in template.
func IsTemplate(id string) bool {
	_, ok := templateIndex[id]
	return ok
}
