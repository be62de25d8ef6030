// Package templates renders follow-up and booking emails with the Liquid
// template language. Content itself comes from configuration or the
// classifier; this package only fills campaign fields into it.
package templates

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"sync"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/osteele/liquid"
)

// Default bodies per step type, used when a sequence step has no body
// template of its own.
var defaultStepBodies = map[domain.MessageType]string{
	domain.MessageFollowUp1: `Hi {{ first_name | default: "there" }},

Just floating this back to the top of your inbox in case it got buried. Happy to share more detail on how we could help {{ company_name | default: "your team" }}.`,
	domain.MessageFollowUp2: `Hi {{ first_name | default: "there" }},

Wanted to check in once more. If the timing is off, just let me know and I will stop reaching out.`,
	domain.MessageFollowUpFinal: `Hi {{ first_name | default: "there" }},

I have not heard back, so I will assume now is not the right time and close the loop here. If anything changes, a reply to this email reaches me directly.`,
}

// DefaultBookingBody is sent for send_calendar_link when no body template is
// configured. The classifier's response text, when present, replaces the
// greeting.
const DefaultBookingBody = `{% if response != "" %}{{ response }}{% else %}Hi {{ first_name | default: "there" }},

Great to hear from you.{% endif %}

You can pick a time that works for you here: {{ booking_url }}`

// DefaultBookingSubject threads the booking email onto the original subject.
const DefaultBookingSubject = "Re: {{ subject }}"

// Renderer handles Liquid template rendering with caching.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer with the custom filters registered.
func NewRenderer() *Renderer {
	r := &Renderer{engine: liquid.NewEngine()}
	r.registerFilters()
	return r
}

func (r *Renderer) registerFilters() {
	// {{ first_name | default: "there" }} also treats empty strings as missing.
	r.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})
	r.engine.RegisterFilter("urlencode", func(s string) string { return url.QueryEscape(s) })
	r.engine.RegisterFilter("escape", func(s string) string { return html.EscapeString(s) })
}

// Parse compiles a template string and returns any syntax error.
func (r *Renderer) Parse(tpl string) error {
	if _, err := r.engine.ParseString(tpl); err != nil {
		return err
	}
	return nil
}

// Render processes tpl with vars. A non-empty cacheKey reuses the compiled
// template across calls.
func (r *Renderer) Render(cacheKey, tpl string, vars map[string]interface{}) (string, error) {
	if cacheKey != "" {
		if cached, ok := r.cache.Load(cacheKey); ok {
			return renderCompiled(cached.(*liquid.Template), vars)
		}
	}
	compiled, err := r.engine.ParseString(tpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	if cacheKey != "" {
		r.cache.Store(cacheKey, compiled)
	}
	return renderCompiled(compiled, vars)
}

func renderCompiled(t *liquid.Template, vars map[string]interface{}) (string, error) {
	out, err := t.RenderString(vars)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// Vars exposes campaign fields to templates.
func Vars(c *domain.Campaign) map[string]interface{} {
	return map[string]interface{}{
		"first_name":   c.FirstName(),
		"contact_name": c.ContactName,
		"company_name": c.CompanyName,
		"email":        c.RecipientEmail,
		"subject":      c.Subject,
	}
}

// RenderStep renders the subject and body of a follow-up step.
func (r *Renderer) RenderStep(step domain.SequenceStep, c *domain.Campaign) (subject, body string, err error) {
	vars := Vars(c)
	subject, err = r.Render(step.SubjectTemplate, step.SubjectTemplate, vars)
	if err != nil {
		return "", "", fmt.Errorf("%s subject: %w", step.StepType, err)
	}
	bodyTpl := step.BodyTemplate
	if bodyTpl == "" {
		bodyTpl = defaultStepBodies[step.StepType]
	}
	body, err = r.Render(bodyTpl, bodyTpl, vars)
	if err != nil {
		return "", "", fmt.Errorf("%s body: %w", step.StepType, err)
	}
	return strings.TrimSpace(subject), strings.TrimSpace(body), nil
}

// Booking configures the scheduling email.
type Booking struct {
	URL             string
	SubjectTemplate string
	BodyTemplate    string
}

// RenderBooking renders the scheduling email. The booking URL is always part
// of the output, even when a custom template forgets it.
func (r *Renderer) RenderBooking(b Booking, c *domain.Campaign, response string) (subject, body string, err error) {
	vars := Vars(c)
	vars["booking_url"] = b.URL
	vars["response"] = strings.TrimSpace(response)

	subjectTpl := b.SubjectTemplate
	if subjectTpl == "" {
		subjectTpl = DefaultBookingSubject
	}
	bodyTpl := b.BodyTemplate
	if bodyTpl == "" {
		bodyTpl = DefaultBookingBody
	}

	if subject, err = r.Render(subjectTpl, subjectTpl, vars); err != nil {
		return "", "", err
	}
	if body, err = r.Render(bodyTpl, bodyTpl, vars); err != nil {
		return "", "", err
	}
	body = strings.TrimSpace(body)
	if b.URL != "" && !strings.Contains(body, b.URL) {
		body += "\n\n" + b.URL
	}
	return strings.TrimSpace(subject), body, nil
}

// ValidateSequence checks that every template in seq compiles.
func (r *Renderer) ValidateSequence(seq *domain.FollowupSequence) error {
	for i, s := range seq.Steps {
		if err := r.Parse(s.SubjectTemplate); err != nil {
			return fmt.Errorf("%w: step %d subject: %v", domain.ErrInvalidSequence, i, err)
		}
		if s.BodyTemplate != "" {
			if err := r.Parse(s.BodyTemplate); err != nil {
				return fmt.Errorf("%w: step %d body: %v", domain.ErrInvalidSequence, i, err)
			}
		}
	}
	return nil
}
