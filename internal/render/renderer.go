package render

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
)

// Renderer turns an intent key plus context fields into user-facing text.
// The identification workflow never writes prose itself; production wires an
// LLM-backed implementation here, with TemplateRenderer as the deterministic
// fallback.
type Renderer interface {
	Render(ctx context.Context, intent string, data map[string]any) (string, error)
}

// defaultTemplates are the static Spanish texts per intent. missingkey=zero:
// handlers may omit optional fields.
var defaultTemplates = map[string]string{
	"welcome_menu": "¡Hola! Soy el asistente de {{if .pharmacy_name}}{{.pharmacy_name}}{{else}}la farmacia{{end}}. " +
		"¿En qué te puedo ayudar?\n1. Ya soy cliente\n2. Quiero hacer una consulta",
	"request_identifier":  "Para continuar necesito identificarte. ¿Me pasás tu DNI o número de cliente?",
	"invalid_identifier":  "No pude reconocer ese número. Probá con tu DNI (sin puntos) o tu número de cliente.",
	"identifier_not_found": "No encontré ese número en nuestro sistema. ¿Podés verificarlo y mandarlo de nuevo?",
	"request_name":        "¡Gracias! Para confirmar, ¿me decís tu nombre y apellido?",
	"name_mismatch":       "Ese nombre no coincide con el que tenemos registrado. ¿Podés escribir tu nombre completo como figura en tu documento?",
	"account_selection": "Encontré más de una cuenta asociada a este teléfono. ¿Con cuál querés continuar?\n" +
		"{{range $i, $n := .options}}{{inc $i}}. {{$n}}\n{{end}}{{.new_option}}. Otra persona",
	"own_or_other":              "Este teléfono está asociado a {{.name}}. ¿La consulta es para esa cuenta o para otra persona?",
	"identification_escalation": "No pude verificar tu identidad. Un operador se va a comunicar con vos a la brevedad.",
	"identified_greeting":       "¡Listo{{if .name}}, {{.name}}{{end}}! Ya verifiqué tu identidad. ¿En qué te puedo ayudar?",
	"goodbye":                   "¡Gracias por escribirnos! Cualquier cosa, acá estamos.",
	"technical_error":           "Tuvimos un problema técnico procesando tu mensaje. Probá de nuevo en unos minutos.",
}

// TemplateRenderer renders replies from small text templates.
type TemplateRenderer struct {
	templates map[string]*template.Template
}

// NewTemplateRenderer compiles the default intent templates plus overrides.
func NewTemplateRenderer(overrides map[string]string) (*TemplateRenderer, error) {
	funcs := template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}

	merged := make(map[string]string, len(defaultTemplates))
	for intent, text := range defaultTemplates {
		merged[intent] = text
	}
	for intent, text := range overrides {
		merged[intent] = text
	}

	compiled := make(map[string]*template.Template, len(merged))
	for intent, text := range merged {
		t, err := template.New(intent).Funcs(funcs).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("render: parse %s: %w", intent, err)
		}
		compiled[intent] = t
	}
	return &TemplateRenderer{templates: compiled}, nil
}

// Render executes the intent's template with the supplied data.
func (r *TemplateRenderer) Render(ctx context.Context, intent string, data map[string]any) (string, error) {
	t, ok := r.templates[intent]
	if !ok {
		return "", fmt.Errorf("render: unknown intent %q", intent)
	}
	if data == nil {
		data = map[string]any{}
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render: execute %s: %w", intent, err)
	}
	return buf.String(), nil
}
