package discord

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed message.yaml
var defaultMessageYAML []byte

// messageTemplate is the DM sent with a dispensed key. The {{key}} placeholder
// is replaced with the claimed key string.
type messageTemplate struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Color       int    `yaml:"color"`
}

// loadMessageTemplate reads the template from path, or the embedded default
// when path is empty.
func loadMessageTemplate(path string) (*messageTemplate, error) {
	raw := defaultMessageYAML
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read message template: %w", err)
		}
		raw = data
	}

	var tmpl messageTemplate
	if err := yaml.Unmarshal(raw, &tmpl); err != nil {
		return nil, fmt.Errorf("parse message template: %w", err)
	}
	if tmpl.Title == "" || tmpl.Description == "" {
		return nil, fmt.Errorf("message template requires title and description")
	}
	return &tmpl, nil
}

// render produces the embed for a dispensed key.
func (t *messageTemplate) render(key string) Embed {
	return Embed{
		Title:       t.Title,
		Description: strings.ReplaceAll(t.Description, "{{key}}", key),
		Color:       t.Color,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}
