package alert

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

// Template is the raw subject/body text for one channel.
type Template struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type compiled struct {
	subject *template.Template
	body    *template.Template
}

// Templates maps each channel to its text.
type Templates map[Channel]Template

// DefaultTemplates returns the built-in templates.
func DefaultTemplates() (Templates, error) {
	return parseTemplates(defaultTemplates)
}

// LoadTemplates returns the defaults overridden by any channels present in the YAML file at path.
// An empty path yields the defaults.
func LoadTemplates(path string) (Templates, error) {
	tmpls, err := DefaultTemplates()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return tmpls, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading alert templates %s", path)
	}
	overrides, err := parseTemplates(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing alert templates %s", path)
	}
	for ch, t := range overrides {
		tmpls[ch] = t
	}
	return tmpls, nil
}

func parseTemplates(buf []byte) (Templates, error) {
	var raw map[string]Template
	if err := yaml.Unmarshal(buf, &raw); err != nil {
		return nil, err
	}
	out := make(Templates, len(raw))
	for name, t := range raw {
		ch := Channel(name)
		if !ch.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
		}
		out[ch] = Template{Subject: strings.TrimSpace(t.Subject), Body: strings.TrimSpace(t.Body)}
	}
	return out, nil
}

func (ts Templates) compile() (map[Channel]compiled, error) {
	out := make(map[Channel]compiled, len(ts))
	for ch, t := range ts {
		var c compiled
		var err error
		if t.Subject != "" {
			if c.subject, err = template.New(string(ch) + ".subject").Option("missingkey=error").Parse(t.Subject); err != nil {
				return nil, errors.Wrapf(err, "template %s subject", ch)
			}
		}
		if c.body, err = template.New(string(ch) + ".body").Option("missingkey=error").Parse(t.Body); err != nil {
			return nil, errors.Wrapf(err, "template %s body", ch)
		}
		out[ch] = c
	}
	return out, nil
}
