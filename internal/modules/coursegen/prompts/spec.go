package prompts

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

type Spec struct {
	Name       Name
	Version    int
	SchemaName string
	Schema     func() map[string]any
	System     string
	User       string
	Validators []Validator

	system *template.Template
	user   *template.Template
}

// Built is a rendered prompt ready for the structured-output call.
type Built struct {
	Name       Name
	Version    int
	SchemaName string
	Schema     map[string]any
	System     string
	User       string
}

var (
	registryMu sync.RWMutex
	registry   = map[Name]*Spec{}
	registerMu sync.Once
)

// RegisterSpec parses and stores s. It panics on a malformed template, which
// only happens at init.
func RegisterSpec(s Spec) {
	s.system = template.Must(template.New(string(s.Name) + ".system").Option("missingkey=zero").Parse(strings.TrimSpace(s.System)))
	s.user = template.Must(template.New(string(s.Name) + ".user").Option("missingkey=zero").Parse(strings.TrimSpace(s.User)))
	registryMu.Lock()
	registry[s.Name] = &s
	registryMu.Unlock()
}

func ensureRegistered() {
	registerMu.Do(RegisterAll)
}

func Get(name Name) (*Spec, bool) {
	ensureRegistered()
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[name]
	return s, ok
}

// Build validates in and renders the named prompt.
func Build(name Name, in Input) (Built, error) {
	s, ok := Get(name)
	if !ok {
		return Built{}, fmt.Errorf("prompt %q not registered", name)
	}
	for _, v := range s.Validators {
		if err := v(in); err != nil {
			return Built{}, fmt.Errorf("prompt %s: %w", name, err)
		}
	}
	var sys, usr bytes.Buffer
	if err := s.system.Execute(&sys, in); err != nil {
		return Built{}, fmt.Errorf("prompt %s system: %w", name, err)
	}
	if err := s.user.Execute(&usr, in); err != nil {
		return Built{}, fmt.Errorf("prompt %s user: %w", name, err)
	}
	user := usr.String()
	if note := strings.TrimSpace(in.FixNote); note != "" {
		user += "\n\nYour previous answer was rejected: " + note + "\nReturn a corrected answer that satisfies every rule."
	}
	return Built{
		Name:       s.Name,
		Version:    s.Version,
		SchemaName: s.SchemaName,
		Schema:     s.Schema(),
		System:     sys.String(),
		User:       user,
	}, nil
}
