package main

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/discord-agent/orchestrator/internal/config"
	"github.com/discord-agent/orchestrator/internal/orchestrator"
)

// discoverPersonas scans cfg.PersonaDirectory for persona text files (one
// persona per ".md" or ".txt" file, named after the persona) and returns
// the persona names found. Persona file loading is an external collaborator
// per spec: the core only ever sees persona names, never file contents.
func discoverPersonas(cfg config.PersonaConfig) ([]string, error) {
	entries, err := os.ReadDir(cfg.PersonaDirectory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".md" && ext != ".txt" {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ext))
	}
	return names, nil
}

// buildPersonaSelector scans cfg.PersonaDirectory (if persona selection is
// enabled) and builds the static selector the session Handler uses to set
// current_persona on first entry into Plan.
func buildPersonaSelector(cfg config.PersonaConfig) (orchestrator.PersonaSelector, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	available, err := discoverPersonas(cfg)
	if err != nil {
		return nil, err
	}
	return orchestrator.StaticPersonaSelector{
		Available:       available,
		Default:         cfg.DefaultPersona,
		RandomSelection: cfg.RandomSelection,
	}, nil
}

// dynamicPersonaSelector lets config.Watcher swap in a freshly-scanned
// PersonaSelector on persona_directory changes without rebuilding the
// session.Handler that already holds a reference to it.
type dynamicPersonaSelector struct {
	mu      sync.RWMutex
	current orchestrator.PersonaSelector
}

func (d *dynamicPersonaSelector) Select() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.current == nil {
		return ""
	}
	return d.current.Select()
}

// update rebuilds the underlying selector from cfg. On a scan failure it
// returns the error and keeps the previous selector, so a transient
// directory error doesn't take persona selection down.
func (d *dynamicPersonaSelector) update(cfg config.PersonaConfig) error {
	sel, err := buildPersonaSelector(cfg)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.current = sel
	d.mu.Unlock()
	return nil
}
