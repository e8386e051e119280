package wizard

import "github.com/charmbracelet/huh"

// SelectOption is one entry of a single-choice prompt.
type SelectOption struct {
	Label string
	Value string
}

// InputConfig configures a free-text prompt.
type InputConfig struct {
	Title       string
	Placeholder string
	Validate    func(string) error
}

// ConfirmConfig configures a yes/no prompt.
type ConfirmConfig struct {
	Title       string
	Description string
	Default     bool
}

// Prompter abstracts the interactive prompts so the wizard can be driven
// by a mock in tests.
type Prompter interface {
	Select(title string, options []SelectOption) (string, error)
	Input(cfg InputConfig) (string, error)
	Confirm(cfg ConfirmConfig) (bool, error)
}

// Huh implements Prompter using charmbracelet/huh forms.
type Huh struct{}

// Select runs a single-choice form and returns the chosen value.
func (h *Huh) Select(title string, options []SelectOption) (string, error) {
	huhOptions := make([]huh.Option[string], len(options))
	for i, opt := range options {
		huhOptions[i] = huh.NewOption(opt.Label, opt.Value)
	}

	var value string

	sel := huh.NewSelect[string]().
		Title(title).
		Options(huhOptions...).
		Value(&value)

	err := huh.NewForm(huh.NewGroup(sel)).Run()

	return value, err
}

// Input runs a free-text form and returns the entered value.
func (h *Huh) Input(cfg InputConfig) (string, error) {
	var value string

	input := huh.NewInput().
		Title(cfg.Title).
		Value(&value)

	if cfg.Placeholder != "" {
		input.Placeholder(cfg.Placeholder)
	}

	if cfg.Validate != nil {
		input.Validate(cfg.Validate)
	}

	err := huh.NewForm(huh.NewGroup(input)).Run()

	return value, err
}

// Confirm runs a yes/no form and returns the answer.
func (h *Huh) Confirm(cfg ConfirmConfig) (bool, error) {
	value := cfg.Default

	confirm := huh.NewConfirm().
		Title(cfg.Title).
		Value(&value)

	if cfg.Description != "" {
		confirm.Description(cfg.Description)
	}

	err := huh.NewForm(huh.NewGroup(confirm)).Run()

	return value, err
}
