package wizard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/velide/middleware-setup/internal/confgen"
	"github.com/velide/middleware-setup/internal/logger"
)

var (
	errNotConfirmed  = errors.New("setup was not confirmed")
	errEmptyFolder   = errors.New("folder to watch must not be empty")
	errEmptyHost     = errors.New("database host must not be empty")
	errEmptyDatabase = errors.New("database path must not be empty")
	errInvalidPort   = errors.New("port must be between 1 and 65535")
)

// defaultFarmaxPort is Firebird's standard port.
const defaultFarmaxPort = 3050

// Context accumulates answers while the wizard runs. The finished result
// is exported as an immutable confgen.Request; nothing downstream reads
// wizard state directly.
type Context struct {
	Target        confgen.TargetSystem
	FolderToWatch string
	Farmax        confgen.FarmaxConnection
	Confirmed     bool

	prompter Prompter
}

// Step is one screen of the setup flow. Steps run in order; a step whose
// ShouldSkip returns true is passed over, and Validate gates progression
// to the next one.
type Step struct {
	// Name identifies the step in logs.
	Name string
	// ShouldSkip reports whether the step is irrelevant for the current answers.
	ShouldSkip func(*Context) bool
	// Run collects the step's answers interactively.
	Run func(*Context) error
	// Validate checks the collected answers before moving on.
	Validate func(*Context) error
}

// Steps returns the ordered setup flow.
func Steps() []Step {
	return []Step{
		{
			Name:       "target-system",
			ShouldSkip: func(*Context) bool { return false },
			Run:        runTargetStep,
			Validate: func(c *Context) error {
				_, err := confgen.ParseTargetSystem(string(c.Target))
				return err
			},
		},
		{
			Name:       "folder-to-watch",
			ShouldSkip: func(c *Context) bool { return !c.Target.NeedsFolderWatch() },
			Run:        runFolderStep,
			Validate: func(c *Context) error {
				return validateFolder(c.FolderToWatch)
			},
		},
		{
			Name:       "farmax-connection",
			ShouldSkip: func(c *Context) bool { return !c.Target.NeedsConnection() },
			Run:        runFarmaxStep,
			Validate: func(c *Context) error {
				return validateConnection(&c.Farmax)
			},
		},
		{
			Name:       "confirmation",
			ShouldSkip: func(*Context) bool { return false },
			Run:        runConfirmStep,
			Validate: func(c *Context) error {
				if !c.Confirmed {
					return errNotConfirmed
				}
				return nil
			},
		},
	}
}

// Run walks the steps with the provided prompter and returns the collected
// configuration parameters as an immutable request.
func Run(ctx context.Context, prompter Prompter) (confgen.Request, error) {
	wizardContext := &Context{prompter: prompter}

	for _, step := range Steps() {
		if step.ShouldSkip(wizardContext) {
			logger.DebugKV(ctx, "Skipping setup step", "step", step.Name)
			continue
		}

		logger.DebugKV(ctx, "Running setup step", "step", step.Name)

		if err := step.Run(wizardContext); err != nil {
			return confgen.Request{}, fmt.Errorf("step %s: %w", step.Name, err)
		}

		if err := step.Validate(wizardContext); err != nil {
			return confgen.Request{}, fmt.Errorf("step %s: %w", step.Name, err)
		}
	}

	return wizardContext.request(), nil
}

// request freezes the collected answers into the value handed to confgen.
func (c *Context) request() confgen.Request {
	req := confgen.Request{
		Target: c.Target,
	}

	if c.Target.NeedsFolderWatch() {
		req.FolderToWatch = c.FolderToWatch
	}

	if c.Target.NeedsConnection() {
		connection := c.Farmax
		req.Farmax = &connection
	}

	return req
}

func runTargetStep(c *Context) error {
	value, err := c.prompter.Select("Which system should Velide integrate with?", []SelectOption{
		{Label: "CDS (watched folder)", Value: string(confgen.TargetCDS)},
		{Label: "Farmax (direct database)", Value: string(confgen.TargetFarmax)},
	})
	if err != nil {
		return err
	}

	target, err := confgen.ParseTargetSystem(value)
	if err != nil {
		return err
	}

	c.Target = target

	return nil
}

func runFolderStep(c *Context) error {
	value, err := c.prompter.Input(InputConfig{
		Title:       "Folder the middleware should watch for CDS files",
		Placeholder: `C:\CDS\export`,
		Validate:    validateFolder,
	})
	if err != nil {
		return err
	}

	c.FolderToWatch = strings.TrimSpace(value)

	return nil
}

func runFarmaxStep(c *Context) error {
	host, err := c.prompter.Input(InputConfig{
		Title:    "Farmax database host",
		Validate: notEmpty(errEmptyHost),
	})
	if err != nil {
		return err
	}

	portValue, err := c.prompter.Input(InputConfig{
		Title:       "Farmax database port",
		Placeholder: strconv.Itoa(defaultFarmaxPort),
		Validate:    validatePortInput,
	})
	if err != nil {
		return err
	}

	database, err := c.prompter.Input(InputConfig{
		Title:    "Path to the Farmax database file",
		Validate: notEmpty(errEmptyDatabase),
	})
	if err != nil {
		return err
	}

	username, err := c.prompter.Input(InputConfig{Title: "Database username"})
	if err != nil {
		return err
	}

	password, err := c.prompter.Input(InputConfig{Title: "Database password"})
	if err != nil {
		return err
	}

	port := defaultFarmaxPort
	if trimmed := strings.TrimSpace(portValue); trimmed != "" {
		port, err = strconv.Atoi(trimmed)
		if err != nil {
			return fmt.Errorf("%q: %w", portValue, errInvalidPort)
		}
	}

	c.Farmax = confgen.FarmaxConnection{
		Host:     strings.TrimSpace(host),
		Port:     port,
		Database: strings.TrimSpace(database),
		Username: strings.TrimSpace(username),
		Password: password,
	}

	return nil
}

func runConfirmStep(c *Context) error {
	confirmed, err := c.prompter.Confirm(ConfirmConfig{
		Title:       "Apply this configuration?",
		Description: c.summary(),
		Default:     true,
	})
	if err != nil {
		return err
	}

	c.Confirmed = confirmed

	return nil
}

// summary renders the collected answers for the confirmation screen.
func (c *Context) summary() string {
	var builder strings.Builder

	builder.WriteString("Target system: ")
	builder.WriteString(string(c.Target))

	if c.Target.NeedsFolderWatch() {
		builder.WriteString("\nWatched folder: ")
		builder.WriteString(c.FolderToWatch)
	}

	if c.Target.NeedsConnection() {
		builder.WriteString("\nDatabase: ")
		builder.WriteString(c.Farmax.Host)
		builder.WriteString(":")
		builder.WriteString(strconv.Itoa(c.Farmax.Port))
		builder.WriteString("/")
		builder.WriteString(c.Farmax.Database)
	}

	return builder.String()
}

func validateFolder(value string) error {
	if strings.TrimSpace(value) == "" {
		return errEmptyFolder
	}

	return nil
}

func validateConnection(connection *confgen.FarmaxConnection) error {
	if strings.TrimSpace(connection.Host) == "" {
		return errEmptyHost
	}

	if connection.Port < 1 || connection.Port > 65535 {
		return errInvalidPort
	}

	if strings.TrimSpace(connection.Database) == "" {
		return errEmptyDatabase
	}

	return nil
}

func validatePortInput(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}

	port, err := strconv.Atoi(trimmed)
	if err != nil || port < 1 || port > 65535 {
		return errInvalidPort
	}

	return nil
}

// notEmpty builds an input validator returning the given sentinel on blanks.
func notEmpty(sentinel error) func(string) error {
	return func(value string) error {
		if strings.TrimSpace(value) == "" {
			return sentinel
		}

		return nil
	}
}
