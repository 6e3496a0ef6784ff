package schema

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// AnnotationWrites marks a command that submits transactions.
const AnnotationWrites = "zephyra/writes"

type CommandSchema struct {
	Path        string          `json:"path"`
	Use         string          `json:"use"`
	Short       string          `json:"short"`
	Aliases     []string        `json:"aliases,omitempty"`
	Writes      bool            `json:"writes"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

type FlagSchema struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
	Required  bool   `json:"required,omitempty"`
}

func Build(root *cobra.Command, commandPath string) (CommandSchema, error) {
	cmd := root
	if strings.TrimSpace(commandPath) != "" {
		parts := strings.Fields(strings.TrimSpace(commandPath))
		for _, p := range parts {
			found := false
			for _, c := range cmd.Commands() {
				if c.Name() == p || contains(c.Aliases, p) {
					cmd = c
					found = true
					break
				}
			}
			if !found {
				return CommandSchema{}, fmt.Errorf("command not found: %s", commandPath)
			}
		}
	}
	return serialize(cmd), nil
}

// WritePaths walks the tree and returns the root-relative path of every
// command annotated with AnnotationWrites.
func WritePaths(root *cobra.Command) []string {
	var out []string
	var walk func(*cobra.Command)
	walk = func(cmd *cobra.Command) {
		if Writes(cmd) {
			out = append(out, relativePath(root, cmd))
		}
		for _, sub := range cmd.Commands() {
			walk(sub)
		}
	}
	walk(root)
	return out
}

func Writes(cmd *cobra.Command) bool {
	return cmd.Annotations[AnnotationWrites] == "true"
}

func relativePath(root, cmd *cobra.Command) string {
	return strings.TrimSpace(strings.TrimPrefix(cmd.CommandPath(), root.Name()))
}

func serialize(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Path:    strings.TrimSpace(cmd.CommandPath()),
		Use:     cmd.Use,
		Short:   cmd.Short,
		Aliases: cmd.Aliases,
		Writes:  Writes(cmd),
		Flags:   collectFlags(cmd),
	}

	subs := cmd.Commands()
	for _, sub := range subs {
		if sub.Hidden {
			continue
		}
		s.Subcommands = append(s.Subcommands, serialize(sub))
	}

	return s
}

func collectFlags(cmd *cobra.Command) []FlagSchema {
	items := []FlagSchema{}
	cmd.NonInheritedFlags().VisitAll(func(f *pflag.Flag) {
		item := FlagSchema{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
		}
		if req, ok := f.Annotations[cobra.BashCompOneRequiredFlag]; ok && len(req) > 0 && req[0] == "true" {
			item.Required = true
		}
		items = append(items, item)
	})
	return items
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
