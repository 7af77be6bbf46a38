package main

import (
	"fmt"
	"slices"

	"github.com/casualjim/hoot/provider"
	"github.com/casualjim/hoot/provider/anthropic"
	"github.com/casualjim/hoot/provider/bedrock"
	"github.com/casualjim/hoot/provider/fireworks"
	"github.com/casualjim/hoot/provider/google"
	"github.com/casualjim/hoot/provider/openai"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var knownModels = map[provider.Name]func() []string{
	provider.OpenAI:       openai.Models,
	provider.Anthropic:    anthropic.Models,
	provider.GoogleVertex: google.Models,
	provider.Bedrock:      bedrock.Models,
	provider.Fireworks:    fireworks.Models,
}

func newModelsCmd(a *app) *cobra.Command {
	var only string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the well known models of every provider and the configured aliases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names := provider.Names()
			if only != "" {
				name, err := provider.ParseName(only)
				if err != nil {
					return err
				}
				names = []provider.Name{name}
			}

			reg, err := a.registry(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, name := range names {
				status := color.HiBlackString("not configured")
				if _, err := reg.Get(name); err == nil {
					status = color.GreenString("configured")
				}
				fmt.Fprintf(w, "%s (%s)\n", color.CyanString(name.String()), status)
				for _, m := range knownModels[name]() {
					fmt.Fprintf(w, "  %s\n", m)
				}
			}

			if len(a.cfg.Aliases) > 0 && only == "" {
				fmt.Fprintln(w, color.CyanString("aliases"))
				aliases := make([]string, 0, len(a.cfg.Aliases))
				for alias := range a.cfg.Aliases {
					aliases = append(aliases, alias)
				}
				slices.Sort(aliases)
				for _, alias := range aliases {
					fmt.Fprintf(w, "  %s -> %s\n", alias, a.cfg.Aliases[alias])
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&only, "provider", "p", "", "only list the models of this provider")
	return cmd
}
