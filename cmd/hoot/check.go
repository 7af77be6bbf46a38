package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const checkTimeout = 30 * time.Second

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the credentials of every configured provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			reg, err := a.registry(ctx)
			if err != nil {
				return err
			}
			providers := reg.Providers()
			if len(providers) == 0 {
				return errors.New("no provider is configured")
			}

			w := cmd.OutOrStdout()
			var failed []string
			for _, p := range providers {
				pctx, pcancel := context.WithTimeout(ctx, checkTimeout)
				ok := p.CheckValid(pctx)
				pcancel()
				if ok {
					fmt.Fprintf(w, "%s %s\n", color.GreenString("ok"), p.Name())
					continue
				}
				fmt.Fprintf(w, "%s %s\n", color.RedString("failed"), p.Name())
				failed = append(failed, p.Name().String())
			}
			if len(failed) > 0 {
				return fmt.Errorf("check failed for %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}
}

func newSchemaCheckCmd(a *app) *cobra.Command {
	var model, schemaFile, task string
	cmd := &cobra.Command{
		Use:   "schema-check",
		Short: "Check whether a model accepts a schema for native structured generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			schema, err := readSchema(schemaFile)
			if err != nil {
				return err
			}
			reg, err := a.registry(ctx)
			if err != nil {
				return err
			}
			p, resolved, err := reg.ForModel(model)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if p.IsSchemaSupportedForStructuredGeneration(ctx, task, resolved, schema) {
				fmt.Fprintf(w, "%s %s supports the schema\n", color.GreenString("yes"), resolved)
				return nil
			}
			fmt.Fprintf(w, "%s %s does not support the schema\n", color.RedString("no"), resolved)
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "model identifier or alias")
	cmd.Flags().StringVar(&schemaFile, "schema", "", "JSON or YAML file with the JSON schema")
	cmd.Flags().StringVar(&task, "task", "schema_check", "task name used to name the structured output")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

// readSchema loads a JSON schema from a .json, .yaml or .yml file.
func readSchema(name string) (map[string]any, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	var schema map[string]any
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &schema)
	default:
		err = json.Unmarshal(data, &schema)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing schema %s: %w", name, err)
	}
	if len(schema) == 0 {
		return nil, fmt.Errorf("schema %s is empty", name)
	}
	return schema, nil
}
