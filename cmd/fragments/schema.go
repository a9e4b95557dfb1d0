package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/fragments/pkg/config"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema [output-file]",
	Short: "Write the JSON schema of the configuration file",
	Long: `Write a JSON schema describing the configuration file, for editor
completion and validation. Defaults to config.schema.json; use "-" for
standard output.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true, // Inline all definitions for simplicity
		FieldNameTag:              "yaml",
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Title = "Fragments Configuration"
	schema.Description = "Configuration schema for the fragments server"

	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	outputFile := "config.schema.json"
	if len(args) == 1 {
		outputFile = args[0]
	}

	if outputFile == "-" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), string(schemaJSON))
		return err
	}

	if err := os.WriteFile(outputFile, schemaJSON, 0644); err != nil {
		return fmt.Errorf("failed to write schema file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "JSON schema written to %s\n", outputFile)
	return nil
}
