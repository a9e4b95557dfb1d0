package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# Fragments Configuration File
#
# Values can be overridden with FRAGMENTS_* environment variables, e.g.
# FRAGMENTS_LOGGING_LEVEL=DEBUG or FRAGMENTS_ADAPTERS_HTTP_PORT=8081.

`

// keyComments are attached above the matching key, addressed by dotted path.
var keyComments = map[string]string{
	"logging":                  "Logging: level is DEBUG, INFO, WARN or ERROR; format is text or json",
	"server":                   "Server-wide settings",
	"server.metrics":           "Prometheus endpoint (/metrics) on its own port",
	"metadata":                 "Metadata store: memory, badger or sqlite.\nOnly the section matching type is used.",
	"blob":                     "Blob store: memory, filesystem or s3.\nOnly the section matching type is used.",
	"blob.filesystem":          "compression: none, lz4, zstd or auto",
	"blob.s3":                  "Credentials fall back to the AWS default chain when omitted.\nSet endpoint for MinIO or Localstack.",
	"adapters":                 "Protocol adapters",
	"adapters.http":            "REST API",
	"adapters.http.api_url":    "Public base URL used in Location headers (defaults to the request host)",
	"adapters.http.rate_limit": "Per-client token bucket; requests_per_second 0 disables it",
	"auth":                     "API accounts for HTTP basic authentication",
	"auth.users":               "Add accounts as:\n  - email: user@example.com\n    password_hash: <output of `fragments hash-password`>",
	"gc":                       "Background removal of blobs whose metadata is gone",
}

// InitConfig writes a default configuration file to the default location.
//
// Returns the path of the written file, or an error if the file already
// exists and force is false.
func InitConfig(force bool) (string, error) {
	configPath := GetDefaultConfigPath()
	if err := InitConfigToPath(configPath, force); err != nil {
		return "", err
	}
	return configPath, nil
}

// InitConfigToPath writes a default configuration file to configPath,
// creating parent directories as needed.
func InitConfigToPath(configPath string, force bool) error {
	if !force {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg as YAML and annotates known keys.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var root yaml.Node
	if err := root.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	annotate(&root, "")

	var buf bytes.Buffer
	buf.WriteString(configHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	return buf.String(), nil
}

// annotate walks mapping nodes and sets head comments from keyComments.
func annotate(node *yaml.Node, prefix string) {
	if node.Kind != yaml.MappingNode {
		return
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]

		path := key.Value
		if prefix != "" {
			path = prefix + "." + key.Value
		}

		if comment, ok := keyComments[path]; ok {
			key.HeadComment = commentLines(comment)
		}
		annotate(value, path)
	}
}

// commentLines prefixes every line with "# ".
func commentLines(text string) string {
	var buf bytes.Buffer
	for i, line := range bytes.Split([]byte(text), []byte("\n")) {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString("# ")
		buf.Write(line)
	}
	return buf.String()
}
