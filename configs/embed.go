// Package configs embeds the configuration template written by
// `amanrag config init`.
//
// Precedence (see internal/config Load):
//  1. Defaults (config.NewConfig)
//  2. User config (~/.config/amanrag/config.yaml)
//  3. Project config (.amanrag.yaml)
//  4. Environment (AMANRAG_*), including a project .env
package configs

import _ "embed"

// ProjectConfigTemplate is written to .amanrag.yaml by `amanrag config init`.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
