// Package config loads application configuration from KARAT_* environment
// variables and the optional YAML access policy file.
//
// Environment configuration is read once at startup and validated before
// the process continues. The access policy is different: it maps route
// prefixes onto role allowlists for the guard and is hot reloaded through
// fsnotify, so access changes land without a restart. A reload that fails
// to parse keeps the previous policy in effect.
package config
