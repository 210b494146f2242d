// Package data reads JSON and YAML files for the harness, including suite files whose contents
// are expanded with constants and parameter sets.
package data
