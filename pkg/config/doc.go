// Package config defines the explicit configuration struct for a
// relay-mesos run, its defaults, YAML file loading and validation.
package config
