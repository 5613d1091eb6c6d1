package config

import (
	"fmt"
	"strings"
)

// Environment is the deployment environment the server runs in.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// ParseEnvironment accepts the full names and the dev, test and prod
// aliases, case-insensitively.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "development", "dev":
		return EnvDevelopment, nil
	case "testing", "test":
		return EnvTesting, nil
	case "staging", "stage":
		return EnvStaging, nil
	case "production", "prod":
		return EnvProduction, nil
	default:
		return "", fmt.Errorf("unknown environment %q (want development, testing, staging or production)", s)
	}
}

// IsProduction reports whether e is the production environment.
func (e Environment) IsProduction() bool {
	return e == EnvProduction
}

// String returns the canonical name.
func (e Environment) String() string {
	return string(e)
}
