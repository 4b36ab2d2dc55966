package config

import "strings"

// Environment identifies the runtime environment where orderlens operates.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// Environment variables overriding file values.
const (
	EnvRPCURL       = "ORDERLENS_RPC_URL"
	EnvPriceURL     = "ORDERLENS_PRICE_URL"
	EnvMintPriceURL = "ORDERLENS_MINT_PRICE_URL"
)

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
