// Package config loads the billing service configuration from environment
// variables.
//
// Every setting has a default except the database URL and the API tokens.
// LoadConfig validates the result and fails fast on anything unusable.
//
// Server:
//
//	MENUBOARD_HOST="0.0.0.0"
//	MENUBOARD_PORT="8080"
//	MENUBOARD_HEALTH_PORT="9090"
//	MENUBOARD_SHUTDOWN_TIMEOUT="30s"
//
// Storage:
//
//	MENUBOARD_POSTGRES_URL="postgres://localhost/menuboard?sslmode=disable"
//	MENUBOARD_POSTGRES_REPLICA_URLS="postgres://replica1/menuboard,postgres://replica2/menuboard"
//	MENUBOARD_REDIS_URL="redis://localhost:6379/0"   # optional; enables distributed run locks
//
// Subscriptions:
//
//	MENUBOARD_PRICING_FILE="/etc/menuboard/pricing.yaml"
//	MENUBOARD_RENEWAL_LOOKAHEAD="24h"
//	MENUBOARD_RENEWAL_SCHEDULE="0 2 * * *"
//	MENUBOARD_RENEWAL_CONCURRENCY="8"
//	MENUBOARD_TENANT_TIMEOUT="30s"
//	MENUBOARD_EXPIRING_SOON_DAYS="7"
//	MENUBOARD_ACCESS_CACHE_TTL="5s"
//	MENUBOARD_BLOCKED_URL="/subscription-expired"
//
// API:
//
//	MENUBOARD_API_TOKENS="admin-ui:super_admin:<token>,session:service:<token>"
//	MENUBOARD_RATE_LIMIT_ENABLED="true"
//	MENUBOARD_RATE_LIMIT_REQUESTS="600"
//	MENUBOARD_RATE_LIMIT_WINDOW="1m"
//
// Observability:
//
//	MENUBOARD_LOG_LEVEL="info"
//	MENUBOARD_LOG_FORMAT="json"
//	MENUBOARD_OTEL_ENABLED="false"
//	MENUBOARD_OTEL_ENDPOINT="localhost:4317"
//	MENUBOARD_OTEL_SAMPLE_RATIO="1.0"
package config
