// Package config loads rolesync configuration from environment variables.
//
// # Overview
//
// Every setting has a default except the authority URL. LoadConfig reads the
// environment and validates the result before returning it.
//
// Authority settings:
//
//	ROLESYNC_AUTHORITY_URL="https://lms.example.com/api/v1"
//	ROLESYNC_AUTHORITY_TOKEN="..."
//	ROLESYNC_AUTHORITY_TIMEOUT="15s"
//	ROLESYNC_AUTHORITY_RETRY_MAX="3"
//
// Sync settings:
//
//	ROLESYNC_PERMISSION_LIMIT="500"
//	ROLESYNC_PERMISSION_ACTIVE_ONLY="true"
//	ROLESYNC_PAGE_SIZE="10"
//	ROLESYNC_REFRESH_CONCURRENCY="8"
//	ROLESYNC_REFRESH_SCHEDULE="@every 5m"
//	ROLESYNC_RESOLVER_CACHE_SIZE="1024"
//	ROLESYNC_RESOLVER_CACHE_TTL="5m"
//	ROLESYNC_LABELS_FILE="/etc/rolesync/labels.yaml"
//
// Notification settings:
//
//	ROLESYNC_NOTIFY_TITLE="..."
//	ROLESYNC_NOTIFY_MESSAGE="..."
//	ROLESYNC_NOTIFY_AUDIENCE="supervisor,trainer,employee"
//	ROLESYNC_REDIS_URL="redis://localhost:6379"
//	ROLESYNC_REDIS_CHANNEL="rolesync:permissions"
//
// Observability settings:
//
//	ROLESYNC_LOG_LEVEL="info"
//	ROLESYNC_METRICS_ENABLED="true"
//	ROLESYNC_METRICS_ADDR=":9090"
//	ROLESYNC_OTEL_ENABLED="false"
//	ROLESYNC_OTEL_ENDPOINT="localhost:4317"
//
// LoadEnvFile exports the variables of a dotenv file first, so a local .env can stand in
// for the real environment.
//
// # Resource Labels
//
// LoadLabels reads display names for permission resource types from YAML, and
// WatchLabels reloads them whenever the file changes:
//
//	resources:
//	  course: Cursos
//	  training_plan: Planes de Formación
//
// # Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	engine := rbac.NewEngine(client, rbac.WithPermissionQuery(cfg.PermissionQuery()))
package config
