// Package app is the composition layer of the AI SaaS backend.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Wiring and lifecycle
//	├── core/service/       # Service descriptors
//	├── domain/creation/    # The Creation record
//	├── httpapi/            # Routes and handlers
//	├── metrics/            # Prometheus collectors
//	├── services/creations/ # The AI tools
//	├── storage/            # CreationStore and its implementations
//	│   ├── memory/         # In-memory store for tests
//	│   ├── sqlstore/       # Postgres and SQLite via sqlx
//	│   └── cache/          # Redis read-through for the published feed
//	└── system/             # Service manager, HTTP server, cron scheduler
//
// # Dependency Direction
//
//	cmd/aisaas/
//	      │
//	      ▼
//	internal/app/ (composition)
//	      │
//	      ├──► internal/app/services/creations
//	      │           │
//	      │           └──► infra/{gemini,huggingface,media}, internal/usage
//	      │
//	      ├──► internal/app/httpapi ──► internal/middleware ──► infra/clerk
//	      │
//	      └──► internal/platform/migrations
package app
