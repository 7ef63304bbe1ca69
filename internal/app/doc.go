// Package app composes the yield ledger into a running application.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # wiring and lifecycle
//	├── domain/vault/       # ledger data model, errors, events
//	├── services/vault/     # ledger engine, service facade, auditor, sinks
//	├── storage/            # StateStore/JournalStore and their backends
//	│   ├── memory/
//	│   ├── sqlite/
//	│   └── postgres/
//	├── httpapi/            # REST and websocket surface
//	├── metrics/            # Prometheus collectors
//	├── system/             # service lifecycle manager
//	└── runtime/            # process runner (HTTP server, signals)
//
// # Dependency Direction
//
//	cmd/vaultd
//	      │
//	      ▼
//	internal/app/runtime ──► internal/app (composition)
//	                               │
//	                               ├──► services/vault ──► domain/vault
//	                               ├──► storage/*
//	                               ├──► internal/chain (Neo RPC)
//	                               └──► internal/engine/events
package app
