// Package app is the composition layer. It wires stores, services and
// background workers into one lifecycle-managed application; business logic
// lives in internal/services/, persistence in internal/storage/.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── httpapi/            # HTTP handlers, routing, middleware
//	├── system/             # Lifecycle manager and Service interface
//	└── metrics/            # Prometheus registry and instrumentation
//
// # Adding a Domain Capability
//
//  1. Create domain models in internal/domain/<name>/
//  2. Add the store interface to internal/storage/interfaces.go
//  3. Implement it in internal/storage/memory/ and internal/storage/postgres/
//  4. Create the service in internal/services/<name>/service.go
//  5. Wire the service in internal/app/application.go
//  6. Add HTTP handlers in internal/app/httpapi/
package app
