/*
Package ports defines the driven ports (interfaces) of the session core.

These interfaces decouple the locking and ledger logic from concrete
collaborators, so the same core runs against the in-memory store, the
optional Redis store, the simulated gateway or a real one.

# Key Interfaces

  - SessionStore: persists and loads session documents.
  - PaymentGateway: creates payment links and reports their status.
  - Catalog: resolves menu item names to unit prices.
*/
package ports
