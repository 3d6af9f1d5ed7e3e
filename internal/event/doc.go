// Package event provides the publish/subscribe bus every shell component talks
// through: the window manager, desktop, notification center, system tray and
// third-party apps.
//
// # Architecture
//
//	                    ┌──────────────────────────────────────────┐
//	                    │                  Bus                      │
//	                    │  - exact-name registry                    │
//	                    │  - namespaced views                       │
//	                    │  - synchronous, ordered delivery          │
//	                    └──────────────────────────────────────────┘
//	                                      │
//	          ┌───────────────────────────┼───────────────────────────┐
//	          ▼                           ▼                           ▼
//	┌─────────────────┐         ┌─────────────────┐         ┌─────────────────┐
//	│    Registry     │         │     Filter      │         │   Subscriber    │
//	│  - per-name     │         │  - source       │         │  - grouped      │
//	│    listener     │         │  - metadata     │         │    cleanup      │
//	│    lists        │         │  - payload      │         │                 │
//	└─────────────────┘         └─────────────────┘         └─────────────────┘
//
// # Event Names
//
// Names are colon separated:
//
//	window:open        - a window was opened
//	desktop:wallpaper  - the wallpaper changed
//	app:notes:saved    - app-scoped event from the "notes" app
//
// The bus matches names exactly. Pattern matching belongs to the router.
//
// # Namespaces
//
// Namespace returns a view of the bus that shares its listeners but prefixes
// every name with "ns:". Views nest, so bus.Namespace("app").Namespace("notes")
// emits and listens on "app:notes:*" names.
//
// # Delivery
//
// Emit runs every listener registered for the name at the moment of the call,
// in registration order, on the caller's goroutine. A handler that fails or
// panics is recorded in its Result and never stops its siblings. Once
// listeners are removed before their handler runs, so a re-entrant emit from
// inside the handler does not deliver to them twice.
package event
