// Package topic provides the event-name type used by the event bus.
//
// # Name Format
//
// Event names use colon-separated segments. The leading segments act as a
// namespace so that independent producers do not collide:
//
//	window:open
//	user:login
//	app:calculator:message
//	system:broadcast
//
// Names carry no wildcard semantics. The bus delivers on exact names only;
// pattern matching belongs to the router.
//
// # Namespaces
//
//	ns := topic.Name("app").Child("calculator")   // app:calculator
//	full := ns.Qualify("ready")                   // app:calculator:ready
//	full.HasPrefix(ns)                            // true
package topic
