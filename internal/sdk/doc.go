// Package sdk is the event surface handed to third-party apps.
//
// A Client scopes everything an app emits or listens to under app:<id>:,
// so apps cannot collide with shell events or with each other. Cross-app
// traffic goes through SendMessage and Broadcast. Permission checks live
// here rather than in the engine: the engine trusts its callers, the
// client does not trust apps.
package sdk
