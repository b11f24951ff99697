// Package model defines the bridge's core domain types: the per-thread
// Session aggregate, its pending-interaction variants, usage accounting,
// and the on-disk projection used by the persistence store.
//
// These types are owned by internal/bridgesession (the session state
// machine) but are shared read-only (or via documented mutable fields) by
// internal/poststream, internal/eventinterp, internal/reaction, and
// internal/cmddispatch, matching the ownership rules in the specification's
// data model section.
package model
