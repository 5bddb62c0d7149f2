// Package driving provides interfaces implemented by core services and
// called by entrypoint adapters (primary/inbound ports).
package driving
