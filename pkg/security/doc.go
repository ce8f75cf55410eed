// Package security implements the in-memory security event log: a bounded
// ring buffer of structured audit records with derived statistics and a
// closed event taxonomy.
//
// The buffer is process-local and volatile. Under horizontal scaling each
// instance holds its own log; externalizing to a shared store is a deliberate
// future step, which is why the Logger is injected rather than global.
package security
