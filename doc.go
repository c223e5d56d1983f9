/*
Package umoja defines the interfaces that tie the custody ledger
together: the key-value storage contracts, party identity in the form
of conditions and addresses, and the timestamp source that every
engine reads from the request context.

The packages under x/ implement the actual ledger semantics (pooled
funds, escrowed remittances, the token registry) on top of these
interfaces. The orm package provides typed buckets over the raw
key-value store, and the store package provides the in-memory and
sqlite backed implementations.
*/
package umoja
