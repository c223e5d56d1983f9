/*
Package tokenreg maintains the registry of fungible tokens known to
the system: metadata, issuer information and the exchange rate to the
common reference unit. Entries resolve by currency code, display
symbol or country, and rates cross-convert between any two registered
tokens. All mutations are gated on a single registry admin address.
*/
package tokenreg
