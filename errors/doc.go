/*
Package errors implements custom error interfaces for the ledger.

The package is a fork of the idea of categorized errors: every failure
returned by the engines wraps exactly one registered root error, so a
caller can test the category with Err.Is and map it to a transport
status with Code, while the full wrap chain keeps the human readable
context and a stacktrace for the logs.
*/
package errors
