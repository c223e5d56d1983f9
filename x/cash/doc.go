/*
Package cash defines a simple wallet ledger and the atomic value
transfer primitive built on top of it.

Wallets are keyed by address. The Controller moves coins between two
wallets as a single unit: on any failure no balance is touched. All
custody engines express funds movement exclusively through the
Controller interface.
*/
package cash
