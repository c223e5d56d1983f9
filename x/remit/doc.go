/*
Package remit implements escrowed point-to-point remittances: a
sender deposits funds plus fees into custody and a designated
recipient collects a converted payout by presenting a shared
redemption code, or the sender cancels.

All escrowed value sits at a single custody address. Redemption pays
out only the converted principal; the fee and insurance residue stays
in custody and is observable through CustodyBalance. Engine
parameters live in a singleton configuration written once by
Initialize and updated by its admin.
*/
package remit
