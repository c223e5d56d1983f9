/*
Package pool implements custodial fund pools: many members deposit
into a shared balance and releases are gated by role, with an optional
two-phase approval workflow for non-admin withdrawals.

Funds live at a per-pool custody address derived from the pool id.
Every deposit and payout goes through the cash controller, so a failed
transfer can never leave the bookkeeping half done. The contribution
and withdrawal logs are append-only audit records; the pool balance is
the source of truth and Reconcile checks the two against each other.
*/
package pool
