/*
Package ledger implements the atomic, optimistically-locked mutations of a
session's order and payment sub-documents.

Every mutation follows the same cycle under the session lock: load the
current document, check the caller's expected version, apply the change to a
copy, validate the merged result against the prior state (which also enforces
the payment status machine), bump Version by exactly one and persist.
Failures are returned as typed errors and leave the stored document
untouched. There is no internal retry: a caller that sees
domain.ErrConcurrentModification re-reads and decides for itself.

Gateway calls never happen while a session lock is held. BeginPayment and
CheckPayment read a snapshot, talk to the gateway, then commit through a
short, separately locked mutation fenced by the snapshot's version.
*/
package ledger
