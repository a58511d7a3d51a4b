/*
Package domain contains the session document model and the pure rules that
govern it.

A session is addressed by an opaque identifier and owns three sub-documents:
the conversation counters, the current order with its completed history, and
the payment ledger. This package holds no I/O, no locks and no persistence;
concurrency control lives in package session and mutation in package ledger.

# Key Entities

  - Session: the per-session document (Conversation, Order, Payment).
  - PaymentState: balance, tab, tip, external payment reference and the
    optimistic-lock Version.
  - PaymentStatus: the forward-only pending -> processing -> completed machine.
  - PaymentPatch: a partial view of PaymentState used for merged validation.
*/
package domain
