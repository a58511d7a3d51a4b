/*
Package validation checks payment sub-documents before they are committed.

Every check runs against a domain.PaymentPatch, so the same rules serve full
documents (PaymentState.Fields) and partial deltas (Partial option). When a
prior state is supplied the payment status transition is checked as well.
Failures are reported as *ValidationError values (field, constraint, value)
collected in an *AggregateError; a rejected transition surfaces as a
*domain.TransitionError. Validation never mutates its input.
*/
package validation
