// Package rules evaluates configured rules against document text.
//
// Text and keywords are compared after Prepare (NFC + lower case), so all
// keyword checks are case-insensitive substring matches. Pattern rules are
// compiled once per (rule id, expression) and cached. A rule that cannot be
// evaluated (bad pattern, missing or failing predicate) disables itself for
// that evaluation and is reported as a warning; it never aborts the rest.
//
// Built-in checks selected by document classification run after the
// configurable rules.
package rules
