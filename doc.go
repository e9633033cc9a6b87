// Package resolvd implements a recursive, DNSSEC-validating DNS resolver
// with a TTL-bounded answer cache. Given a question it drives queries from
// the root (or a cached zone cut) downward, follows delegations and
// CNAME/DNAME chains, validates responses against a configured trust-anchor
// set, and memoizes the result.
package resolvd
