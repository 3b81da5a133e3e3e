// Package admission defines quota-based admission for paid features.
//
// A QuotaPolicy maps (Tier, Feature) to the number of invocations allowed in a
// rolling window. Policies are validated when they are built: every tier must
// grant at least as much as the tier below it, so a misconfigured table is
// rejected at startup rather than discovered on a request.
//
// Usage windows live behind WindowStore. A store owns its per-key state and
// must make Acquire atomic per key: two concurrent callers can never both take
// the last free slot.
package admission
