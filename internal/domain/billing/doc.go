// Package billing models the billing events that move an account between tiers.
// Events come from the billing provider integration already verified; this
// package only applies them.
package billing
