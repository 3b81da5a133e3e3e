// Package account holds the subscriber side of admission control: who is
// calling and which subscription tier they are on.
//
// A Principal is loaded fresh for every request. Billing events change the
// stored tier through Repository.UpdateSubscription and the new tier applies
// from the next request on.
package account
