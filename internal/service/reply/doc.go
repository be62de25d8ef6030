// Package reply turns inbound replies into campaign transitions.
//
// A reply is attributed to the most recent campaign for the sender, marked
// as replied before anything else happens, handed to the external
// classifier and finally dispatched on the classifier's action. The set of
// actions is closed; anything outside it is a contract violation and
// returns ErrUnknownAction.
//
// Text normalization (address extraction, quote stripping, HTML to text)
// lives in clean.go as pure functions.
package reply
