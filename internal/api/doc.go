// Package api defines the types shared by every symsync package: link
// configuration, link states, mirror entries, activity records, status
// updates and the typed Error with its kinds.
//
// It has no dependencies on other internal packages.
package api
