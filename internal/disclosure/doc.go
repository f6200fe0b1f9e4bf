// Package disclosure defines the records, collaborator contracts and error
// taxonomy shared by the scan engine and its adapters.
package disclosure
