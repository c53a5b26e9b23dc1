// Package catalog defines the domain types, collaborator interfaces, and error
// taxonomy shared by the ingest pipeline. It is the storefront counterpart of a
// crawler's core package: every other package depends on it and it depends on
// nothing inside the module.
package catalog
