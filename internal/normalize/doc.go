// Package normalize classifies fetched catalog records and reshapes in-scope
// games into persistable plans. Every function here is pure; persistence and
// network access live elsewhere.
package normalize
