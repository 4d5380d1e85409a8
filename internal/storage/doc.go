// Package storage persists whole tables of keyed JSON records.
//
// The raid engine loads each table once at start and rewrites it in full
// after every mutation, so a driver only needs LoadTable and SaveTable. A
// SaveTable call either replaces the table completely or leaves it as it
// was.
package storage
