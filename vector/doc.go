// Package vector indexes event evidence for similarity retrieval. Three
// interchangeable backends exist: a BadgerDB embedding index, a SQLite index
// accelerated by the sqlite-vec extension when available, and a lexical
// token-overlap index that needs no embedding service at all.
package vector
