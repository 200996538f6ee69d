// Package feature holds the in-memory annotation model shared by the server
// backends, worker connections and views:
//
//   - sequence.go: Sequence (name plus 1-based coordinate range).
//   - context.go: Context tree (alignment -> block -> set -> feature) and Merge.
//   - style.go: Style, Mode and StyleTable, including mode inference.
//   - gff.go: GFF v2/v3 reader that populates a Context, GFF3 line writer.
//   - fasta.go: FASTA reading for DNA replies, backed by biogo.
//
// A Context is only ever mutated by one goroutine at a time: a worker fills
// the context it was handed, then the polling goroutine owns it.
package feature
