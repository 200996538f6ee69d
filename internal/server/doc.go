// Package server implements the protocol adapters that fetch annotation data
// for a worker connection. One Server wraps exactly one Backend:
//
//   - server.go: Server lifecycle guard, Create and the backend registry.
//   - response.go: ResponseType codes and the Error type.
//   - acedb.go, acedb_wire.go: acedb socket server client.
//   - das.go: DAS/1 over HTTP with XML replies.
//   - file.go, hts.go: GFF files plus SAM/BAM/CRAM translated to GFF3.
//   - pipe.go: scripts writing GFF to stdout.
//
// Backends never panic across the API and never share state with each other;
// every failure is reported as an *Error carrying a ResponseType.
package server
