package types

// Source describes one configured or discovered data source.
type Source struct {
	// Name used in logs and feature set defaults.
	// example: worm-curated
	Name string `json:"name" yaml:"name" toml:"name" example:"worm-curated"`
	// Source URL; the scheme selects the protocol (acedb, das, http, https, file, pipe).
	// example: acedb://localhost:23100
	URL string `json:"url" yaml:"url" toml:"url" example:"acedb://localhost:23100"`
	// Optional explicit file format (gff, sam, bam, cram).
	// example: gff
	Format string `json:"format,omitempty" yaml:"format,omitempty" toml:"format,omitempty" example:"gff"`
	// Optional protocol version expected from the server.
	Version string `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
	// Per request timeout in seconds; 0 uses the default.
	// example: 120
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty" toml:"timeout_seconds,omitempty" example:"120"`
	// Feature sets to request; empty requests everything the source has.
	// example: ["curated","est"]
	Featuresets []string `json:"featuresets,omitempty" yaml:"featuresets,omitempty" toml:"featuresets,omitempty"`
}
