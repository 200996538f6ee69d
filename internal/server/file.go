package server

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"zmapd/internal/feature"
)

// fileFormat is derived from the file extension unless Params.Format is set.
type fileFormat string

const (
	formatGFF  fileFormat = "gff"
	formatSAM  fileFormat = "sam"
	formatBAM  fileFormat = "bam"
	formatCRAM fileFormat = "cram"
)

func detectFormat(p Params, name string) (fileFormat, bool) {
	if p.Format != "" {
		switch f := fileFormat(strings.ToLower(p.Format)); f {
		case formatGFF, formatSAM, formatBAM, formatCRAM:
			return f, true
		}
		return "", false
	}
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".gff", ".gff2", ".gff3":
		return formatGFF, true
	case ".sam":
		return formatSAM, true
	case ".bam":
		return formatBAM, true
	case ".cram":
		return formatCRAM, true
	}
	return "", false
}

type fileBackend struct {
	params Params
	path   string
	format fileFormat
	fc     *feature.Context
	hasDNA bool
}

func newFile(p Params, addr Address) (Backend, error) {
	path := addr.Path
	if addr.Host != "" && addr.Host != "localhost" {
		// file://relative/dir/x.gff
		path = filepath.Join(addr.Host, path)
	}
	if path == "" {
		return nil, newError(ResponseBadReq, "file url %q has no path", p.URL)
	}
	format, ok := detectFormat(p, path)
	if !ok {
		return nil, newError(ResponseUnsupported, "file %q: unrecognised format", path)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, wrapError(ResponseBadReq, err, "file")
	}
	if fi.IsDir() {
		return nil, newError(ResponseBadReq, "file %q is a directory", path)
	}
	return &fileBackend{params: p, path: path, format: format}, nil
}

func (f *fileBackend) Open(ctx context.Context) error {
	fh, err := os.Open(f.path)
	if err != nil {
		return wrapError(ResponseReqFail, err, "file")
	}
	defer fh.Close()
	if f.format != formatGFF {
		return nil
	}
	line, err := bufio.NewReader(fh).ReadString('\n')
	if err != nil && err != io.EOF {
		return wrapError(ResponseReqFail, err, "file")
	}
	if !strings.HasPrefix(strings.TrimSpace(line), "##gff-version") {
		return newError(ResponseReqFail, "file %q: missing ##gff-version header", f.path)
	}
	return nil
}

func (f *fileBackend) Info(ctx context.Context) (Info, error) {
	return Info{Protocol: "file", Database: f.path, Version: string(f.format)}, nil
}

func (f *fileBackend) Styles(ctx context.Context) (feature.StyleTable, error) {
	return nil, ErrUnsupported
}

func (f *fileBackend) HaveModes() bool { return false }

func (f *fileBackend) FeatureSets(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) > 0 {
		return requested, nil
	}
	if f.format != formatGFF {
		return []string{f.setName()}, nil
	}
	return nil, nil
}

func (f *fileBackend) setName() string {
	if f.params.Name != "" && f.params.Name != f.params.URL {
		return f.params.Name
	}
	return strings.TrimSuffix(filepath.Base(f.path), filepath.Ext(f.path))
}

func (f *fileBackend) SetContext(fc *feature.Context) error {
	f.fc = fc
	return nil
}

func (f *fileBackend) Features(ctx context.Context, styles feature.StyleTable) error {
	if f.fc == nil {
		return newError(ResponseBadReq, "file: no context set")
	}
	var (
		r    io.ReadCloser
		wait func() error
		err  error
	)
	switch f.format {
	case formatGFF:
		r, err = os.Open(f.path)
	default:
		r, wait, err = f.alignmentsAsGFF(ctx)
	}
	if err != nil {
		return asError(err)
	}
	defer r.Close()
	before := f.fc.MasterBlock().DNA
	st, perr := feature.ParseGFF(r, f.fc, feature.ParseOptions{})
	if wait != nil {
		if werr := wait(); werr != nil && perr == nil {
			perr = werr
		}
	}
	if perr != nil {
		if ctx.Err() != nil {
			return wrapError(ResponseOf(ctx.Err()), ctx.Err(), "file %q", f.path)
		}
		return wrapError(ResponseReqFail, perr, "file %q", f.path)
	}
	f.hasDNA = before == "" && f.fc.MasterBlock().DNA != ""
	if st.Features == 0 {
		return newError(ResponseNoContent, "file %q: no features for %s", f.path, f.fc.Sequence)
	}
	return nil
}

func (f *fileBackend) ContextSequences(ctx context.Context) error {
	if f.hasDNA {
		return nil
	}
	return ErrUnsupported
}

func (f *fileBackend) Sequences(ctx context.Context, names []string) (map[string]string, error) {
	return nil, ErrUnsupported
}

func (f *fileBackend) Close() error { return nil }
