package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"

	"zmapd/internal/feature"
)

// alignmentReader is satisfied by both sam.Reader and bam.Reader.
type alignmentReader interface {
	Read() (*sam.Record, error)
}

// alignmentsAsGFF streams the reads of a SAM/BAM/CRAM file overlapping the
// context as GFF3 match records. The returned wait func must be called once
// the reader has been consumed.
func (f *fileBackend) alignmentsAsGFF(ctx context.Context) (io.ReadCloser, func() error, error) {
	var (
		src     io.ReadCloser
		cmdWait func() error
	)
	switch f.format {
	case formatCRAM:
		bin := f.params.Samtools
		if bin == "" {
			bin = "samtools"
		}
		cmd := exec.CommandContext(ctx, bin, "view", "-h", f.path)
		stderr := &tailBuffer{max: 4096}
		cmd.Stderr = stderr
		out, err := cmd.StdoutPipe()
		if err != nil {
			return nil, nil, wrapError(ResponseReqFail, err, "samtools")
		}
		if err := cmd.Start(); err != nil {
			return nil, nil, wrapError(ResponseReqFail, err, "samtools")
		}
		src = out
		cmdWait = func() error {
			if err := cmd.Wait(); err != nil {
				return fmt.Errorf("samtools: %w: %s", err, stderr.String())
			}
			return nil
		}
	default:
		fh, err := os.Open(f.path)
		if err != nil {
			return nil, nil, wrapError(ResponseReqFail, err, "file")
		}
		src = fh
	}

	var (
		rd  alignmentReader
		err error
	)
	if f.format == formatBAM {
		rd, err = bam.NewReader(src, 0)
	} else {
		rd, err = sam.NewReader(bufio.NewReader(src))
	}
	if err != nil {
		src.Close()
		if cmdWait != nil {
			if werr := cmdWait(); werr != nil {
				err = werr
			}
		}
		return nil, nil, wrapError(ResponseReqFail, err, "file %q", f.path)
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	set := f.setName()
	seq := f.fc.Sequence
	go func() {
		werr := writeAlignmentsGFF(ctx, pw, rd, seq, set)
		if c, ok := rd.(io.Closer); ok {
			c.Close()
		}
		src.Close()
		if cmdWait != nil {
			if cerr := cmdWait(); cerr != nil && werr == nil && ctx.Err() == nil {
				werr = cerr
			}
		}
		pw.CloseWithError(werr)
		done <- werr
	}()
	wait := func() error {
		pr.Close()
		err := <-done
		if errors.Is(err, io.ErrClosedPipe) {
			return nil
		}
		return err
	}
	return pr, wait, nil
}

func writeAlignmentsGFF(ctx context.Context, w io.Writer, rd alignmentReader, seq feature.Sequence, set string) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("##gff-version 3\n"); err != nil {
		return err
	}
	want := feature.CanonicalID(seq.Name)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if rec.Flags&sam.Unmapped != 0 || rec.Ref == nil || feature.CanonicalID(rec.Ref.Name()) != want {
			continue
		}
		start, end := rec.Pos+1, rec.End()
		if !seq.Overlaps(start, end) {
			continue
		}
		for _, line := range readToGFF3(rec, seq.Name, set) {
			bw.WriteString(line)
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

// readToGFF3 renders one aligned read as a match with one match_part per
// aligned block. Skips and deletions split blocks.
func readToGFF3(rec *sam.Record, seqName, set string) []string {
	strand := feature.StrandForward
	if rec.Flags&sam.Reverse != 0 {
		strand = feature.StrandReverse
	}
	id := rec.Name + "_" + strconv.Itoa(rec.Pos+1)
	score := float64(rec.MapQ)
	parent := feature.Record{
		SeqID: seqName, Source: set, Type: "match",
		Start: rec.Pos + 1, End: rec.End(), Score: &score, Strand: strand, Phase: -1,
		Attributes: [][2]string{{"ID", id}, {"Name", rec.Name}, {"Target", rec.Name}},
	}
	out := []string{feature.FormatGFF3(parent)}
	blocks := cigarBlocks(rec.Pos+1, rec.Cigar)
	if len(blocks) < 2 {
		return out
	}
	for _, b := range blocks {
		out = append(out, feature.FormatGFF3(feature.Record{
			SeqID: seqName, Source: set, Type: "match_part",
			Start: b.Start, End: b.End, Strand: strand, Phase: -1,
			Attributes: [][2]string{{"Parent", id}},
		}))
	}
	return out
}

// cigarBlocks returns the 1-based reference spans covered by aligned bases.
func cigarBlocks(pos int, cigar sam.Cigar) []feature.Span {
	var (
		out  []feature.Span
		open bool
	)
	for _, op := range cigar {
		n := op.Len()
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			if open {
				out[len(out)-1].End = pos + n - 1
			} else {
				out = append(out, feature.Span{Start: pos, End: pos + n - 1})
				open = true
			}
			pos += n
		case sam.CigarDeletion, sam.CigarSkipped:
			pos += n
			open = false
		}
	}
	return out
}
