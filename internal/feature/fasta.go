package feature

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
)

// FASTARecord is one named sequence.
type FASTARecord struct {
	Name string
	Seq  string
}

// ParseFASTA reads all records from r. Text before the first header is
// ignored and residues are lower-cased.
func ParseFASTA(r io.Reader) ([]FASTARecord, error) {
	br := bufio.NewReader(r)
	if err := skipToHeader(br); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	fr := fasta.NewReader(br, linear.NewSeq("", nil, alphabet.DNAredundant))
	var out []FASTARecord
	for {
		s, err := fr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		ls := s.(*linear.Seq)
		b := make([]byte, len(ls.Seq))
		for i, l := range ls.Seq {
			b[i] = byte(l)
		}
		out = append(out, FASTARecord{Name: ls.ID, Seq: strings.ToLower(string(b))})
	}
}

// ReadFASTA consumes the remainder of sc as FASTA.
func ReadFASTA(sc *bufio.Scanner) ([]FASTARecord, error) {
	var b strings.Builder
	for sc.Scan() {
		b.WriteString(sc.Text())
		b.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ParseFASTA(strings.NewReader(b.String()))
}

func skipToHeader(br *bufio.Reader) error {
	for {
		c, err := br.Peek(1)
		if err != nil {
			return err
		}
		if c[0] == '>' {
			return nil
		}
		if _, err := br.ReadString('\n'); err != nil {
			return err
		}
	}
}
