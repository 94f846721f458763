// Package candidate produces the deterministic, restartable stream of
// probe candidates. Two generators exist: a dictionary one reading a word
// list in file order and an exhaustive one enumerating letter-digit names
// by growing length. Both cross every base name with every configured
// suffix and are exposed as lazy iterators, nothing is materialized.
package candidate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"strings"
)

// alphabet of the exhaustive phase, lexicographic order of the stream
// follows the byte order here.
const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// maxLabel is the DNS limit on a single host name label. Longer base
// names cannot resolve, so they are silently skipped.
const maxLabel = 63

// URL builds the candidate URL probed for a base name and suffix.
func URL(name, suffix string) string {
	return "http://" + name + "." + suffix
}

// Pos addresses a position inside the combination stream as an explicit
// (length, index within length) tuple.
type Pos struct {
	Length int
	Index  uint64
}

// Dictionary yields one candidate per (word, suffix) pair in word-list
// order. Words are trimmed and lower-cased, blank lines and names over 63
// characters are skipped. A read failure of the underlying reader is
// yielded as the final element.
func Dictionary(ctx context.Context, r io.Reader, suffixes []string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if ctx.Err() != nil {
				return
			}
			word := strings.ToLower(strings.TrimSpace(sc.Text()))
			if word == "" || len(word) > maxLabel {
				continue
			}
			for _, suffix := range suffixes {
				if !yield(URL(word, suffix), nil) {
					return
				}
			}
		}
		if err := sc.Err(); err != nil {
			yield("", fmt.Errorf("reading word list: %w", err))
		}
	}
}

// Combinations enumerates every name over the letter-digit alphabet
// starting at startLen characters, by increasing length and lexicographic
// order within a length. The stream ends only at the 63 character label
// limit, consumers are expected to stop early.
func Combinations(ctx context.Context, startLen int, suffixes []string) iter.Seq2[string, error] {
	return CombinationsFrom(ctx, Pos{Length: startLen}, suffixes)
}

// CombinationsFrom behaves like Combinations but starts at an explicit
// position, pos itself included. The same tuple always restarts the
// stream at the same candidate.
func CombinationsFrom(ctx context.Context, pos Pos, suffixes []string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if pos.Length < 1 {
			yield("", fmt.Errorf("combination length %d out of range", pos.Length))
			return
		}
		for length := pos.Length; length <= maxLabel; length++ {
			digits := make([]int, length)
			if length == pos.Length && pos.Index > 0 {
				if !seek(digits, pos.Index) {
					continue // index past the end of this length
				}
			}
			for {
				if ctx.Err() != nil {
					return
				}
				name := render(digits)
				for _, suffix := range suffixes {
					if !yield(URL(name, suffix), nil) {
						return
					}
				}
				if !increment(digits) {
					break
				}
			}
		}
	}
}

// Join concatenates candidate streams, the dictionary phase followed by
// the combination phase in practice.
func Join(seqs ...iter.Seq2[string, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, seq := range seqs {
			for c, err := range seq {
				if !yield(c, err) {
					return
				}
			}
		}
	}
}

func render(digits []int) string {
	var sb strings.Builder
	sb.Grow(len(digits))
	for _, d := range digits {
		sb.WriteByte(alphabet[d])
	}
	return sb.String()
}

// increment advances digits as an odometer, false when the length is
// exhausted.
func increment(digits []int) bool {
	for i := len(digits) - 1; i >= 0; i-- {
		digits[i]++
		if digits[i] < len(alphabet) {
			return true
		}
		digits[i] = 0
	}
	return false
}

// seek decodes idx into digits, false when idx does not fit the length.
func seek(digits []int, idx uint64) bool {
	base := uint64(len(alphabet))
	for i := len(digits) - 1; i >= 0; i-- {
		digits[i] = int(idx % base)
		idx /= base
	}
	return idx == 0
}
