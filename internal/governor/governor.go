// Package governor translates a file-descriptor budget into a bucket
// ceiling (spec §4.6). Its rlimit plumbing is grounded directly in
// nabbar-golib's ioutils/fileDescriptor package, which — despite sitting
// in a dependency-heavy library — reaches for the stdlib syscall package
// for this exact concern rather than a third-party rlimit wrapper; the
// platform split below (governor_unix.go / governor_other.go) mirrors
// that package's own fileDescriptor_ok.go / fileDescriptor_ko.go split.
package governor

import (
	"github.com/fatih/color"
	"github.com/pkg/errors"
)

// fdPadding accounts for the listen socket, the output file, signal
// handling plumbing, stdio, and margin (spec §4.6).
const fdPadding = 7

// fdPerBucket is the cost of one open bucket under the pipe-per-bucket
// design (spec §4.2/§4.6); the in-memory Stream substitute used here
// doesn't actually spend descriptors, but the budget formula is kept
// byte-for-byte so operators tuning -c against this binary see the same
// arithmetic as the original.
const fdPerBucket = 2

// Apply raises the process's open-file limit to cover requestedMaxBuckets
// and returns the (possibly lowered) bucket ceiling the effective limit
// can actually support. Must run before the listen socket is created
// (spec §4.6).
func Apply(requestedMaxBuckets int) (int, error) {
	required := fdPadding + fdPerBucket*requestedMaxBuckets

	current, max, err := getrlimit()
	if err != nil {
		return requestedMaxBuckets, errors.Wrap(err, "governor: getrlimit")
	}

	target := required
	if max > 0 && target > max {
		target = max
	}

	if target > current {
		if err := setrlimit(target); err != nil {
			return requestedMaxBuckets, errors.Wrap(err, "governor: setrlimit")
		}
	}

	effective, _, err := getrlimit()
	if err != nil {
		return requestedMaxBuckets, errors.Wrap(err, "governor: getrlimit (re-read)")
	}

	if effective >= required {
		return requestedMaxBuckets, nil
	}

	adjusted := (effective - fdPadding) / fdPerBucket
	if adjusted < 1 {
		adjusted = 1
	}

	color.Yellow("governor: fd limit %d insufficient for %d buckets (needs %d); lowering max-bucket-count to %d",
		effective, requestedMaxBuckets, required, adjusted)

	return adjusted, nil
}
