//go:build !unix

package governor

// windowsNoFileLimit is a conservative stand-in for the platforms where
// this binary has no rlimit concept to query; nabbar-golib's own
// fileDescriptor_ko.go takes the same approach of reporting a fixed
// ceiling rather than failing outright.
const windowsNoFileLimit = 16384

func getrlimit() (current, max int, err error) {
	return windowsNoFileLimit, windowsNoFileLimit, nil
}

func setrlimit(value int) error {
	return nil
}
