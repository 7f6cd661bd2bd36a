//go:build unix

package governor

import "syscall"

// getrlimit and setrlimit mirror nabbar-golib/ioutils/fileDescriptor's
// systemFileDescriptor: stdlib syscall.Getrlimit/Setrlimit against
// RLIMIT_NOFILE, never decreasing an existing limit.
func getrlimit() (current, max int, err error) {
	var rlimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlimit); err != nil {
		return 0, 0, err
	}
	return int(rlimit.Cur), int(rlimit.Max), nil
}

func setrlimit(value int) error {
	var rlimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlimit); err != nil {
		return err
	}
	if uint64(value) > rlimit.Max {
		rlimit.Max = uint64(value)
	}
	if uint64(value) > rlimit.Cur {
		rlimit.Cur = uint64(value)
	}
	return syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rlimit)
}
