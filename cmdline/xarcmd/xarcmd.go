// Commands for inspecting xar archives without touching signatures.
package xarcmd

import (
	"io"
	"os"

	"github.com/grovekeep/grovesign/lib/xar"
)

func openXar(path string) (*xar.Reader, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	r, err := xar.Open(f, size)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return r, f, nil
}
