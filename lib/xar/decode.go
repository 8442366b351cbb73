package xar

import (
	"compress/bzip2"
	"compress/zlib"
	"io"

	ulzma "github.com/ulikunitz/xz/lzma"
	xi2xz "github.com/xi2/xz"
)

// WriteFileDataDecoded streams a file's content decoded according to its
// declared encoding. A file declaring an encoding the decoder does not
// implement fails with UnknownEncodingError rather than passing raw bytes
// through.
func (x *Reader) WriteFileDataDecoded(f *File, w io.Writer) error {
	if f.Data == nil {
		return formatErrorf("file %q has no data", f.Name)
	}
	src := io.NewSectionReader(x.heap, f.Data.Offset, f.Data.Length)
	dec, err := newDecoder(f.Data.style, f.Data.Encoding.Style, src)
	if err != nil {
		return err
	}
	buf := make([]byte, heapCopyChunk)
	_, err = io.CopyBuffer(w, dec, buf)
	return err
}

// WriteFileDataDecodedByID is WriteFileDataDecoded keyed by TOC file id.
func (x *Reader) WriteFileDataDecodedByID(id uint64, w io.Writer) error {
	f := x.findByID(id)
	if f == nil {
		return formatErrorf("no file with id %d", id)
	}
	return x.WriteFileDataDecoded(f, w)
}

func newDecoder(style EncodingStyle, mime string, src io.Reader) (io.Reader, error) {
	switch style {
	case EncodingRaw:
		return src, nil
	case EncodingZlib:
		return zlib.NewReader(src)
	case EncodingBzip2:
		return bzip2.NewReader(src), nil
	case EncodingLZMA:
		return ulzma.NewReader(src)
	case EncodingXZ:
		return xi2xz.NewReader(src, 0)
	}
	return nil, UnknownEncodingError{Style: mime}
}
