package xar

import (
	"bytes"
	"path"
	"strconv"

	"github.com/beevik/etree"
)

// maxTreeDepth bounds recursion while flattening the file tree so that an
// adversarial TOC cannot drive unbounded recursion.
const maxTreeDepth = 255

// FileEntry pairs a file with its full path inside the archive.
type FileEntry struct {
	Path string
	File *File
}

// FileEntries flattens the directory tree into deterministic pre-order,
// synthesizing full paths by joining parent directory names.
func (toc *TableOfContents) FileEntries() ([]FileEntry, error) {
	var out []FileEntry
	var recurse func(prefix string, files []*File, depth int) error
	recurse = func(prefix string, files []*File, depth int) error {
		if depth > maxTreeDepth {
			return formatErrorf("file tree exceeds depth %d", maxTreeDepth)
		}
		for _, f := range files {
			p := path.Join(prefix, f.Name)
			out = append(out, FileEntry{Path: p, File: f})
			if err := recurse(p, f.Files, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := recurse("", toc.Files, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// FindSignature returns the signature entry with the given style, or nil.
func (toc *TableOfContents) FindSignature(style string) *SignatureInfo {
	for _, sig := range []*SignatureInfo{toc.RSASignature, toc.CMSSignature} {
		if sig != nil && sig.Style == style {
			return sig
		}
	}
	return nil
}

// clone deep-copies the TOC so the signer can rewrite offsets without
// disturbing the reader's parsed view.
func (toc *TableOfContents) clone() *TableOfContents {
	out := &TableOfContents{
		CreationTime: toc.CreationTime,
		Checksum:     toc.Checksum,
		RSASignature: toc.RSASignature.clone(),
		CMSSignature: toc.CMSSignature.clone(),
	}
	for _, f := range toc.Files {
		out.Files = append(out.Files, f.clone())
	}
	return out
}

func (s *SignatureInfo) clone() *SignatureInfo {
	if s == nil {
		return nil
	}
	out := *s
	out.Certificates = append([]string(nil), s.Certificates...)
	return &out
}

func (f *File) clone() *File {
	out := *f
	if f.Data != nil {
		data := *f.Data
		out.Data = &data
	}
	out.Files = nil
	for _, child := range f.Files {
		out.Files = append(out.Files, child.clone())
	}
	return &out
}

// FinalizedTOC is a TOC whose heap offsets have been resolved by the
// signer. It is the only input the XML serializer accepts, so a digest can
// never be computed over a TOC with stale offsets. The wrapped TOC must
// not be mutated once produced.
type FinalizedTOC struct {
	toc *TableOfContents
}

// visitFilesMut applies fn to every file node in the tree. This is the one
// legitimate mutation of the TOC, used by the signer to rewrite offsets;
// it consumes the clone and returns it frozen.
func (toc *TableOfContents) visitFilesMut(fn func(*File)) *FinalizedTOC {
	toc.walk(fn)
	return &FinalizedTOC{toc: toc}
}

// ToXML serializes the finalized TOC back to the exact XML schema that
// Apple's xar tool emits. These bytes, once compressed, are what the
// archive checksum digests; the TOC is frozen from this point on.
func (ft *FinalizedTOC) ToXML() ([]byte, error) {
	toc := ft.toc
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("xar")
	el := root.CreateElement("toc")
	if toc.CreationTime != "" {
		el.CreateElement("creation-time").SetText(toc.CreationTime)
	}
	addChecksumElement(el, &toc.Checksum)
	if toc.RSASignature != nil {
		el.AddChild(newSignatureElement("signature", toc.RSASignature))
	}
	if toc.CMSSignature != nil {
		el.AddChild(newSignatureElement("x-signature", toc.CMSSignature))
	}
	for _, f := range toc.Files {
		el.AddChild(newFileElement(f))
	}
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func addChecksumElement(toc *etree.Element, c *ChecksumInfo) {
	el := toc.CreateElement("checksum")
	el.CreateAttr("style", c.Style)
	addInt(el, "size", c.Size)
	addInt(el, "offset", c.Offset)
}

func newSignatureElement(key string, sig *SignatureInfo) *etree.Element {
	el := etree.NewElement(key)
	el.CreateAttr("style", sig.Style)
	addInt(el, "size", sig.Size)
	addInt(el, "offset", sig.Offset)
	keyInfo := el.CreateElement("KeyInfo")
	keyInfo.CreateAttr("xmlns", "http://www.w3.org/2000/09/xmldsig#")
	x5d := keyInfo.CreateElement("X509Data")
	for _, cert := range sig.Certificates {
		x5d.CreateElement("X509Certificate").SetText(cert)
	}
	return el
}

func newFileElement(f *File) *etree.Element {
	el := etree.NewElement("file")
	el.CreateAttr("id", strconv.FormatUint(f.ID, 10))
	el.CreateElement("name").SetText(f.Name)
	el.CreateElement("type").SetText(f.Type)
	for _, opt := range []struct{ key, val string }{
		{"mode", f.Mode},
		{"uid", f.UID},
		{"gid", f.GID},
		{"user", f.User},
		{"group", f.Group},
		{"mtime", f.Mtime},
		{"ctime", f.Ctime},
	} {
		if opt.val != "" {
			el.CreateElement(opt.key).SetText(opt.val)
		}
	}
	if f.Data != nil {
		data := el.CreateElement("data")
		addInt(data, "length", f.Data.Length)
		addInt(data, "offset", f.Data.Offset)
		addInt(data, "size", f.Data.Size)
		enc := data.CreateElement("encoding")
		style := f.Data.Encoding.Style
		if style == "" {
			style = "application/octet-stream"
		}
		enc.CreateAttr("style", style)
		addFileChecksum(data, "archived-checksum", f.Data.ArchivedChecksum)
		addFileChecksum(data, "extracted-checksum", f.Data.ExtractedChecksum)
	}
	for _, child := range f.Files {
		el.AddChild(newFileElement(child))
	}
	return el
}

func addFileChecksum(data *etree.Element, key string, sum FileChecksum) {
	if sum.Digest == "" {
		return
	}
	el := data.CreateElement(key)
	el.CreateAttr("style", sum.Style)
	el.SetText(sum.Digest)
}

func addInt(parent *etree.Element, key string, v int64) {
	parent.CreateElement(key).SetText(strconv.FormatInt(v, 10))
}
