package xar

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTOC() *TableOfContents {
	return &TableOfContents{
		CreationTime: "2024-01-02T03:04:05Z",
		Checksum:     ChecksumInfo{Style: "sha256", Offset: 0, Size: 32},
		RSASignature: &SignatureInfo{
			Style: SignatureStyleRSA, Offset: 32, Size: 256,
			Certificates: []string{"QUJDREVG"},
		},
		CMSSignature: &SignatureInfo{
			Style: SignatureStyleCMS, Offset: 288, Size: 800,
			Certificates: []string{"QUJDREVG"},
		},
		Files: []*File{
			{ID: 1, Name: "Contents", Type: FileTypeDirectory, Files: []*File{
				{
					ID: 2, Name: "app", Type: FileTypeFile, Mode: "0644", Mtime: "2024-01-01T00:00:00Z",
					Data: &FileData{
						Length: 12, Offset: 1088, Size: 12,
						Encoding:          Encoding{Style: "application/octet-stream"},
						ArchivedChecksum:  FileChecksum{Style: "sha256", Digest: "aa"},
						ExtractedChecksum: FileChecksum{Style: "sha256", Digest: "bb"},
					},
				},
			}},
			{
				ID: 3, Name: "Scripts.bin", Type: FileTypeFile,
				Data: &FileData{
					Length: 20, Offset: 1100, Size: 40,
					Encoding:         Encoding{Style: "application/x-gzip"},
					ArchivedChecksum: FileChecksum{Style: "sha256", Digest: "cc"},
				},
			},
		},
	}
}

func TestTOCXMLRoundTrip(t *testing.T) {
	toc := sampleTOC()
	toc.resolveEncodings()

	xmlBytes, err := toc.clone().visitFilesMut(func(*File) {}).ToXML()
	require.NoError(t, err)
	assert.Contains(t, string(xmlBytes), `<?xml version="1.0" encoding="UTF-8"?>`)

	var parsed tocXar
	require.NoError(t, xml.Unmarshal(xmlBytes, &parsed))
	parsed.TOC.resolveEncodings()
	assert.Equal(t, toc.CreationTime, parsed.TOC.CreationTime)
	assert.Equal(t, toc.Checksum, parsed.TOC.Checksum)
	assert.Equal(t, toc.RSASignature, parsed.TOC.RSASignature)
	assert.Equal(t, toc.CMSSignature, parsed.TOC.CMSSignature)
	assert.Equal(t, toc.Files, parsed.TOC.Files)
}

func TestFileEntries(t *testing.T) {
	toc := sampleTOC()
	entries, err := toc.FileEntries()
	require.NoError(t, err)
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"Contents", "Contents/app", "Scripts.bin"}, paths)
	// the flattened view and the parsed tree coexist on the same value
	assert.Equal(t, toc.Files[0].Files[0], entries[1].File)
}

func TestCloneIsDeep(t *testing.T) {
	toc := sampleTOC()
	clone := toc.clone()
	clone.visitFilesMut(func(f *File) {
		if f.Data != nil {
			f.Data.Offset = 9999
		}
	})
	clone.RSASignature.Size = 1
	assert.Equal(t, int64(1088), toc.Files[0].Files[0].Data.Offset)
	assert.Equal(t, int64(256), toc.RSASignature.Size)
}

func TestFindSignature(t *testing.T) {
	toc := sampleTOC()
	assert.Equal(t, toc.RSASignature, toc.FindSignature(SignatureStyleRSA))
	assert.Equal(t, toc.CMSSignature, toc.FindSignature(SignatureStyleCMS))
	toc.CMSSignature = nil
	assert.Nil(t, toc.FindSignature(SignatureStyleCMS))
}
