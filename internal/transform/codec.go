package transform

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/tidwall/jsonc"
)

// Names of the codec transforms.
const (
	ZstdName  = "zstd"
	GzipName  = "gzip"
	LZ4Name   = "lz4"
	JSONCName = "jsonc"
	CBORName  = "cbor"
	AgeName   = "age"
)

// Zstd decompresses a zstd stream. The decoder is shared; DecodeAll is
// safe for concurrent use.
func Zstd() (Transformer, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return NewFunc(ZstdName, func(raw []byte) ([]byte, error) {
		out, err := dec.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return out, nil
	}), nil
}

// Gzip decompresses a gzip stream, multistream members included.
func Gzip() Transformer {
	return NewFunc(GzipName, func(raw []byte) ([]byte, error) {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		return readAll(GzipName, zr)
	})
}

// LZ4 decompresses an LZ4 frame.
func LZ4() Transformer {
	return NewFunc(LZ4Name, func(raw []byte) ([]byte, error) {
		return readAll(LZ4Name, lz4.NewReader(bytes.NewReader(raw)))
	})
}

// JSONC strips comments and trailing commas, leaving plain JSON.
func JSONC() Transformer {
	return NewFunc(JSONCName, func(raw []byte) ([]byte, error) {
		return jsonc.ToJSON(raw), nil
	})
}

// CBOR renders a CBOR sequence in diagnostic notation, one item per line.
func CBOR() Transformer {
	return NewFunc(CBORName, func(raw []byte) ([]byte, error) {
		var b strings.Builder
		remaining := raw
		for len(remaining) > 0 {
			notation, rest, err := cbor.DiagnoseFirst(remaining)
			if err != nil {
				return nil, fmt.Errorf("cbor at byte %d: %w", len(raw)-len(remaining), err)
			}
			b.WriteString(notation)
			b.WriteByte('\n')
			remaining = rest
		}
		return []byte(b.String()), nil
	})
}

// Age decrypts age files, armored or binary, with the identities in
// identityFile. The identity file is read once, here.
func Age(identityFile string) (Transformer, error) {
	f, err := os.Open(identityFile)
	if err != nil {
		return nil, fmt.Errorf("open age identity: %w", err)
	}
	defer f.Close()

	ids, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse age identity %s: %w", identityFile, err)
	}
	return NewFunc(AgeName, func(raw []byte) ([]byte, error) {
		var src io.Reader = bytes.NewReader(raw)
		if bytes.HasPrefix(bytes.TrimLeft(raw, " \t\r\n"), []byte(armor.Header)) {
			src = armor.NewReader(bufio.NewReader(bytes.NewReader(raw)))
		}
		r, err := age.Decrypt(src, ids...)
		if err != nil {
			var noMatch *age.NoIdentityMatchError
			if errors.As(err, &noMatch) {
				return nil, fmt.Errorf("age: no configured identity can decrypt this file: %w", err)
			}
			return nil, fmt.Errorf("age: %w", err)
		}
		return readAll(AgeName, r)
	}), nil
}

func readAll(name string, r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}
