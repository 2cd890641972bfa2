package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/archref/resolver/identity"
	"github.com/archref/resolver/internal/fxver"
	"github.com/archref/resolver/probe"
)

// stateMagic and stateVersion identify the on-disk state-file format
// described in spec.md §6. A mismatch on either causes the file to be
// discarded (start-empty, per C3's "non-fatal" contract).
var stateMagic = [4]byte{'A', 'R', 'R', 'C'}

const stateVersion = uint8(1)

// encodeProbeResult serializes one cache entry's probe_blob: the probe result
// encoded with a small deterministic binary codec. No third-party
// serialization library in the retrieved example corpus offers a
// length-prefixed binary codec without requiring generated code (see
// DESIGN.md); this hand-rolled codec keeps the format exactly as specified
// and fully deterministic for the round-trip invariant (spec.md §8).
func encodeProbeResult(r probe.ProbeResult) []byte {
	var buf bytes.Buffer
	writeIdentity(&buf, r.Identity)
	writeUint32(&buf, uint32(len(r.References)))
	for _, ref := range r.References {
		writeIdentity(&buf, ref)
	}
	writeStringSlice(&buf, r.ScatterFiles)
	writeString(&buf, r.RuntimeVersion)
	writeUint8(&buf, uint8(r.ProcessorArch))
	writeBool(&buf, r.IsWinMD)
	writeString(&buf, r.FrameworkMoniker)
	return buf.Bytes()
}

func decodeProbeResult(data []byte) (probe.ProbeResult, error) {
	r := bytes.NewReader(data)
	var result probe.ProbeResult
	var err error
	if result.Identity, err = readIdentity(r); err != nil {
		return result, err
	}
	n, err := readUint32(r)
	if err != nil {
		return result, err
	}
	result.References = make([]identity.AssemblyIdentity, 0, n)
	for i := uint32(0); i < n; i++ {
		id, err := readIdentity(r)
		if err != nil {
			return result, err
		}
		result.References = append(result.References, id)
	}
	if result.ScatterFiles, err = readStringSlice(r); err != nil {
		return result, err
	}
	if result.RuntimeVersion, err = readString(r); err != nil {
		return result, err
	}
	arch, err := readUint8(r)
	if err != nil {
		return result, err
	}
	result.ProcessorArch = identity.ProcessorArchitecture(arch)
	if result.IsWinMD, err = readBool(r); err != nil {
		return result, err
	}
	if result.FrameworkMoniker, err = readString(r); err != nil {
		return result, err
	}
	return result, nil
}

func writeIdentity(buf *bytes.Buffer, id identity.AssemblyIdentity) {
	writeString(buf, id.Raw)
	writeBool(buf, id.HasVersion)
	writeUint32(buf, uint32(id.Version.Major))
	writeUint32(buf, uint32(id.Version.Minor))
	writeUint32(buf, uint32(id.Version.Build))
	writeUint32(buf, uint32(id.Version.Revision))
	writeString(buf, id.Culture)
	writeBool(buf, id.HasPublicKeyToken)
	writeString(buf, id.PublicKeyToken)
	writeUint8(buf, uint8(id.ProcessorArch))
	writeBool(buf, id.Retargetable)
}

func readIdentity(r *bytes.Reader) (identity.AssemblyIdentity, error) {
	var id identity.AssemblyIdentity
	var err error
	if id.Raw, err = readString(r); err != nil {
		return id, err
	}
	id.SimpleName = toLowerASCII(id.Raw)
	if id.HasVersion, err = readBool(r); err != nil {
		return id, err
	}
	major, err := readUint32(r)
	if err != nil {
		return id, err
	}
	minor, err := readUint32(r)
	if err != nil {
		return id, err
	}
	build, err := readUint32(r)
	if err != nil {
		return id, err
	}
	revision, err := readUint32(r)
	if err != nil {
		return id, err
	}
	id.Version = fxver.Version{Major: int(major), Minor: int(minor), Build: int(build), Revision: int(revision)}
	if id.Culture, err = readString(r); err != nil {
		return id, err
	}
	if id.HasPublicKeyToken, err = readBool(r); err != nil {
		return id, err
	}
	if id.PublicKeyToken, err = readString(r); err != nil {
		return id, err
	}
	arch, err := readUint8(r)
	if err != nil {
		return id, err
	}
	id.ProcessorArch = identity.ProcessorArchitecture(arch)
	if id.Retargetable, err = readBool(r); err != nil {
		return id, err
	}
	return id, nil
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeStringSlice(buf *bytes.Buffer, s []string) {
	writeUint32(buf, uint32(len(s)))
	for _, v := range s {
		writeString(buf, v)
	}
}

func readStringSlice(r *bytes.Reader) ([]string, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(tmp[:]), nil
}

func writeUint8(buf *bytes.Buffer, v uint8) {
	buf.WriteByte(v)
}

func readUint8(r *bytes.Reader) (uint8, error) {
	return r.ReadByte()
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// errCorruptState is returned when the state file header does not
// match the expected magic/version, or an entry is truncated.
var errCorruptState = fmt.Errorf("cache: corrupt or incompatible state file")
