// Package identity implements AssemblyIdentity: parsing of textual fusion
// names, normalization of culture and public-key-token fields, and the two
// equality modes (Strict and Simple) used throughout the resolver to decide
// whether two requested or resolved assemblies name "the same" library.
package identity

import (
	"fmt"
	"strings"

	"github.com/archref/resolver/internal/fxver"
)

// MatchMode selects which fields participate in an identity comparison.
type MatchMode int

const (
	// Simple compares only SimpleName, Culture, and PublicKeyToken; Version
	// is ignored. This is the bucket used for conflict detection and for
	// ReferenceTable keys.
	Simple MatchMode = iota
	// Strict compares every field, including Version and ProcessorArch.
	Strict
)

func (m MatchMode) String() string {
	if m == Strict {
		return "Strict"
	}
	return "Simple"
}

// ProcessorArchitecture is the target CPU architecture recorded on an
// identity or requested via resolver configuration.
type ProcessorArchitecture int

const (
	ArchNone ProcessorArchitecture = iota
	ArchMSIL
	ArchX86
	ArchAMD64
	ArchIA64
	ArchARM
)

func ParseArchitecture(s string) ProcessorArchitecture {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "msil", "anycpu", "any cpu", "":
		return ArchMSIL
	case "x86":
		return ArchX86
	case "amd64", "x64":
		return ArchAMD64
	case "ia64":
		return ArchIA64
	case "arm":
		return ArchARM
	default:
		return ArchNone
	}
}

func (a ProcessorArchitecture) String() string {
	switch a {
	case ArchMSIL:
		return "MSIL"
	case ArchX86:
		return "x86"
	case ArchAMD64:
		return "amd64"
	case ArchIA64:
		return "IA64"
	case ArchARM:
		return "arm"
	default:
		return "None"
	}
}

// NeutralCulture is the canonical form that "", "neutral", and missing
// culture attributes are all normalized to.
const NeutralCulture = "neutral"

// AssemblyIdentity is the value type described in spec.md §3: a tuple of
// {simple_name, version?, culture, public_key_token?, processor_arch}.
// SimpleName is stored lower-cased for case-insensitive comparison, but
// Raw preserves the originally-parsed casing for display purposes.
type AssemblyIdentity struct {
	SimpleName          string
	Raw                 string
	Version             fxver.Version
	HasVersion          bool
	Culture             string
	PublicKeyToken      string
	HasPublicKeyToken   bool
	ProcessorArch       ProcessorArchitecture
	Retargetable        bool
}

// New constructs a normalized identity from discrete fields. Culture is
// normalized via NormalizeCulture; PublicKeyToken via NormalizeToken.
func New(simpleName string, version fxver.Version, hasVersion bool, culture, pkt string) AssemblyIdentity {
	id := AssemblyIdentity{
		SimpleName: strings.ToLower(simpleName),
		Raw:        simpleName,
		Version:    version,
		HasVersion: hasVersion,
		Culture:    NormalizeCulture(culture),
	}
	if tok, ok := NormalizeToken(pkt); ok {
		id.PublicKeyToken = tok
		id.HasPublicKeyToken = true
	}
	return id
}

// NormalizeCulture maps "", "neutral" (any case) to NeutralCulture and
// lower-cases everything else.
func NormalizeCulture(c string) string {
	c = strings.TrimSpace(c)
	if c == "" || strings.EqualFold(c, NeutralCulture) {
		return NeutralCulture
	}
	return strings.ToLower(c)
}

// NormalizeToken validates and lower-cases a 16-hex-char public key token.
// An empty token normalizes to ("", false): absent.
func NormalizeToken(t string) (string, bool) {
	t = strings.TrimSpace(t)
	if t == "" || strings.EqualFold(t, "null") {
		return "", false
	}
	t = strings.ToLower(t)
	if len(t) != 16 {
		return "", false
	}
	for _, r := range t {
		if !isHex(r) {
			return "", false
		}
	}
	return t, true
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
}

// IsStrongNamed reports whether the identity carries a public key token.
func (id AssemblyIdentity) IsStrongNamed() bool {
	return id.HasPublicKeyToken
}

// ArchCompatible reports whether a file built for got satisfies a request
// targeting target, per spec.md §6's target_processor_architecture rule.
// An unspecified target, an unspecified result, or MSIL (architecture-
// neutral) on either side is always compatible.
func ArchCompatible(target, got ProcessorArchitecture) bool {
	if target == ArchNone || got == ArchNone || target == ArchMSIL || got == ArchMSIL {
		return true
	}
	return target == got
}

// SimpleKey returns the string used to bucket identities under Simple
// equality: simple_name + culture + public_key_token. It is the key used
// by ReferenceTable and by the conflict resolver's grouping pass.
func (id AssemblyIdentity) SimpleKey() string {
	tok := id.PublicKeyToken
	if !id.HasPublicKeyToken {
		tok = "-"
	}
	return id.SimpleName + "|" + id.Culture + "|" + tok
}

// Matches compares id against other under the given MatchMode.
func (id AssemblyIdentity) Matches(other AssemblyIdentity, mode MatchMode) bool {
	if id.SimpleName != other.SimpleName {
		return false
	}
	if id.Culture != other.Culture {
		return false
	}
	if id.HasPublicKeyToken != other.HasPublicKeyToken || id.PublicKeyToken != other.PublicKeyToken {
		return false
	}
	if mode == Simple {
		return true
	}
	if id.HasVersion != other.HasVersion {
		return false
	}
	if id.HasVersion && id.Version.Compare(other.Version) != 0 {
		return false
	}
	return id.ProcessorArch == other.ProcessorArch
}

// String renders the canonical fusion-name form (spec.md §4.1):
// "Name, Version=V, Culture=C, PublicKeyToken=T[, ProcessorArchitecture=A]".
func (id AssemblyIdentity) String() string {
	var b strings.Builder
	b.WriteString(id.Raw)
	if id.HasVersion {
		fmt.Fprintf(&b, ", Version=%s", id.Version)
	}
	fmt.Fprintf(&b, ", Culture=%s", id.Culture)
	if id.HasPublicKeyToken {
		fmt.Fprintf(&b, ", PublicKeyToken=%s", id.PublicKeyToken)
	} else {
		b.WriteString(", PublicKeyToken=null")
	}
	if id.ProcessorArch != ArchNone {
		fmt.Fprintf(&b, ", ProcessorArchitecture=%s", id.ProcessorArch)
	}
	if id.Retargetable {
		b.WriteString(", Retargetable=Yes")
	}
	return b.String()
}

// WithVersion returns a copy of id with Version replaced, used by the
// redirect engine to produce an effective identity after unification.
func (id AssemblyIdentity) WithVersion(v fxver.Version) AssemblyIdentity {
	id.Version = v
	id.HasVersion = true
	return id
}

// ParseError reports a fusion-name field that could not be parsed, tagged
// with the offending field name so callers can build actionable diagnostics
// without string-matching the message.
type ParseError struct {
	Input string
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("identity: invalid %s in %q: %v", e.Field, e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse parses a textual fusion name of the form:
//
//	Name, Version=V, Culture=C, PublicKeyToken=T, ProcessorArchitecture=A
//
// All attributes after Name are optional and may appear in any order;
// unrecognized attributes are ignored (spec.md §4.1 "tolerates missing
// fields").
func Parse(fusionName string) (AssemblyIdentity, error) {
	parts := strings.Split(fusionName, ",")
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		return AssemblyIdentity{}, &ParseError{Input: fusionName, Field: "Name", Err: fmt.Errorf("missing simple name")}
	}
	name := strings.TrimSpace(parts[0])
	id := New(name, fxver.Version{}, false, "", "")

	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		kv := strings.SplitN(attr, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.TrimSpace(kv[1])
		switch key {
		case "version":
			v, err := fxver.Parse(val)
			if err != nil {
				return AssemblyIdentity{}, &ParseError{Input: fusionName, Field: "Version", Err: err}
			}
			id.Version = v
			id.HasVersion = true
		case "culture", "language":
			id.Culture = NormalizeCulture(val)
		case "publickeytoken":
			if tok, ok := NormalizeToken(val); ok {
				id.PublicKeyToken = tok
				id.HasPublicKeyToken = true
			} else if !strings.EqualFold(val, "null") && val != "" {
				return AssemblyIdentity{}, &ParseError{Input: fusionName, Field: "PublicKeyToken", Err: fmt.Errorf("malformed token %q", val)}
			}
		case "processorarchitecture":
			id.ProcessorArch = ParseArchitecture(val)
		case "retargetable":
			id.Retargetable = strings.EqualFold(val, "yes")
		}
	}
	return id, nil
}
