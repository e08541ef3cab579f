package entity

import (
	"encoding/json"
	"slices"
)

type Transformer string

const (
	TransformerLoader Transformer = "loader"
	TransformerDonut  Transformer = "donut"
	TransformerPE2SH  Transformer = "pe2sh"
	TransformerSRDI   Transformer = "srdi"
)

var Transformers = []Transformer{TransformerLoader, TransformerDonut, TransformerPE2SH, TransformerSRDI}

func (t Transformer) Valid() bool {
	return slices.Contains(Transformers, t)
}

type Architecture string

const (
	ArchX86 Architecture = "x86"
	ArchX64 Architecture = "x64"
)

// DefaultArchitecture is used when the request does not name one.
const DefaultArchitecture = ArchX64

func (a Architecture) Valid() bool {
	return a == ArchX86 || a == ArchX64
}

type Compiler string

const (
	CompilerCL    Compiler = "cl"
	CompilerClang Compiler = "clang"
	CompilerLLVM  Compiler = "llvm"
)

const DefaultCompiler = CompilerCL

func (c Compiler) Valid() bool {
	return c == CompilerCL || c == CompilerClang || c == CompilerLLVM
}

// OutputKind selects the generation strategy.
type OutputKind string

const (
	OutputNative     OutputKind = "native"
	OutputDotNet     OutputKind = "dotnet"
	OutputPowerShell OutputKind = "powershell"
)

func (k OutputKind) String() string {
	return string(k)
}

// Capability identifiers added automatically from request fields.
const (
	ModuleDelay       = "delay"
	ModuleFindProcess = "find_process"
)

// BinaryOptions holds the fields shared by the native and .NET outputs.
type BinaryOptions struct {
	HideWindow bool   `json:"hide_window"`
	Clone      string `json:"clone,omitempty"`
	Sign       bool   `json:"sign"`
	Domain     string `json:"domain,omitempty"`
	Offline    bool   `json:"offline"`
	StealFrom  string `json:"steal_from,omitempty"`
}

// NativeOptions holds the fields only the native output understands.
type NativeOptions struct {
	DLL      bool     `json:"dll"`
	Exports  string   `json:"exports,omitempty"`
	Compiler Compiler `json:"compiler"`
}

// GenerationSpec is the validated description of one generation request.
// It is built once by the request validator and passed by value afterwards;
// the module set and encoder chain only expose copies.
type GenerationSpec struct {
	Kind         OutputKind
	OutFile      string
	SourceAlias  string
	Check        bool
	SGN          bool
	Process      string
	Delay        int
	Transformer  Transformer
	Architecture Architecture

	TransformerParams bool
	PInject           bool
	Obfuscate         bool
	ClassName         string
	FunctionName      string

	// Binary is meaningful for native and .NET outputs, Native for native only.
	Binary BinaryOptions
	Native NativeOptions

	chain   EncoderChain
	modules ModuleSet
}

func NewGenerationSpec(base GenerationSpec, chain EncoderChain, modules ModuleSet) GenerationSpec {
	base.chain = chain
	base.modules = modules.clone()
	return base
}

func (s GenerationSpec) EncoderChain() EncoderChain {
	return s.chain
}

func (s GenerationSpec) Modules() []string {
	return s.modules.Sorted()
}

func (s GenerationSpec) HasModule(name string) bool {
	return s.modules.Has(name)
}

type specJSON struct {
	Kind              OutputKind     `json:"kind"`
	Check             bool           `json:"check"`
	SGN               bool           `json:"sgn"`
	Process           string         `json:"process"`
	Delay             int            `json:"delay"`
	Encoders          []string       `json:"encoders"`
	Transformer       Transformer    `json:"transformer"`
	Architecture      Architecture   `json:"arch"`
	Modules           []string       `json:"modules"`
	TransformerParams bool           `json:"transformer_params"`
	PInject           bool           `json:"pinject"`
	Obfuscate         bool           `json:"obfuscate"`
	ClassName         string         `json:"classname,omitempty"`
	FunctionName      string         `json:"function,omitempty"`
	SourceAlias       string         `json:"source_alias,omitempty"`
	OutFile           string         `json:"outfile"`
	Binary            *BinaryOptions `json:"binary,omitempty"`
	Native            *NativeOptions `json:"native,omitempty"`
}

// MarshalJSON encodes the spec in the form handed to the generation toolchain.
func (s GenerationSpec) MarshalJSON() ([]byte, error) {
	out := specJSON{
		Kind:              s.Kind,
		Check:             s.Check,
		SGN:               s.SGN,
		Process:           s.Process,
		Delay:             s.Delay,
		Encoders:          s.chain.Sequence(),
		Transformer:       s.Transformer,
		Architecture:      s.Architecture,
		Modules:           s.Modules(),
		TransformerParams: s.TransformerParams,
		PInject:           s.PInject,
		Obfuscate:         s.Obfuscate,
		ClassName:         s.ClassName,
		FunctionName:      s.FunctionName,
		SourceAlias:       s.SourceAlias,
		OutFile:           s.OutFile,
	}
	if s.Kind == OutputNative || s.Kind == OutputDotNet {
		binary := s.Binary
		out.Binary = &binary
	}
	if s.Kind == OutputNative {
		native := s.Native
		out.Native = &native
	}
	return json.Marshal(out)
}
