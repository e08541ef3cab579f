package validator

import (
	"net/url"
	"strconv"
	"strings"

	"evador/internal/domain/entity"
)

// Workspace is the part of a request workspace the validator needs.
type Workspace interface {
	Source() string
	Target() string
	Alias(ext string) (string, error)
}

// RequestValidator turns raw form values into a GenerationSpec. It holds no
// per-request state.
type RequestValidator struct{}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{}
}

// ValidateCommon checks the fields every output kind accepts.
func (v *RequestValidator) ValidateCommon(ws Workspace, kind entity.OutputKind, info entity.SourceInfo, params url.Values) (entity.GenerationSpec, error) {
	base := entity.GenerationSpec{
		Kind: kind,
		// never taken from the request
		OutFile:           ws.Target(),
		Check:             flag(params, "check"),
		SGN:               flag(params, "sgn"),
		Process:           strings.TrimSpace(params.Get("process")),
		TransformerParams: flag(params, "transformer_params"),
		PInject:           flag(params, "pinject"),
		Obfuscate:         flag(params, "obfuscate"),
		ClassName:         strings.TrimSpace(params.Get("classname")),
		FunctionName:      strings.TrimSpace(params.Get("function")),
	}

	delay, err := parseDelay(params.Get("delay"))
	if err != nil {
		return entity.GenerationSpec{}, err
	}
	base.Delay = delay

	base.Transformer = entity.Transformer(strings.TrimSpace(params.Get("transformer")))
	if !base.Transformer.Valid() {
		return entity.GenerationSpec{}, entity.NewValidationError("transformer", entity.ErrInvalidTransformer)
	}

	if base.Process == "" {
		return entity.GenerationSpec{}, entity.NewValidationError("process", entity.ErrMissingProcess)
	}

	base.Architecture = entity.DefaultArchitecture
	if arch := strings.TrimSpace(params.Get("arch")); arch != "" {
		base.Architecture = entity.Architecture(arch)
	}
	if !base.Architecture.Valid() {
		return entity.GenerationSpec{}, entity.NewValidationError("arch", entity.ErrInvalidArchitecture)
	}

	modules := entity.NewModuleSet(list(params, "modules")...)
	if base.Delay > 0 {
		modules = modules.With(entity.ModuleDelay)
	}
	modules = modules.With(entity.ModuleFindProcess)

	// .bin uploads get a .raw sibling so generators can tell raw code apart
	if info.Extension == "bin" {
		alias, err := ws.Alias("raw")
		if err != nil {
			return entity.GenerationSpec{}, &entity.StorageError{Op: "prepare source file", Err: err}
		}
		base.SourceAlias = alias
	}

	return entity.NewGenerationSpec(base, entity.BuildEncoderChain(list(params, "encoder")), modules), nil
}

// ValidateBinaryOutput adds the fields shared by native and .NET outputs.
func (v *RequestValidator) ValidateBinaryOutput(ws Workspace, kind entity.OutputKind, info entity.SourceInfo, params url.Values) (entity.GenerationSpec, error) {
	spec, err := v.ValidateCommon(ws, kind, info, params)
	if err != nil {
		return entity.GenerationSpec{}, err
	}

	spec.Binary = entity.BinaryOptions{
		HideWindow: flag(params, "hide_window"),
		Clone:      strings.TrimSpace(params.Get("clone")),
		Sign:       flag(params, "sign"),
		Domain:     strings.TrimSpace(params.Get("domain")),
		Offline:    flag(params, "offline"),
		StealFrom:  strings.TrimSpace(params.Get("steal_from")),
	}
	return spec, nil
}

// ValidateNative validates a native output request. A native DLL source
// needs an exported function to call.
func (v *RequestValidator) ValidateNative(ws Workspace, info entity.SourceInfo, params url.Values) (entity.GenerationSpec, error) {
	spec, err := v.ValidateBinaryOutput(ws, entity.OutputNative, info, params)
	if err != nil {
		return entity.GenerationSpec{}, err
	}

	spec.Native = entity.NativeOptions{
		DLL:      flag(params, "dll"),
		Exports:  strings.TrimSpace(params.Get("exports")),
		Compiler: entity.DefaultCompiler,
	}
	if c := strings.TrimSpace(params.Get("compiler")); c != "" {
		spec.Native.Compiler = entity.Compiler(c)
	}
	if !spec.Native.Compiler.Valid() {
		return entity.GenerationSpec{}, entity.NewValidationError("compiler", entity.ErrInvalidCompiler)
	}

	if info.IsNativeDLL() && spec.FunctionName == "" {
		return entity.GenerationSpec{}, entity.NewValidationError("function", entity.ErrMissingExportTarget)
	}
	return spec, nil
}

// ValidateDotNet validates a .NET output request. A managed DLL source needs
// both a class and a method to invoke.
func (v *RequestValidator) ValidateDotNet(ws Workspace, info entity.SourceInfo, params url.Values) (entity.GenerationSpec, error) {
	spec, err := v.ValidateBinaryOutput(ws, entity.OutputDotNet, info, params)
	if err != nil {
		return entity.GenerationSpec{}, err
	}

	if info.IsManagedDLL() && (spec.FunctionName == "" || spec.ClassName == "") {
		return entity.GenerationSpec{}, entity.NewValidationError("classname", entity.ErrMissingManagedEntryPoint)
	}
	return spec, nil
}

// ValidatePowerShell validates a script output request.
func (v *RequestValidator) ValidatePowerShell(ws Workspace, info entity.SourceInfo, params url.Values) (entity.GenerationSpec, error) {
	return v.ValidateCommon(ws, entity.OutputPowerShell, info, params)
}

func parseDelay(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := strconv.Atoi(raw)
	if err != nil || d < 0 {
		return 0, entity.NewValidationError("delay", entity.ErrInvalidDelay)
	}
	return d, nil
}

// flag reads a boolean field. Missing or empty is false, values that parse
// as booleans are taken as such, anything else present is true.
func flag(params url.Values, key string) bool {
	raw := strings.TrimSpace(params.Get(key))
	if raw == "" {
		return false
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return true
}

// list collects a repeatable field; each value may also be comma separated.
func list(params url.Values, key string) []string {
	var out []string
	for _, v := range params[key] {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
