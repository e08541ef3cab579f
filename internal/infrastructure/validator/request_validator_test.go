package validator

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evador/internal/domain/entity"
)

type fakeWorkspace struct {
	aliases  []string
	aliasErr error
}

func (w *fakeWorkspace) Source() string { return "/uploads/source_payload.bin" }
func (w *fakeWorkspace) Target() string { return "/uploads/target_ABC" }

func (w *fakeWorkspace) Alias(ext string) (string, error) {
	if w.aliasErr != nil {
		return "", w.aliasErr
	}
	w.aliases = append(w.aliases, ext)
	return "/uploads/source_payload." + ext, nil
}

var exeInfo = entity.SourceInfo{Extension: "exe", Format: entity.FormatNativeBinary}

func validParams() url.Values {
	return url.Values{
		"transformer": {"donut"},
		"process":     {"explorer.exe"},
	}
}

func TestValidateCommon_Defaults(t *testing.T) {
	v := NewRequestValidator()

	spec, err := v.ValidateCommon(&fakeWorkspace{}, entity.OutputPowerShell, exeInfo, validParams())
	require.NoError(t, err)

	assert.Equal(t, entity.OutputPowerShell, spec.Kind)
	assert.Equal(t, "/uploads/target_ABC", spec.OutFile)
	assert.Equal(t, entity.ArchX64, spec.Architecture)
	assert.Equal(t, entity.TransformerDonut, spec.Transformer)
	assert.Equal(t, "explorer.exe", spec.Process)
	assert.Zero(t, spec.Delay)
	assert.False(t, spec.Check)
	assert.False(t, spec.SGN)
	assert.True(t, spec.EncoderChain().Empty())
	assert.Equal(t, []string{entity.ModuleFindProcess}, spec.Modules())
	assert.Empty(t, spec.SourceAlias)
}

func TestValidateCommon_OutfileNeverFromRequest(t *testing.T) {
	params := validParams()
	params.Set("outfile", "/etc/passwd")

	spec, err := NewRequestValidator().ValidateCommon(&fakeWorkspace{}, entity.OutputPowerShell, exeInfo, params)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/target_ABC", spec.OutFile)
}

func TestValidateCommon_InvalidTransformer(t *testing.T) {
	for _, tr := range []string{"", "unknown", "Donut", "loader2", " "} {
		params := validParams()
		params.Set("transformer", tr)

		_, err := NewRequestValidator().ValidateCommon(&fakeWorkspace{}, entity.OutputNative, exeInfo, params)

		var ve *entity.ValidationError
		require.ErrorAs(t, err, &ve, "transformer %q", tr)
		assert.ErrorIs(t, err, entity.ErrInvalidTransformer)
		assert.Equal(t, "Invalid transformer param", ve.Public())
	}
}

func TestValidateCommon_AllTransformersAccepted(t *testing.T) {
	for _, tr := range entity.Transformers {
		params := validParams()
		params.Set("transformer", string(tr))

		spec, err := NewRequestValidator().ValidateCommon(&fakeWorkspace{}, entity.OutputNative, exeInfo, params)
		require.NoError(t, err)
		assert.Equal(t, tr, spec.Transformer)
	}
}

func TestValidateCommon_MissingProcess(t *testing.T) {
	for _, p := range []string{"", "   "} {
		params := validParams()
		params.Set("process", p)

		_, err := NewRequestValidator().ValidateCommon(&fakeWorkspace{}, entity.OutputNative, exeInfo, params)
		assert.ErrorIs(t, err, entity.ErrMissingProcess)
	}

	params := validParams()
	params.Del("process")
	_, err := NewRequestValidator().ValidateCommon(&fakeWorkspace{}, entity.OutputNative, exeInfo, params)
	assert.ErrorIs(t, err, entity.ErrMissingProcess)
}

func TestValidateCommon_InvalidArchitecture(t *testing.T) {
	for _, arch := range []string{"arm64", "X64", "amd64", "x86_64"} {
		params := validParams()
		params.Set("arch", arch)

		_, err := NewRequestValidator().ValidateCommon(&fakeWorkspace{}, entity.OutputNative, exeInfo, params)
		assert.ErrorIs(t, err, entity.ErrInvalidArchitecture, "arch %q", arch)
	}

	params := validParams()
	params.Set("arch", "x86")
	spec, err := NewRequestValidator().ValidateCommon(&fakeWorkspace{}, entity.OutputNative, exeInfo, params)
	require.NoError(t, err)
	assert.Equal(t, entity.ArchX86, spec.Architecture)
}

func TestValidateCommon_Delay(t *testing.T) {
	params := validParams()
	params.Set("delay", "30")

	spec, err := NewRequestValidator().ValidateCommon(&fakeWorkspace{}, entity.OutputNative, exeInfo, params)
	require.NoError(t, err)
	assert.Equal(t, 30, spec.Delay)
	assert.True(t, spec.HasModule(entity.ModuleDelay))
	assert.True(t, spec.HasModule(entity.ModuleFindProcess))

	for _, bad := range []string{"-1", "soon", "1.5"} {
		params.Set("delay", bad)
		_, err := NewRequestValidator().ValidateCommon(&fakeWorkspace{}, entity.OutputNative, exeInfo, params)
		assert.ErrorIs(t, err, entity.ErrInvalidDelay, "delay %q", bad)
	}
}

func TestValidateCommon_ModulesTrimmedAndDeduplicated(t *testing.T) {
	params := validParams()
	params["modules"] = []string{" alpha ", "alpha", "beta,  alpha", ""}

	spec, err := NewRequestValidator().ValidateCommon(&fakeWorkspace{}, entity.OutputNative, exeInfo, params)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", entity.ModuleFindProcess}, spec.Modules())
	assert.False(t, spec.HasModule(entity.ModuleDelay))
}

func TestValidateCommon_EncoderOrderPreserved(t *testing.T) {
	params := validParams()
	params["encoder"] = []string{"xor", "base64", "zlib,nop"}

	spec, err := NewRequestValidator().ValidateCommon(&fakeWorkspace{}, entity.OutputNative, exeInfo, params)
	require.NoError(t, err)
	assert.Equal(t, []string{"xor", "base64", "zlib", "nop"}, spec.EncoderChain().Sequence())
}

func TestValidateCommon_BooleanCoercion(t *testing.T) {
	params := validParams()
	params.Set("check", "1")
	params.Set("sgn", "on")
	params.Set("pinject", "false")
	params.Set("obfuscate", "")

	spec, err := NewRequestValidator().ValidateCommon(&fakeWorkspace{}, entity.OutputNative, exeInfo, params)
	require.NoError(t, err)
	assert.True(t, spec.Check)
	assert.True(t, spec.SGN)
	assert.False(t, spec.PInject)
	assert.False(t, spec.Obfuscate)
	assert.False(t, spec.TransformerParams)
}

func TestValidateCommon_BinExtensionGetsRawAlias(t *testing.T) {
	ws := &fakeWorkspace{}
	info := entity.SourceInfo{Extension: "bin", Format: entity.FormatNativeBinary}

	spec, err := NewRequestValidator().ValidateCommon(ws, entity.OutputNative, info, validParams())
	require.NoError(t, err)
	assert.Equal(t, []string{"raw"}, ws.aliases)
	assert.Equal(t, "/uploads/source_payload.raw", spec.SourceAlias)

	ws = &fakeWorkspace{aliasErr: errors.New("disk full")}
	_, err = NewRequestValidator().ValidateCommon(ws, entity.OutputNative, info, validParams())
	var se *entity.StorageError
	assert.ErrorAs(t, err, &se)
}

func TestValidateBinaryOutput(t *testing.T) {
	params := validParams()
	params.Set("hide_window", "true")
	params.Set("clone", "C:/Windows/notepad.exe")
	params.Set("sign", "1")
	params.Set("domain", "example.com")
	params.Set("steal_from", "C:/Windows/explorer.exe")

	spec, err := NewRequestValidator().ValidateBinaryOutput(&fakeWorkspace{}, entity.OutputDotNet, exeInfo, params)
	require.NoError(t, err)
	assert.Equal(t, entity.BinaryOptions{
		HideWindow: true,
		Clone:      "C:/Windows/notepad.exe",
		Sign:       true,
		Domain:     "example.com",
		StealFrom:  "C:/Windows/explorer.exe",
	}, spec.Binary)
}

func TestValidateNative(t *testing.T) {
	v := NewRequestValidator()
	nativeDLL := entity.SourceInfo{Extension: "dll", Format: entity.FormatNativeBinary, DLL: true}
	managedDLL := entity.SourceInfo{Extension: "dll", Format: entity.FormatManagedAssembly, DLL: true}

	t.Run("default compiler", func(t *testing.T) {
		spec, err := v.ValidateNative(&fakeWorkspace{}, exeInfo, validParams())
		require.NoError(t, err)
		assert.Equal(t, entity.CompilerCL, spec.Native.Compiler)
	})

	t.Run("invalid compiler", func(t *testing.T) {
		params := validParams()
		params.Set("compiler", "gcc")
		_, err := v.ValidateNative(&fakeWorkspace{}, exeInfo, params)
		assert.ErrorIs(t, err, entity.ErrInvalidCompiler)
	})

	t.Run("native dll without function", func(t *testing.T) {
		_, err := v.ValidateNative(&fakeWorkspace{}, nativeDLL, validParams())
		assert.ErrorIs(t, err, entity.ErrMissingExportTarget)
	})

	t.Run("native dll with function", func(t *testing.T) {
		params := validParams()
		params.Set("function", "Run")
		params.Set("compiler", "clang")
		params.Set("dll", "true")
		params.Set("exports", "exports.def")
		spec, err := v.ValidateNative(&fakeWorkspace{}, nativeDLL, params)
		require.NoError(t, err)
		assert.Equal(t, entity.NativeOptions{DLL: true, Exports: "exports.def", Compiler: entity.CompilerClang}, spec.Native)
		assert.Equal(t, "Run", spec.FunctionName)
	})

	t.Run("managed dll is not checked for exports", func(t *testing.T) {
		_, err := v.ValidateNative(&fakeWorkspace{}, managedDLL, validParams())
		assert.NoError(t, err)
	})
}

func TestValidateDotNet(t *testing.T) {
	v := NewRequestValidator()
	managedDLL := entity.SourceInfo{Extension: "dll", Format: entity.FormatManagedAssembly, DLL: true}

	cases := []struct {
		name      string
		classname string
		function  string
		wantErr   bool
	}{
		{"neither", "", "", true},
		{"class only", "Program", "", true},
		{"function only", "", "Main", true},
		{"both", "Program", "Main", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := validParams()
			params.Set("classname", tc.classname)
			params.Set("function", tc.function)

			_, err := v.ValidateDotNet(&fakeWorkspace{}, managedDLL, params)
			if tc.wantErr {
				assert.ErrorIs(t, err, entity.ErrMissingManagedEntryPoint)
				return
			}
			assert.NoError(t, err)
		})
	}

	_, err := v.ValidateDotNet(&fakeWorkspace{}, exeInfo, validParams())
	assert.NoError(t, err)
}

func TestValidatePowerShell_IgnoresBinaryFields(t *testing.T) {
	params := validParams()
	params.Set("sign", "true")

	spec, err := NewRequestValidator().ValidatePowerShell(&fakeWorkspace{}, exeInfo, params)
	require.NoError(t, err)
	assert.Equal(t, entity.BinaryOptions{}, spec.Binary)
	assert.Equal(t, entity.OutputPowerShell, spec.Kind)
}
