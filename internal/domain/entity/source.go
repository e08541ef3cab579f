package entity

// BinaryFormat classifies an uploaded source.
type BinaryFormat string

const (
	FormatNativeBinary    BinaryFormat = "native-binary"
	FormatManagedAssembly BinaryFormat = "managed-assembly"
	FormatScript          BinaryFormat = "script"
	FormatUnknown         BinaryFormat = "unknown"
)

func (f BinaryFormat) String() string {
	return string(f)
}

// SourceInfo is what the format detector learned about an upload.
type SourceInfo struct {
	// Extension is lower case without the leading dot.
	Extension string
	Format    BinaryFormat
	DLL       bool
}

func (i SourceInfo) IsManagedDLL() bool {
	return i.DLL && i.Format == FormatManagedAssembly
}

func (i SourceInfo) IsNativeDLL() bool {
	return i.DLL && i.Format != FormatManagedAssembly
}
