package format

import (
	"debug/pe"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"evador/internal/domain/entity"
)

// Detector classifies uploads by extension and, for PE files, by the
// presence of a CLR runtime header.
type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

func (d *Detector) Detect(path string) (entity.SourceInfo, error) {
	ext := NormalizeExtension(path)
	info := entity.SourceInfo{Extension: ext, Format: entity.FormatUnknown}

	switch ext {
	case "exe", "dll":
		info.DLL = ext == "dll"
		managed, err := isManagedPE(path)
		if errors.Is(err, os.ErrNotExist) {
			return entity.SourceInfo{}, fmt.Errorf("detect format: %w", err)
		}
		if err != nil {
			// not a readable PE, let the generator reject it
			return info, nil
		}
		info.Format = entity.FormatNativeBinary
		if managed {
			info.Format = entity.FormatManagedAssembly
		}
	case "bin", "raw":
		info.Format = entity.FormatNativeBinary
	case "ps1":
		info.Format = entity.FormatScript
	}
	return info, nil
}

// NormalizeExtension returns the lower-cased extension of path without the dot.
func NormalizeExtension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

func isManagedPE(path string) (bool, error) {
	f, err := pe.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	var dir pe.DataDirectory
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if oh.NumberOfRvaAndSizes <= pe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR {
			return false, nil
		}
		dir = oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR]
	case *pe.OptionalHeader64:
		if oh.NumberOfRvaAndSizes <= pe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR {
			return false, nil
		}
		dir = oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR]
	default:
		return false, errors.New("missing optional header")
	}
	return dir.VirtualAddress != 0 && dir.Size != 0, nil
}
