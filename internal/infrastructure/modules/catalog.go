package modules

import (
	"evador/internal/domain/entity"
	"evador/internal/domain/repository"
)

// StaticCatalog lists the built-in capabilities plus the extras configured
// for the installed toolchain.
type StaticCatalog struct {
	names []string
}

func NewStaticCatalog(extra []string) repository.ModuleCatalog {
	set := entity.NewModuleSet(entity.ModuleDelay, entity.ModuleFindProcess).With(extra...)
	return &StaticCatalog{names: set.Sorted()}
}

func (c *StaticCatalog) List() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}
