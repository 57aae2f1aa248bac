// Package composite derives composite model descriptors from a base model and
// an adapter. Everything here is pure: the same inputs always produce the same
// name, which is what lets the session manager treat repeated requests as
// no-ops and clean up by name alone.
package composite

import (
	"path"
	"strings"

	"lorad/pkg/types"
)

// Separator joins the base model and adapter stem in a composite name.
const Separator = "-with-"

// Descriptor is everything needed to materialize a composite model upstream.
// AdapterPath is the adapter as the inference service sees it; LocalPath is
// the same file on this host, for transports that read it client side.
type Descriptor struct {
	Name        string
	BaseModel   string
	AdapterPath string
	LocalPath   string
}

// Build returns the descriptor for base composed with adapter.
func Build(base string, adapter types.AdapterRef, adapterPath string) Descriptor {
	return Descriptor{
		Name:        Name(base, adapter.Name),
		BaseModel:   base,
		AdapterPath: adapterPath,
	}
}

// Name is the deterministic composite name for (base, adapterName).
func Name(base, adapterName string) string {
	return base + Separator + StripExtension(adapterName)
}

// StripExtension removes the final extension only: "a.lora.bin" -> "a.lora".
func StripExtension(name string) string {
	ext := path.Ext(name)
	if ext == name {
		// dotfile such as ".bin"
		return name
	}
	return strings.TrimSuffix(name, ext)
}

// Modelfile renders the descriptor in the inference service's Modelfile syntax.
func (d Descriptor) Modelfile() string { return render(d.BaseModel, d.AdapterPath) }

// LocalModelfile is Modelfile with the ADAPTER line pointing at LocalPath.
// It falls back to AdapterPath when no local path is known.
func (d Descriptor) LocalModelfile() string {
	if d.LocalPath == "" {
		return d.Modelfile()
	}
	return render(d.BaseModel, d.LocalPath)
}

func render(base, adapterPath string) string {
	var b strings.Builder
	b.WriteString("FROM ")
	b.WriteString(base)
	b.WriteByte('\n')
	b.WriteString("ADAPTER ")
	b.WriteString(adapterPath)
	b.WriteByte('\n')
	return b.String()
}
