package transform

// Options configures the built-in transforms.
type Options struct {
	// RenderWidth is the wrap column for rendered markdown. Zero uses
	// DefaultRenderWidth; a negative value disables wrapping.
	RenderWidth int
	// AgeIdentityFile enables the age transform when set.
	AgeIdentityFile string
}

// Builtins returns a registry with every built-in transform.
func Builtins(opts Options) (*Registry, error) {
	width := opts.RenderWidth
	if width == 0 {
		width = DefaultRenderWidth
	}

	reg := NewRegistry()
	reg.Register(MarkdownText(width))
	reg.Register(MarkdownHTML())
	reg.Register(MarkdownANSI(width))
	reg.Register(Gzip())
	reg.Register(LZ4())
	reg.Register(JSONC())
	reg.Register(CBOR())

	z, err := Zstd()
	if err != nil {
		return nil, err
	}
	reg.Register(z)

	if opts.AgeIdentityFile != "" {
		a, err := Age(opts.AgeIdentityFile)
		if err != nil {
			return nil, err
		}
		reg.Register(a)
	}
	return reg, nil
}

// Build resolves rules against the built-in transforms. A nil rule list
// means DefaultRules.
func Build(rules []Rule, opts Options) (*Table, error) {
	reg, err := Builtins(opts)
	if err != nil {
		return nil, err
	}
	if rules == nil {
		rules = DefaultRules()
	}
	return NewTable(rules, reg)
}
