package schema

// Keys of the terminal schema that other packages react to.
const (
	KeyLanguage   = "language"
	KeyServerName = "serverName"
)

// LocaleSource supplies the language setting's default and allowed values.
type LocaleSource interface {
	SuggestLocale() string
	Locales() []string
}

// Terminal returns the schema of the web terminal client. Keys missing from
// it are invalid.
func Terminal(loc LocaleSource) (*Registry, error) {
	return New(
		Descriptor{Key: "defaultNamespace", Kind: KindString, Default: ""},
		Descriptor{Key: "initMessage", Kind: KindBool, Default: true, Values: BoolValues, Transform: BoolTransform},
		Descriptor{Key: KeyLanguage, Kind: KindString, Default: loc.SuggestLocale(), Values: loc.Locales()},
		Descriptor{Key: KeyServerName, Kind: KindString, Default: "", Global: true},
		Descriptor{Key: "sqlMaxResults", Kind: KindInt, Default: 777, Transform: IntTransform},
		Descriptor{Key: "suggestions", Kind: KindBool, Default: true, Values: BoolValues, Transform: BoolTransform},
		Descriptor{Key: "syntaxHighlight", Kind: KindBool, Default: true, Values: BoolValues, Transform: BoolTransform},
		Descriptor{Key: "updateCheck", Kind: KindBool, Default: true, Values: BoolValues, Transform: BoolTransform},
	)
}
