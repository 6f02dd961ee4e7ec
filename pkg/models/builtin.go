package models

// BuiltinLibraryID is the id of the built-in library in every project.
var BuiltinLibraryID = DeterministicID("library:synthetic")

func builtinAnalysis() LibraryAnalysis {
	children := AnalyzedSlot{ContextID: "children", Name: "children", DisplayName: "Children", Type: SlotChildren}
	size := func(ctx, label string) AnalyzedProperty {
		return AnalyzedProperty{ContextID: ctx, Label: label, PropertyName: ctx, Type: PropertyString, Group: "Size"}
	}
	return LibraryAnalysis{
		Name:        "Built-in Components",
		Description: "Page, layout and content primitives",
		Version:     "1.0.0",
		PackageName: "@patternkit/built-in",
		Patterns: []AnalyzedPattern{
			{
				ContextID: "synthetic:page",
				Name:      "Page",
				Type:      PatternPage,
				Slots:     []AnalyzedSlot{children},
				Properties: []AnalyzedProperty{
					{ContextID: "title", Label: "Title", PropertyName: "title", Type: PropertyString},
					{ContextID: "lang", Label: "Language", PropertyName: "lang", Type: PropertyString, DefaultValue: "en"},
				},
			},
			{
				ContextID: "synthetic:box",
				Name:      "Box",
				Type:      PatternBox,
				Slots:     []AnalyzedSlot{children},
				Properties: []AnalyzedProperty{
					{ContextID: "flex", Label: "Flexbox", PropertyName: "flex", Type: PropertyBoolean, DefaultValue: true},
					{
						ContextID: "flexDirection", Label: "Direction", PropertyName: "flexDirection", Type: PropertyEnum,
						DefaultValue: "row",
						Options: []AnalyzedEnumOption{
							{ContextID: "row", Name: "Horizontal", Value: "row"},
							{ContextID: "column", Name: "Vertical", Value: "column"},
						},
					},
					{
						ContextID: "alignItems", Label: "Align", PropertyName: "alignItems", Type: PropertyEnum,
						DefaultValue: "stretch",
						Options: []AnalyzedEnumOption{
							{ContextID: "flex-start", Name: "Start", Value: "flex-start"},
							{ContextID: "center", Name: "Center", Value: "center"},
							{ContextID: "flex-end", Name: "End", Value: "flex-end"},
							{ContextID: "stretch", Name: "Stretch", Value: "stretch"},
						},
					},
					size("width", "Width"),
					size("height", "Height"),
					{ContextID: "backgroundColor", Label: "Background", PropertyName: "backgroundColor", Type: PropertyString},
				},
			},
			{
				ContextID: "synthetic:text",
				Name:      "Text",
				Type:      PatternText,
				Properties: []AnalyzedProperty{
					{ContextID: "text", Label: "Text", PropertyName: "text", Type: PropertyString, DefaultValue: "Text"},
				},
			},
			{
				ContextID: "synthetic:image",
				Name:      "Image",
				Type:      PatternImage,
				Properties: []AnalyzedProperty{
					{ContextID: "src", Label: "Source", PropertyName: "src", Type: PropertyAsset},
					size("width", "Width"),
					size("height", "Height"),
				},
			},
			{
				ContextID: "synthetic:link",
				Name:      "Link",
				Type:      PatternLink,
				Slots:     []AnalyzedSlot{children},
				Properties: []AnalyzedProperty{
					{ContextID: "href", Label: "Link Target", PropertyName: "href", Type: PropertyHref},
					{
						ContextID: "target", Label: "Open in", PropertyName: "target", Type: PropertyEnum,
						DefaultValue: "_self",
						Options: []AnalyzedEnumOption{
							{ContextID: "_self", Name: "Same Tab", Value: "_self"},
							{ContextID: "_blank", Name: "New Tab", Value: "_blank"},
						},
					},
					{ContextID: "onClick", Label: "Interaction", PropertyName: "onClick", Type: PropertyEventHandler},
				},
			},
			{
				ContextID: "synthetic:conditional",
				Name:      "Conditional",
				Type:      PatternConditional,
				Slots: []AnalyzedSlot{
					{ContextID: "truthy", Name: "truthy", DisplayName: "If True", Type: SlotProperty},
					{ContextID: "falsy", Name: "falsy", DisplayName: "If False", Type: SlotProperty},
				},
				Properties: []AnalyzedProperty{
					{ContextID: "condition", Label: "Visible", PropertyName: "condition", Type: PropertyBoolean, DefaultValue: true},
				},
			},
		},
	}
}

// BuiltinLibrary generates the built-in library for p. Ids derive from the
// fixed context ids, so every generation yields the same ids.
func BuiltinLibrary(p *Project) *PatternLibrary {
	l := buildLibrary(builtinAnalysis(), BuiltinLibraryID, LibraryBuiltIn, DeterministicID)
	l.project = p
	return l
}
