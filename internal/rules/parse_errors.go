package rules

import (
	"extendaudit/internal/finding"
)

// scriptParseErrorRule turns unparsable scripts into findings so a broken
// script never aborts a run.
type scriptParseErrorRule struct{}

func (scriptParseErrorRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "ScriptParseError",
		Category:    CategoryScript,
		Severity:    finding.SeverityAdvice,
		Description: "Reports scripts that could not be parsed; script rules skip them.",
		AppliesTo:   allKinds,
	}
}

func (scriptParseErrorRule) Check(pass *Pass) error {
	for _, s := range pass.File.Scripts {
		if s.Err == nil {
			continue
		}
		where := ""
		if s.Source.FieldPath != "" {
			where = " in " + s.Source.FieldPath
		}
		pass.Reportf(s.Err.Line, "Script%s could not be parsed: %s", where, s.Err.Msg)
	}
	return nil
}

type fileParseErrorRule struct{}

func (fileParseErrorRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "FileParseError",
		Category:    CategoryStructure,
		Severity:    finding.SeverityAction,
		Description: "Reports JSON artifacts that could not be parsed; structure rules skip them.",
		AppliesTo:   structuralKinds,
	}
}

func (fileParseErrorRule) Check(pass *Pass) error {
	if perr := pass.File.ParseErr; perr != nil {
		pass.Reportf(perr.Line, "File could not be parsed: %s", perr.Msg)
	}
	return nil
}
