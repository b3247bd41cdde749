package vision

import "errors"

var (
	// ErrTemplateNotFound is returned when an identifier resolves to no file.
	ErrTemplateNotFound = errors.New("vision: template not found")

	// ErrAmbiguousTemplate is returned when a bare identifier matches
	// files in more than one folder.
	ErrAmbiguousTemplate = errors.New("vision: template name is ambiguous")

	// ErrTemplateDecode is returned when a template file is not a
	// supported image.
	ErrTemplateDecode = errors.New("vision: template decode failed")
)
