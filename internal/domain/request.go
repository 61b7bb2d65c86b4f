package domain

// GenerationRequest is the parameter set sent to POST /generate-stream.
// Validated client-side before any credits can be deducted.
type GenerationRequest struct {
	// Prompt describes the book to generate.
	Prompt string `json:"prompt" validate:"required,min=10,max=4000"`

	// Title and Author are optional; the backend invents them when absent.
	Title  string `json:"title,omitempty" validate:"max=200"`
	Author string `json:"author,omitempty" validate:"max=120"`

	// Chapters is the requested chapter count.
	Chapters int `json:"chapters" validate:"gte=1,lte=50"`

	// Style selects the prose register.
	Style string `json:"style,omitempty" validate:"omitempty,oneof=narrative academic conversational technical"`

	// Language is a BCP 47 tag like "en" or "pt-BR".
	Language string `json:"language,omitempty" validate:"omitempty,bcp47_language_tag"`

	// IncludeImages asks the backend to generate chapter illustrations.
	IncludeImages bool `json:"include_images,omitempty"`
}
