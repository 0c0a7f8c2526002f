package models

// Operation describes one billable capability. Keeping these as a closed
// set of values means the quota class, ledger type tag and publish rule
// live in one place instead of being scattered across handlers.
type Operation struct {
	// Name identifies the operation in events and logs.
	Name string
	// CreationType is the free-form type tag stored on the ledger row.
	CreationType string
	// ImageClass selects the (lower) image-generation quota limit.
	ImageClass bool
	// PublishAllowed permits the caller-supplied publish flag; all other
	// operations insert rows with publish = false.
	PublishAllowed bool
}

var (
	OpArticle          = Operation{Name: "generate-article", CreationType: "Article"}
	OpBlogTitle        = Operation{Name: "generate-title", CreationType: "Blog Title"}
	OpImage            = Operation{Name: "generate-image", CreationType: "Image", ImageClass: true, PublishAllowed: true}
	OpRemoveBackground = Operation{Name: "remove-image-background", CreationType: "Image"}
	OpRemoveObject     = Operation{Name: "remove-image-object", CreationType: "Image"}
	OpResumeReview     = Operation{Name: "resume-review", CreationType: "resume review"}
)

// Limit returns the free-tier cap for the operation given the configured
// per-class limits.
func (op Operation) Limit(textLimit, imageLimit int) int {
	if op.ImageClass {
		return imageLimit
	}
	return textLimit
}
