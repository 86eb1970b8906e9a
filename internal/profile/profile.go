package profile

// QA is one stored example exchange for a character.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Profile is a named persona: a system prompt plus example dialogue
// used to steer the model's tone. The on-disk layout matches
// profiles.json: a single JSON array of these objects.
type Profile struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
	Examples     []QA   `json:"sample_qna"`
}

// Repository abstracts durable profile storage.
// Implementations must be safe for concurrent use.
// Upsert replaces the profile with the matching name or appends it,
// and must persist before returning.
type Repository interface {
	LoadAll() ([]Profile, error)
	Get(name string) (Profile, bool, error)
	Upsert(p Profile) error
}
